package combat

import (
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// PlannedAttack is one attack a combatant is entitled to this round.
type PlannedAttack struct {
	Index   int // 1-based position in the routine
	Phase   int // 1..phases
	Mode    Mode
	Penalty int // accumulated route penalty, <= 0
	Label   string
}

// Router enumerates a combatant's attacks for one round.
type Router struct {
	cfg config.CombatConfig
}

// NewRouter creates a Router using the bonus-attack tunables in cfg.
func NewRouter(cfg config.CombatConfig) *Router {
	return &Router{cfg: cfg}
}

// dualPenalty returns the mainhand penalty for fighting with two weapons.
// The offhand takes double.
func dualPenalty(c *Combatant) int {
	if c.HasFeat(FeatAmbidexterity) || c.HasFeat(FeatTwoWeaponFighting) {
		return -1
	}
	return -4
}

// Plan returns the round's attacks in fixed priority order: mainhand base,
// offhand base, haste, proficiency bonus attacks, then offhand tiers.
// Attack i is assigned phase ((i-1) mod phases)+1.
//
// Precondition: c must not be nil.
// Postcondition: len(result) >= 1; indices are 1..len(result).
func (r *Router) Plan(c *Combatant) []PlannedAttack {
	var out []PlannedAttack
	add := func(mode Mode, penalty int, label string) {
		i := len(out) + 1
		out = append(out, PlannedAttack{
			Index:   i,
			Phase:   (i-1)%r.phases() + 1,
			Mode:    mode,
			Penalty: penalty,
			Label:   label,
		})
	}

	mainMode := ModePrimary
	if c.Mainhand != nil && c.Mainhand.Ranged {
		mainMode = ModeRanged
	}
	dual := c.DualWielding()
	mainPen, offPen := 0, 0
	if dual {
		mainPen = dualPenalty(c)
		offPen = 2 * mainPen
	}

	add(mainMode, mainPen, "mainhand")
	if dual {
		add(ModeOffhand, offPen, "offhand")
	}
	if c.hasFlag(effect.FlagHaste) {
		add(mainMode, mainPen, "haste")
	}

	step, count := -5, min(max((c.BAB-1)/5, 0), r.cfg.MaxBonusAttacks)
	if c.Mainhand == nil && c.MonkLevel > 0 {
		step, count = -3, min(max((c.BAB-1)/3, 0), r.cfg.MonkBonusCap)
	}
	for n := 1; n <= count; n++ {
		add(mainMode, mainPen+step*n, fmt.Sprintf("bonus %d", n))
	}

	if dual {
		if c.HasFeat(FeatImprovedTwoWeapon) {
			add(ModeOffhand, offPen-5, "offhand improved")
		}
		if c.HasFeat(FeatGreaterTwoWeapon) {
			add(ModeOffhand, offPen-7, "offhand greater")
		}
	}
	return out
}

func (r *Router) phases() int {
	if r.cfg.PhasesPerRound <= 0 {
		return 3
	}
	return r.cfg.PhasesPerRound
}
