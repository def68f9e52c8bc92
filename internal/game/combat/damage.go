package combat

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// Damage is the raw damage of one landed attack, before mitigation.
type Damage struct {
	Dice        int // base dice total
	Ability     int
	Flat        int
	PreCritical int // after position modifiers
	Multiplier  int // 1 when not critical
	AddOns      int // post-multiplication dice
	Total       int
	Type        string
	Capped      bool
}

// DamageComputer computes raw damage for landed attacks.
type DamageComputer struct {
	roller *dice.Roller
	cfg    config.CombatConfig
	logger *zap.Logger
}

// NewDamageComputer creates a DamageComputer.
func NewDamageComputer(roller *dice.Roller, cfg config.CombatConfig, logger *zap.Logger) *DamageComputer {
	return &DamageComputer{roller: roller, cfg: cfg, logger: logger}
}

// unarmedDice returns the unarmed damage expression for a monk of level.
func unarmedDice(monkLevel int) string {
	switch {
	case monkLevel <= 0:
		return "1d3"
	case monkLevel < 4:
		return "1d6"
	case monkLevel < 8:
		return "1d8"
	case monkLevel < 12:
		return "1d10"
	case monkLevel < 16:
		return "2d6"
	case monkLevel < 20:
		return "2d8"
	default:
		return "2d10"
	}
}

// abilityDamage returns the ability bonus to damage for weapon w in mode.
func abilityDamage(a *Combatant, w *Weapon, mode Mode) int {
	str := a.StrMod()
	ability := "str"
	if w != nil && w.Ranged {
		switch w.Family {
		case "thrown", "sling", "composite_bow":
			ability = "str"
		default:
			ability = "none"
		}
	}
	if w != nil && w.DamageAbility != "" {
		ability = w.DamageAbility
	}
	switch ability {
	case "none":
		return 0
	case "dex":
		return a.DexMod()
	}
	if str <= 0 {
		return str
	}
	switch {
	case mode == ModeOffhand:
		return str / 2
	case w != nil && w.TwoHanded:
		return str * 3 / 2
	default:
		return str
	}
}

// applyPosition amplifies damage against a vulnerable defender.
func applyPosition(dam int, p Position) int {
	switch p {
	case Sitting, Prone:
		return dam + 4
	case Resting:
		return dam + 6
	case Sleeping:
		return dam * 2
	case Stunned:
		return dam * 5 / 4
	case Incapacitated:
		return dam * 3 / 2
	case MortallyWounded:
		return dam * 7 / 4
	default:
		return dam
	}
}

// CritMultiplier returns the critical multiplier a wields w with, in [2, 6].
func CritMultiplier(a *Combatant, w *Weapon) int {
	m := 2
	if w != nil && w.CritMultiplier > 0 {
		m = w.CritMultiplier
	}
	if a.HasFeat(FeatIncreasedMultiplier) {
		m++
	}
	return min(max(m, 2), 6)
}

func (dc *DamageComputer) roll(expr string) int {
	if expr == "" {
		return 0
	}
	res, err := dc.roller.RollExpr(expr)
	if err != nil {
		dc.logger.Warn("bad damage expression", zap.String("expression", expr), zap.Error(err))
		return 0
	}
	return res.Total()
}

// Compute returns the raw damage of a landed attack with weapon w.
// Position modifiers apply before the critical multiplier and the result is
// floored at zero; critical-only dice, sneak attack and dirty fighting are
// added after it.
//
// Precondition: ac.Attacker and ac.Defender must be non-nil.
// Postcondition: 1 <= Total <= the configured damage cap.
func (dc *DamageComputer) Compute(ac AttackContext, w *Weapon, crit bool) Damage {
	a, d := ac.Attacker, ac.Defender
	dmg := Damage{Multiplier: 1, Type: w.damageType()}

	expr := unarmedDice(a.MonkLevel)
	if w != nil && w.Damage != "" {
		expr = w.Damage
	}
	dmg.Dice = dc.roll(expr)
	dmg.Ability = abilityDamage(a, w, ac.Mode)
	if w != nil {
		dmg.Flat += w.Enhancement
	}
	if a.hasFlag(effect.FlagPowerAttack) && ac.Mode.Melee() {
		dmg.Flat += 5
	}
	if a.Effects != nil {
		for _, c := range a.Effects.Contributions(effect.StatDamage) {
			dmg.Flat += c.Value
		}
	}

	dmg.PreCritical = max(applyPosition(dmg.Dice+dmg.Ability+dmg.Flat, d.Position()), 0)
	total := dmg.PreCritical
	if crit {
		dmg.Multiplier = CritMultiplier(a, w)
		total *= dmg.Multiplier
		if w != nil {
			dmg.AddOns += dc.roll(w.BurstDice)
		}
		if a.HasFeat(FeatOverwhelmingCritical) {
			dmg.AddOns += dc.roller.Dice(3, 2)
		}
	}
	if a.SneakDice > 0 && (d.FlatFooted() || ac.Flanked || d.Helpless()) {
		dmg.AddOns += dc.roller.Dice(a.SneakDice, 6)
	}
	if a.HasFeat(FeatDirtyFighting) {
		dmg.AddOns += dc.roller.Dice(2, 3)
	}
	total += dmg.AddOns

	total = max(total, 1)
	if dc.cfg.DamageCap > 0 && total > dc.cfg.DamageCap {
		total = dc.cfg.DamageCap
		dmg.Capped = true
	}
	dmg.Total = total
	return dmg
}
