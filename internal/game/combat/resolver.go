package combat

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/bonus"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// AttackContext describes one attack. It lives for a single resolution.
type AttackContext struct {
	Attacker *Combatant
	Defender *Combatant
	Mode     Mode
	Penalty  int
	Phase    int
	Touch    bool
	Flanked  bool
}

// AttackResult holds the outcome of a single attack roll.
type AttackResult struct {
	Outcome        Outcome
	Natural        int
	Bonus          int
	Total          int
	ArmorClass     int
	Threat         bool
	ConfirmNatural int
	ConfirmTotal   int
	Interception   Interception
	// Invalid is set when either participant was absent or dead.
	Invalid bool
}

var attackBounds = bonus.Bounds{Min: -60, Max: 60}

// Resolver resolves attack rolls against armor class.
type Resolver struct {
	roller *dice.Roller
	cfg    config.CombatConfig
	logger *zap.Logger
}

// NewResolver creates a Resolver.
//
// Precondition: roller and logger must be non-nil.
func NewResolver(roller *dice.Roller, cfg config.CombatConfig, logger *zap.Logger) *Resolver {
	return &Resolver{roller: roller, cfg: cfg, logger: logger}
}

// AttackTally returns the typed contributions to a's attack bonus for mode,
// excluding base attack bonus and ability.
func (r *Resolver) AttackTally(a *Combatant, mode Mode, penalty int) *bonus.Tally {
	t := bonus.New()
	if w := a.WeaponFor(mode); w != nil && w.Enhancement != 0 {
		t.Add(bonus.Enhancement, w.Enhancement)
	}
	if a.Effects != nil {
		t.AddAll(a.Effects.Contributions(effect.StatAttack))
	}
	t.Add(bonus.Size, a.Size.Modifier())
	if mode.Melee() {
		switch a.Position() {
		case Prone:
			t.Add(bonus.Circumstance, -4)
		case Sitting, Resting:
			t.Add(bonus.Circumstance, -2)
		}
	}
	if a.hasFlag(effect.FlagPowerAttack) && mode.Melee() {
		t.Add(bonus.Undefined, -5)
	}
	if a.hasFlag(effect.FlagCombatExpertise) {
		t.Add(bonus.Undefined, -5)
	}
	if a.hasFlag(effect.FlagFatigued) {
		t.Add(bonus.Undefined, -2)
	}
	t.Add(bonus.Undefined, penalty)
	return t
}

// AttackBonus returns a's total attack bonus for mode with the route penalty applied.
//
// Postcondition: Result lies within the attack bounds.
func (r *Resolver) AttackBonus(a *Combatant, mode Mode, penalty int) int {
	return attackBounds.Clamp(a.BAB + abilityToHit(a, mode) + r.AttackTally(a, mode, penalty).Total())
}

func abilityToHit(a *Combatant, mode Mode) int {
	if mode == ModeRanged {
		return a.DexMod()
	}
	if w := a.WeaponFor(mode); w == nil || w.Finesse {
		if a.HasFeat(FeatWeaponFinesse) {
			return max(a.StrMod(), a.DexMod())
		}
	}
	return a.StrMod()
}

// positionACPenalty is the armor class penalty for a defender's position.
func positionACPenalty(p Position) int {
	switch {
	case p <= Incapacitated:
		return -8
	case p <= Sitting:
		return -2
	default:
		return 0
	}
}

// ArmorClass returns d's effective armor class. Touch attacks ignore armor,
// shield and natural armor; flat-footed defenders lose dexterity and dodge.
//
// Postcondition: Result <= the configured armor class cap.
func (r *Resolver) ArmorClass(d *Combatant, touch bool) int {
	t := bonus.New(
		bonus.Contribution{Type: bonus.Armor, Value: d.Armor.Armor},
		bonus.Contribution{Type: bonus.Shield, Value: d.Armor.Shield},
		bonus.Contribution{Type: bonus.NaturalArmor, Value: d.Armor.NaturalArmor},
		bonus.Contribution{Type: bonus.Deflection, Value: d.Armor.Deflection},
		bonus.Contribution{Type: bonus.Size, Value: d.Size.Modifier()},
		bonus.Contribution{Type: bonus.Circumstance, Value: positionACPenalty(d.Position())},
	)
	if d.Effects != nil {
		t.AddAll(d.Effects.Contributions(effect.StatArmorClass))
	}
	if d.hasFlag(effect.FlagCombatExpertise) {
		t.Add(bonus.Dodge, 5)
	}

	dex := d.DexMod()
	if d.Armor.DexCap > 0 {
		dex = min(dex, d.Armor.DexCap)
	}
	skip := []bonus.Type{}
	if touch {
		skip = append(skip, bonus.Armor, bonus.Shield, bonus.NaturalArmor)
	}
	if d.FlatFooted() {
		dex = min(dex, 0)
		skip = append(skip, bonus.Dodge)
	}
	ac := 10 + dex + t.TotalExcept(skip...)
	if r.cfg.ArmorClassCap > 0 {
		ac = min(ac, r.cfg.ArmorClassCap)
	}
	return ac
}

// ThreatFloor returns the lowest natural roll that threatens a critical, or
// 21 when the defender cannot be critically hit.
func (r *Resolver) ThreatFloor(a *Combatant, w *Weapon, d *Combatant) int {
	if d != nil && d.hasFlag(effect.FlagCritImmune) {
		return 21
	}
	width := 1
	if w != nil && w.ThreatRange > 1 {
		width = w.ThreatRange
	}
	if a.HasFeat(FeatImprovedCritical) {
		width *= 2
	}
	if a.HasFeat(FeatEpicCritical) {
		width++
	}
	return max(21-width, 2)
}

// Hits applies the d20 rule: natural 20 always hits, natural 1 always misses
// unless the defender is helpless, otherwise bonus+natural must meet ac.
func Hits(natural, attackBonus, ac int, helpless bool) bool {
	switch {
	case natural >= 20:
		return true
	case natural <= 1 && !helpless:
		return false
	default:
		return natural+attackBonus >= ac
	}
}

// Resolve resolves one attack. An absent or dead participant yields a silent
// Miss; a reactive defense yields a Miss with Interception set.
//
// Postcondition: CriticalHit implies Threat and a confirmed second roll.
func (r *Resolver) Resolve(ctx context.Context, ac AttackContext) AttackResult {
	if !ac.Attacker.Alive() || !ac.Defender.Alive() {
		return AttackResult{Outcome: Miss, Invalid: true}
	}
	_, span := tracer.Start(ctx, "combat.attack", trace.WithAttributes(
		attribute.String("attacker", ac.Attacker.ID),
		attribute.String("defender", ac.Defender.ID),
		attribute.String("mode", ac.Mode.String()),
	))
	defer span.End()

	res := r.resolve(ac)
	span.SetAttributes(
		attribute.String("outcome", res.Outcome.String()),
		attribute.Int("total", res.Total),
		attribute.Int("armor_class", res.ArmorClass),
	)
	r.logger.Debug("attack resolved",
		zap.String("attacker", ac.Attacker.ID),
		zap.String("defender", ac.Defender.ID),
		zap.Stringer("mode", ac.Mode),
		zap.Int("natural", res.Natural),
		zap.Int("total", res.Total),
		zap.Int("ac", res.ArmorClass),
		zap.Stringer("outcome", res.Outcome),
		zap.Stringer("interception", res.Interception),
	)
	return res
}

func (r *Resolver) resolve(ac AttackContext) AttackResult {
	a, d := ac.Attacker, ac.Defender
	if ic := r.interceptBeforeRoll(ac); ic != InterceptNone {
		return AttackResult{Outcome: Miss, Interception: ic}
	}

	atk := r.AttackBonus(a, ac.Mode, ac.Penalty)
	armor := r.ArmorClass(d, ac.Touch)
	nat := r.roller.D20()
	res := AttackResult{Natural: nat, Bonus: atk, Total: nat + atk, ArmorClass: armor}
	helpless := d.Helpless()
	if !Hits(nat, atk, armor, helpless) {
		res.Outcome = Miss
		return res
	}
	if ic := r.interceptAfterHit(ac, res.Total); ic != InterceptNone {
		res.Outcome = Miss
		res.Interception = ic
		return res
	}

	res.Outcome = Hit
	if nat >= r.ThreatFloor(a, a.WeaponFor(ac.Mode), d) {
		res.Threat = true
		res.ConfirmNatural = r.roller.D20()
		res.ConfirmTotal = res.ConfirmNatural + atk
		if Hits(res.ConfirmNatural, atk, armor, helpless) {
			res.Outcome = CriticalHit
		}
	}
	return res
}
