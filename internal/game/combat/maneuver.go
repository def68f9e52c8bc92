package combat

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/bonus"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// ManeuverKind is a non-damage combat maneuver.
type ManeuverKind int

const (
	GrappleInitiate ManeuverKind = iota
	GrappleMaintain
	Disarm
	Pin
	Trip
)

var maneuverNames = [...]string{"grapple", "grapple_maintain", "disarm", "pin", "trip"}

// String returns the snake_case maneuver name.
func (k ManeuverKind) String() string {
	if k < 0 || int(k) >= len(maneuverNames) {
		return "unknown"
	}
	return maneuverNames[k]
}

// ParseManeuver resolves a maneuver name.
func ParseManeuver(s string) (ManeuverKind, bool) {
	for i, n := range maneuverNames {
		if n == s {
			return ManeuverKind(i), true
		}
	}
	return GrappleInitiate, false
}

func (k ManeuverKind) grapple() bool {
	return k == GrappleInitiate || k == GrappleMaintain || k == Pin
}

// ManeuverResult is the outcome of one maneuver attempt.
// A non-nil Refusal means nothing was rolled.
type ManeuverResult struct {
	Kind    ManeuverKind
	Refusal *Refusal
	Natural int
	CMB     int
	CMD     int
	// Margin is positive on success.
	Margin   int
	Success  bool
	Reversed bool
	// RawDamage is unarmed damage from a maintained grapple, not yet mitigated.
	RawDamage int
	// Disarmed is the weapon knocked from the target.
	Disarmed *Weapon
	// Invalid is set when a participant is absent, dead or elsewhere. Nothing
	// was rolled or spent.
	Invalid bool
}

var (
	grappledDef = &effect.Def{ID: "grappled", Name: "Grappled", DurationType: effect.DurationUntilRemoved, Flags: []effect.Flag{effect.FlagGrappled}}
	pinnedDef   = &effect.Def{ID: "pinned", Name: "Pinned", DurationType: effect.DurationUntilRemoved, Flags: []effect.Flag{effect.FlagPinned, effect.FlagPreventsAction}}
)

// ManeuverEngine resolves contested maneuver rolls.
type ManeuverEngine struct {
	roller *dice.Roller
	damage *DamageComputer
	logger *zap.Logger
}

// NewManeuverEngine creates a ManeuverEngine.
func NewManeuverEngine(roller *dice.Roller, damage *DamageComputer, logger *zap.Logger) *ManeuverEngine {
	return &ManeuverEngine{roller: roller, damage: damage, logger: logger}
}

func maneuverFeat(kind ManeuverKind) Feat {
	switch kind {
	case Disarm:
		return FeatImprovedDisarm
	case Trip:
		return FeatImprovedTrip
	default:
		return FeatImprovedGrapple
	}
}

// CMB returns c's combat maneuver bonus for kind.
func (m *ManeuverEngine) CMB(c *Combatant, kind ManeuverKind) int {
	ability := c.StrMod()
	if c.Size <= SizeTiny {
		ability = c.DexMod()
	}
	t := bonus.New(bonus.Contribution{Type: bonus.Size, Value: c.Size.ManeuverModifier()})
	if c.HasFeat(maneuverFeat(kind)) {
		t.Add(bonus.Competence, 4)
	}
	if kind == GrappleMaintain {
		t.Add(bonus.Circumstance, 5)
	}
	if kind == Disarm && c.Mainhand == nil {
		t.Add(bonus.Circumstance, -4)
	}
	if c.Effects != nil {
		t.AddAll(c.Effects.Contributions(effect.StatCMB))
	}
	return c.BAB + ability + t.Total()
}

// CMD returns c's combat maneuver defense against kind.
func (m *ManeuverEngine) CMD(c *Combatant, kind ManeuverKind) int {
	dex := c.DexMod()
	if c.FlatFooted() {
		dex = min(dex, 0)
	}
	t := bonus.New(bonus.Contribution{Type: bonus.Size, Value: c.Size.ManeuverModifier()})
	if c.HasFeat(maneuverFeat(kind)) {
		t.Add(bonus.Competence, 4)
	}
	if c.Effects != nil {
		t.AddAll(c.Effects.Contributions(effect.StatCMD))
	}
	return 10 + c.BAB + c.StrMod() + dex + t.Total()
}

// check returns the refusal for an attempt that breaks the rules, or nil.
func (m *ManeuverEngine) check(initiator, target *Combatant, kind ManeuverKind) *Refusal {
	switch {
	case initiator.Helpless():
		return refuse(RuleViolation, "you are in no position to do that")
	case initiator.hasFlag(effect.FlagPreventsAction):
		return refuse(RuleViolation, "you cannot act")
	case initiator.grappledBy != "" && !kind.grapple():
		return refuse(RuleViolation, "you are held fast")
	}
	switch kind {
	case GrappleInitiate:
		if initiator.grappling != "" {
			return refuse(RuleViolation, "you are already grappling")
		}
	case GrappleMaintain, Pin:
		if initiator.grappling != target.ID {
			return refuse(RuleViolation, "you are not grappling "+target.Name)
		}
	case Disarm:
		if target.Mainhand == nil {
			return refuse(RuleViolation, target.Name+" is unarmed")
		}
	case Trip:
		if target.Defenses.Legless || target.Defenses.Flying || target.hasFlag(effect.FlagFlying) {
			return refuse(RuleViolation, target.Name+" cannot be tripped")
		}
		if target.Position() == Prone {
			return refuse(RuleViolation, target.Name+" is already down")
		}
	}
	return nil
}

// Attempt resolves one maneuver and applies its non-damage consequences.
//
// Postcondition: Refusal != nil, or Success == (Margin > 0). A natural 20
// yields Margin >= 1 and a natural 1 yields Margin <= -1.
func (m *ManeuverEngine) Attempt(ctx context.Context, initiator, target *Combatant, kind ManeuverKind, extra int) ManeuverResult {
	res := ManeuverResult{Kind: kind}
	if !initiator.Alive() || !target.Alive() {
		res.Invalid = true
		return res
	}
	if res.Refusal = m.check(initiator, target, kind); res.Refusal != nil {
		return res
	}
	ctx, span := tracer.Start(ctx, "combat.maneuver", trace.WithAttributes(
		attribute.String("initiator", initiator.ID),
		attribute.String("target", target.ID),
		attribute.String("kind", kind.String()),
	))
	defer span.End()

	res.CMB = m.CMB(initiator, kind) + extra
	res.CMD = m.CMD(target, kind)
	res.Natural = m.roller.D20()
	res.Margin = res.CMB + res.Natural - res.CMD
	switch res.Natural {
	case 20:
		res.Margin = max(res.Margin, 1)
	case 1:
		res.Margin = min(res.Margin, -1)
	}
	res.Success = res.Margin > 0
	m.apply(ctx, initiator, target, &res)

	span.SetAttributes(attribute.Int("margin", res.Margin), attribute.Bool("success", res.Success))
	m.logger.Debug("maneuver resolved",
		zap.String("initiator", initiator.ID),
		zap.String("target", target.ID),
		zap.Stringer("kind", kind),
		zap.Int("natural", res.Natural),
		zap.Int("cmb", res.CMB),
		zap.Int("cmd", res.CMD),
		zap.Int("margin", res.Margin),
	)
	return res
}

func (m *ManeuverEngine) apply(ctx context.Context, initiator, target *Combatant, res *ManeuverResult) {
	switch res.Kind {
	case GrappleInitiate:
		if res.Success {
			hold(initiator, target)
		}
	case GrappleMaintain:
		if res.Success {
			dmg := m.damage.Compute(AttackContext{Attacker: initiator, Defender: target, Mode: ModeManeuver}, nil, false)
			res.RawDamage = dmg.Total
			return
		}
		release(initiator, target)
		hold(target, initiator)
		res.Reversed = true
	case Pin:
		if res.Success {
			_ = target.effects().Apply(pinnedDef, 1, -1)
		}
	case Disarm:
		if res.Success {
			res.Disarmed = target.Mainhand
			target.Mainhand = nil
		}
	case Trip:
		switch {
		case res.Success:
			_ = target.Transition(ctx, EventTrip)
		case res.Margin <= -10:
			_ = initiator.Transition(ctx, EventTrip)
		}
	}
}

func hold(holder, held *Combatant) {
	holder.grappling = held.ID
	held.grappledBy = holder.ID
	_ = held.effects().Apply(grappledDef, 1, -1)
}

func release(holder, held *Combatant) {
	holder.grappling = ""
	held.grappledBy = ""
	if held.Effects != nil {
		held.Effects.Remove(grappledDef.ID)
		held.Effects.Remove(pinnedDef.ID)
	}
}

// releaseAll breaks every grapple c takes part in.
func releaseAll(c *Combatant, roster *Roster) {
	if other, ok := roster.Get(c.grappling); ok {
		release(c, other)
	}
	if other, ok := roster.Get(c.grappledBy); ok {
		release(other, c)
	}
	c.grappling, c.grappledBy = "", ""
}
