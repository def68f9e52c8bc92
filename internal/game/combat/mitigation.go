package combat

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// Incoming is damage entering the mitigation pipeline.
type Incoming struct {
	Attacker   *Combatant // nil for environmental damage
	Defender   *Combatant
	Amount     int
	DamageType string
	Origin     Origin
	// Magic marks enchanted weapons and magical sources.
	Magic    bool
	Material string
	// IgnoreConcealment skips the concealment roll.
	IgnoreConcealment bool
}

func (h *Incoming) physical() bool { return h.Origin == OriginWeapon }

// Absorption records what one stage took from a hit. Amount is negative when
// the stage amplified damage.
type Absorption struct {
	Stage     string
	Amount    int
	Remaining int
}

// MitigationResult is the outcome of a pipeline run.
//
// Invariant: Remaining == max(0, Raw - sum of Absorptions[].Amount).
type MitigationResult struct {
	Raw         int
	Remaining   int
	Absorptions []Absorption
	// HaltedBy names the stage that drove remaining to zero, if any.
	HaltedBy  string
	ManaSpent int
}

// Stage is one ordered step of the mitigation pipeline.
type Stage interface {
	Name() string
	// Mitigate returns how much of remaining the stage absorbs.
	//
	// Precondition: remaining > 0.
	Mitigate(h *Incoming, remaining int) int
}

// Pipeline runs stages in order and halts once nothing remains.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
}

// NewPipeline creates a Pipeline over stages.
func NewPipeline(logger *zap.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, logger: logger}
}

// DefaultStages returns the canonical stage order: concealment, evasive leap,
// decoy images, energy absorption, resistance, damage reduction, wards and
// mana shield.
func DefaultStages(roller *dice.Roller, cfg config.CombatConfig) []Stage {
	return []Stage{
		concealmentStage{roller: roller, cap: cfg.ConcealmentCap},
		leapStage{roller: roller},
		decoyStage{roller: roller},
		absorbStage{cap: cfg.EnergyAbsorbCap},
		resistanceStage{},
		reductionStage{cap: cfg.DamageReductionCap},
		wardStage{stoneskinCap: cfg.StoneskinCap, epicCap: cfg.EpicWardCap},
		manaShieldStage{},
	}
}

// Apply runs h through the pipeline.
//
// Postcondition: after each stage Remaining == max(0, Raw - absorbed so far);
// no stage runs once Remaining is 0.
func (p *Pipeline) Apply(ctx context.Context, h Incoming) MitigationResult {
	_, span := tracer.Start(ctx, "combat.mitigate", trace.WithAttributes(
		attribute.String("defender", h.Defender.ID),
		attribute.Int("raw", h.Amount),
		attribute.String("damage_type", h.DamageType),
	))
	defer span.End()

	res := MitigationResult{Raw: h.Amount, Remaining: max(h.Amount, 0)}
	absorbed := 0
	manaBefore := h.Defender.Mana
	for _, s := range p.stages {
		if res.Remaining <= 0 {
			break
		}
		amt := min(s.Mitigate(&h, res.Remaining), res.Remaining)
		absorbed += amt
		res.Remaining = max(0, h.Amount-absorbed)
		res.Absorptions = append(res.Absorptions, Absorption{Stage: s.Name(), Amount: amt, Remaining: res.Remaining})
		span.AddEvent("absorbed", trace.WithAttributes(
			attribute.String("stage", s.Name()),
			attribute.Int("amount", amt),
			attribute.Int("remaining", res.Remaining),
		))
		if amt != 0 {
			p.logger.Debug("damage mitigated",
				zap.String("defender", h.Defender.ID),
				zap.String("stage", s.Name()),
				zap.Int("absorbed", amt),
				zap.Int("remaining", res.Remaining),
			)
		}
		if res.Remaining == 0 {
			res.HaltedBy = s.Name()
		}
	}
	res.ManaSpent = manaBefore - h.Defender.Mana
	span.SetAttributes(attribute.Int("remaining", res.Remaining))
	return res
}

type concealmentStage struct {
	roller *dice.Roller
	cap    int
}

func (concealmentStage) Name() string { return "concealment" }

func (s concealmentStage) Mitigate(h *Incoming, remaining int) int {
	if !h.physical() || h.IgnoreConcealment {
		return 0
	}
	if h.Attacker != nil && h.Attacker.hasFlag(effect.FlagTrueSeeing) {
		return 0
	}
	d := h.Defender
	chance := d.Defenses.Concealment
	if d.Effects != nil {
		chance = max(chance, d.Effects.Concealment())
	}
	if s.cap > 0 {
		chance = min(chance, s.cap)
	}
	if s.roller.Chance(chance) {
		return remaining
	}
	return 0
}

type leapStage struct {
	roller *dice.Roller
}

func (leapStage) Name() string { return "evasive leap" }

func (s leapStage) Mitigate(h *Incoming, remaining int) int {
	if !h.physical() || !h.Defender.HasFeat(FeatEvasiveLeap) || h.Defender.Helpless() {
		return 0
	}
	if s.roller.Between(1, 5) == 1 {
		return remaining
	}
	return 0
}

type decoyStage struct {
	roller *dice.Roller
}

func (decoyStage) Name() string { return "decoy images" }

func (s decoyStage) Mitigate(h *Incoming, remaining int) int {
	if !h.physical() || h.Defender.Effects == nil {
		return 0
	}
	a, ok := h.Defender.Effects.Decoys()
	if !ok || s.roller.Between(0, a.Images) == 0 {
		return 0
	}
	a.Images--
	if a.Images == 0 {
		h.Defender.Effects.Remove(a.Def.ID)
	}
	return remaining
}

type absorbStage struct {
	cap int
}

func (absorbStage) Name() string { return "energy absorption" }

func (s absorbStage) Mitigate(h *Incoming, _ int) int {
	if PhysicalType(h.DamageType) {
		return 0
	}
	amt := h.Defender.Defenses.Absorb[h.DamageType]
	if s.cap > 0 {
		amt = min(amt, s.cap)
	}
	return max(amt, 0)
}

type resistanceStage struct{}

func (resistanceStage) Name() string { return "resistance" }

func (resistanceStage) Mitigate(h *Incoming, remaining int) int {
	d := h.Defender
	pct := d.Defenses.Resist[h.DamageType]
	if d.Effects != nil {
		pct += d.Effects.Resistance(h.DamageType)
	}
	pct = min(pct, 100)
	return remaining * pct / 100
}

type reductionStage struct {
	cap int
}

func (reductionStage) Name() string { return "damage reduction" }

func (s reductionStage) Mitigate(h *Incoming, remaining int) int {
	d := h.Defender
	absorbed := 0
	incorporeal := d.Defenses.Incorporeal || d.hasFlag(effect.FlagIncorporeal)
	switch {
	case incorporeal && h.DamageType == DamageForce:
		absorbed -= remaining
	case incorporeal && h.physical() && !h.Magic:
		absorbed += remaining / 2
	}
	left := remaining - absorbed
	if d.hasFlag(effect.FlagSanctuary) {
		half := left / 2
		absorbed += half
		left -= half
	}
	if PhysicalType(h.DamageType) && d.Defenses.DR > 0 && !s.bypassed(h) {
		dr := d.Defenses.DR
		if s.cap > 0 {
			dr = min(dr, s.cap)
		}
		absorbed += min(dr, left)
	}
	return absorbed
}

func (s reductionStage) bypassed(h *Incoming) bool {
	by := h.Defender.Defenses.DRBypass
	switch {
	case by == "":
		return false
	case by == "magic":
		return h.Magic
	default:
		return h.Material == by
	}
}

type wardStage struct {
	stoneskinCap, epicCap int
}

func (wardStage) Name() string { return "ward" }

func (s wardStage) Mitigate(h *Incoming, remaining int) int {
	d := h.Defender
	if d.Effects == nil || !PhysicalType(h.DamageType) {
		return 0
	}
	absorbed := 0
	for _, a := range d.Effects.Wards() {
		if remaining-absorbed <= 0 {
			break
		}
		if a.Def.Ward.BypassedByMagic && h.Magic {
			continue
		}
		perHit := a.Def.Ward.PerHitCap
		if perHit <= 0 {
			perHit = s.stoneskinCap
			if a.Def.Ward.Epic {
				perHit = s.epicCap
			}
		}
		absorbed += a.Absorb(remaining-absorbed, perHit)
		if a.WardRemaining == 0 {
			d.Effects.Remove(a.Def.ID)
		}
	}
	return absorbed
}

type manaShieldStage struct{}

func (manaShieldStage) Name() string { return "mana shield" }

func (manaShieldStage) Mitigate(h *Incoming, remaining int) int {
	d := h.Defender
	if !d.hasFlag(effect.FlagManaShield) || d.Mana <= 0 {
		return 0
	}
	spend := min(remaining, d.Mana)
	d.Mana -= spend
	return spend
}
