package combat

import (
	"context"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// ProcContext is passed to item procedures. Procs may add to ExtraDamage on
// hit and crit triggers; it joins the raw damage before mitigation.
type ProcContext struct {
	Attacker    *Combatant
	Defender    *Combatant
	Weapon      *Weapon
	Damage      int
	ExtraDamage int
	Roller      *dice.Roller
	Saves       SaveResolver
	Effects     EffectInvoker
}

// Proc is an item special procedure. It reacts to the triggers whose
// interfaces it implements.
type Proc interface {
	Name() string
}

// OnHit fires when the bearer's attack lands.
type OnHit interface {
	OnHit(ctx context.Context, pc *ProcContext)
}

// OnCrit fires when the bearer's attack is a confirmed critical.
type OnCrit interface {
	OnCrit(ctx context.Context, pc *ProcContext)
}

// OnParry fires on the defender's weapon when it parries.
type OnParry interface {
	OnParry(ctx context.Context, pc *ProcContext)
}

// OnGlance fires when the bearer's hit is fully mitigated.
type OnGlance interface {
	OnGlance(ctx context.Context, pc *ProcContext)
}

// OnDodge fires on the defender's weapon when an attack misses it.
type OnDodge interface {
	OnDodge(ctx context.Context, pc *ProcContext)
}

type trigger int

const (
	triggerHit trigger = iota
	triggerCrit
	triggerParry
	triggerGlance
	triggerDodge
)

func fireProcs(ctx context.Context, w *Weapon, t trigger, pc *ProcContext) {
	if w == nil {
		return
	}
	for _, p := range w.Procs {
		switch t {
		case triggerHit:
			if h, ok := p.(OnHit); ok {
				h.OnHit(ctx, pc)
			}
		case triggerCrit:
			if h, ok := p.(OnCrit); ok {
				h.OnCrit(ctx, pc)
			}
		case triggerParry:
			if h, ok := p.(OnParry); ok {
				h.OnParry(ctx, pc)
			}
		case triggerGlance:
			if h, ok := p.(OnGlance); ok {
				h.OnGlance(ctx, pc)
			}
		case triggerDodge:
			if h, ok := p.(OnDodge); ok {
				h.OnDodge(ctx, pc)
			}
		}
	}
}

// DamageProc adds bonus dice on every hit, e.g. a flaming blade.
type DamageProc struct {
	Label string
	Dice  dice.Expression
}

// Name returns the proc label.
func (p DamageProc) Name() string { return p.Label }

// OnHit rolls the bonus dice into pc.ExtraDamage.
func (p DamageProc) OnHit(_ context.Context, pc *ProcContext) {
	pc.ExtraDamage += pc.Roller.Roll(p.Dice).Total()
}

// CritEffectProc applies an effect to the defender on a confirmed critical
// unless the defender saves.
type CritEffectProc struct {
	Label    string
	EffectID string
	Rounds   int
	SaveKind string
	SaveDC   int
}

// Name returns the proc label.
func (p CritEffectProc) Name() string { return p.Label }

// OnCrit applies the effect.
func (p CritEffectProc) OnCrit(ctx context.Context, pc *ProcContext) {
	if p.SaveKind != "" && pc.Saves.Save(ctx, pc.Defender, p.SaveKind, p.SaveDC) {
		return
	}
	_ = pc.Effects.Invoke(ctx, p.EffectID, pc.Attacker, pc.Defender, p.Rounds)
}

// RiposteProc applies an effect to the attacker when the bearer parries.
type RiposteProc struct {
	Label    string
	EffectID string
	Rounds   int
}

// Name returns the proc label.
func (p RiposteProc) Name() string { return p.Label }

// OnParry applies the effect to the attacker.
func (p RiposteProc) OnParry(ctx context.Context, pc *ProcContext) {
	_ = pc.Effects.Invoke(ctx, p.EffectID, pc.Defender, pc.Attacker, p.Rounds)
}
