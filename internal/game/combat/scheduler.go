package combat

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// TickOutcome describes what one scheduler tick did.
type TickOutcome int

const (
	// TickDispatched ran the phase's attacks (possibly none).
	TickDispatched TickOutcome = iota
	// TickHeld skipped dispatch but kept the schedule.
	TickHeld
	// TickDequeued disengaged the combatant.
	TickDequeued
	// TickAbsent means the combatant was not engaged.
	TickAbsent
)

var tickNames = [...]string{"dispatched", "held", "dequeued", "absent"}

// String returns the tick outcome name.
func (t TickOutcome) String() string { return tickNames[t] }

// dispatcher executes one attack; the Engine implements it.
type dispatcher interface {
	dispatch(ctx context.Context, attacker, defender *Combatant, pa PlannedAttack) AttackReport
	disengage(ctx context.Context, c *Combatant)
}

// Scheduler advances one engaged combatant through one phase.
type Scheduler struct {
	registry *Registry
	router   *Router
	d        dispatcher
	logger   *zap.Logger
}

// newScheduler creates a Scheduler.
func newScheduler(registry *Registry, router *Router, d dispatcher, logger *zap.Logger) *Scheduler {
	return &Scheduler{registry: registry, router: router, d: d, logger: logger}
}

// Tick runs phase for c. A missing or dead target, a different room or a
// downed combatant (health <= 0 or stunned and worse) dequeues it;
// action-preventing effects and sleep hold it. Phase 1 resets reactions and
// action economy, ticks effects and plans the round.
//
// Precondition: 1 <= phase <= phases per round.
func (s *Scheduler) Tick(ctx context.Context, c *Combatant, phase int) TickOutcome {
	e, ok := s.registry.entry(c.ID)
	if !ok {
		return TickAbsent
	}
	target, ok := s.registry.Get(c.Target)
	if !ok || !target.Alive() || !c.Alive() || c.Downed() || c.Room != target.Room {
		s.d.disengage(ctx, c)
		return TickDequeued
	}

	if phase == 1 {
		c.resetRound()
		if c.Effects != nil {
			if expired := c.Effects.Tick(); len(expired) > 0 {
				s.logger.Debug("effects expired", zap.String("combatant", c.ID), zap.Strings("effects", expired))
			}
		}
		e.plan = s.router.Plan(c)
		e.rangedCancelled = false
	}

	if c.hasFlag(effect.FlagPreventsAction) || c.Position() == Sleeping {
		return TickHeld
	}

	for _, f := range s.registry.drain(c.ID) {
		if !s.engaged(c) {
			break
		}
		target, _ := s.registry.Get(c.Target)
		s.d.dispatch(ctx, c, target, PlannedAttack{Mode: f.Mode, Penalty: f.Penalty, Phase: phase, Label: f.Reason})
	}

	for _, pa := range e.plan {
		if pa.Phase != phase {
			continue
		}
		if !s.engaged(c) {
			break
		}
		if pa.Mode == ModeRanged && e.rangedCancelled {
			continue
		}
		target, _ := s.registry.Get(c.Target)
		s.d.dispatch(ctx, c, target, pa)
	}
	c.Acted = true
	return TickDispatched
}

// engaged reports whether c is still registered with a live registered target.
func (s *Scheduler) engaged(c *Combatant) bool {
	if !s.registry.Contains(c.ID) || !c.Alive() {
		return false
	}
	t, ok := s.registry.Get(c.Target)
	return ok && t.Alive() && t.Room == c.Room
}
