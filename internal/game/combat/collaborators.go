package combat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// Narration is one message for the observers in a room. Audience is captured
// before the narrated event mutates state.
type Narration struct {
	Room     string
	Audience []string
	ActorID  string
	TargetID string
	Text     string
}

// Narrator renders combat messages.
type Narrator interface {
	Narrate(ctx context.Context, n Narration)
}

// Mover answers movement questions and performs relocation.
type Mover interface {
	// CanRetreat returns the room reached by leaving room in dir ("" = any exit).
	CanRetreat(ctx context.Context, id, room, dir string) (string, bool)
	Relocate(ctx context.Context, id, room string) error
}

// SaveResolver resolves saving throws for procs.
type SaveResolver interface {
	Save(ctx context.Context, c *Combatant, kind string, dc int) bool
}

// EffectInvoker applies a named effect to a combatant.
type EffectInvoker interface {
	Invoke(ctx context.Context, effectID string, source, target *Combatant, rounds int) error
}

// Economy awards experience and produces loot.
type Economy interface {
	GrantExperience(ctx context.Context, c *Combatant, amount int)
	GenerateLoot(ctx context.Context, victim, killer *Combatant) error
}

// KillRecord describes one confirmed death.
type KillRecord struct {
	ID         uuid.UUID
	KillerID   string
	VictimID   string
	VictimName string
	Room       string
	Player     bool
	Experience int
	At         time.Duration // simulated time
}

// Persister stores combatants and kills.
type Persister interface {
	PersistCombatant(ctx context.Context, c *Combatant) error
	RecordKill(ctx context.Context, k KillRecord) error
}

// QuestTracker is notified of kills.
type QuestTracker interface {
	RecordKill(ctx context.Context, killer, victim *Combatant)
}

// Collaborators bundles the outbound interfaces. Nil fields get no-op defaults.
type Collaborators struct {
	Narrator Narrator
	Mover    Mover
	Saves    SaveResolver
	Effects  EffectInvoker
	Economy  Economy
	Persist  Persister
	Quests   QuestTracker
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Narrator == nil {
		c.Narrator = nopNarrator{}
	}
	if c.Mover == nil {
		c.Mover = nopMover{}
	}
	if c.Saves == nil {
		c.Saves = nopSaves{}
	}
	if c.Effects == nil {
		c.Effects = nopEffects{}
	}
	if c.Economy == nil {
		c.Economy = nopEconomy{}
	}
	if c.Persist == nil {
		c.Persist = nopPersister{}
	}
	if c.Quests == nil {
		c.Quests = nopQuests{}
	}
	return c
}

type nopNarrator struct{}

func (nopNarrator) Narrate(context.Context, Narration) {}

type nopMover struct{}

func (nopMover) CanRetreat(context.Context, string, string, string) (string, bool) { return "", false }
func (nopMover) Relocate(context.Context, string, string) error                   { return nil }

type nopSaves struct{}

func (nopSaves) Save(context.Context, *Combatant, string, int) bool { return false }

type nopEffects struct{}

func (nopEffects) Invoke(context.Context, string, *Combatant, *Combatant, int) error { return nil }

type nopEconomy struct{}

func (nopEconomy) GrantExperience(context.Context, *Combatant, int)        {}
func (nopEconomy) GenerateLoot(context.Context, *Combatant, *Combatant) error { return nil }

type nopPersister struct{}

func (nopPersister) PersistCombatant(context.Context, *Combatant) error { return nil }
func (nopPersister) RecordKill(context.Context, KillRecord) error       { return nil }

type nopQuests struct{}

func (nopQuests) RecordKill(context.Context, *Combatant, *Combatant) {}

// RegistryInvoker applies effects from an effect.Registry.
type RegistryInvoker struct {
	Registry *effect.Registry
}

// Invoke applies effectID to target for rounds (-1 = until removed).
func (r RegistryInvoker) Invoke(_ context.Context, effectID string, _, target *Combatant, rounds int) error {
	def, ok := r.Registry.Get(effectID)
	if !ok {
		return &UnknownEffectError{ID: effectID}
	}
	return target.effects().Apply(def, 1, rounds)
}

// UnknownEffectError reports an effect ID missing from the registry.
type UnknownEffectError struct {
	ID string
}

func (e *UnknownEffectError) Error() string { return "combat: unknown effect " + e.ID }
