package loot

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// Corpse is the remains left in a room by a slain combatant.
type Corpse struct {
	ID       uuid.UUID
	VictimID string
	Name     string
	Room     string
	KillerID string
	Loot     Result
}

// Ledger implements combat.Economy: it records experience awards and leaves
// a corpse carrying generated loot for every kill.
type Ledger struct {
	mu      sync.Mutex
	tables  map[string]Table
	roller  *dice.Roller
	logger  *zap.Logger
	corpses []*Corpse
	awarded map[string]int
}

// NewLedger creates a Ledger over tables keyed by NPC template.
//
// Precondition: every table must have passed Validate().
func NewLedger(tables map[string]Table, roller *dice.Roller, logger *zap.Logger) *Ledger {
	if tables == nil {
		tables = make(map[string]Table)
	}
	return &Ledger{
		tables:  tables,
		roller:  roller,
		logger:  logger,
		awarded: make(map[string]int),
	}
}

// GrantExperience records amount against c.
func (l *Ledger) GrantExperience(_ context.Context, c *combat.Combatant, amount int) {
	l.mu.Lock()
	l.awarded[c.ID] += amount
	l.mu.Unlock()
	l.logger.Info("experience granted",
		zap.String("combatant", c.ID),
		zap.Int("amount", amount),
		zap.Int("total", c.Experience),
	)
}

// Awarded returns the experience granted to id through this ledger.
func (l *Ledger) Awarded(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.awarded[id]
}

// GenerateLoot leaves a corpse for victim in its room. NPC corpses carry
// loot rolled from the victim's template table; player corpses are empty.
func (l *Ledger) GenerateLoot(_ context.Context, victim, killer *combat.Combatant) error {
	if victim == nil {
		return errors.New("loot: nil victim")
	}
	corpse := &Corpse{
		ID:       uuid.New(),
		VictimID: victim.ID,
		Name:     "the corpse of " + victim.Name,
		Room:     victim.Room,
	}
	if killer != nil {
		corpse.KillerID = killer.ID
	}
	if !victim.IsPlayer() {
		if t, ok := l.tables[victim.Template]; ok {
			corpse.Loot = Generate(t, l.roller)
		}
	}

	l.mu.Lock()
	l.corpses = append(l.corpses, corpse)
	l.mu.Unlock()

	l.logger.Debug("corpse created",
		zap.Stringer("corpse", corpse.ID),
		zap.String("victim", victim.ID),
		zap.String("room", corpse.Room),
		zap.Int("currency", corpse.Loot.Currency),
		zap.Int("items", len(corpse.Loot.Items)),
	)
	return nil
}

// Corpses returns the corpses in room, oldest first.
func (l *Ledger) Corpses(room string) []Corpse {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Corpse
	for _, c := range l.corpses {
		if c.Room == room {
			out = append(out, *c)
		}
	}
	return out
}

// Take removes the corpse with id and returns it.
//
// Postcondition: ok is false if no such corpse exists.
func (l *Ledger) Take(id uuid.UUID) (Corpse, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.corpses {
		if c.ID == id {
			l.corpses = append(l.corpses[:i], l.corpses[i+1:]...)
			return *c, true
		}
	}
	return Corpse{}, false
}
