// Package storage defines the persisted shapes shared by the postgres and
// sqlite backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// ErrNotFound is returned when a lookup yields no row.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate is returned when a kill with the same ID was already recorded.
var ErrDuplicate = errors.New("storage: duplicate record")

// CombatantRecord is the persisted snapshot of a combatant.
type CombatantRecord struct {
	ID         string
	Kind       string
	Name       string
	Template   string
	Level      int
	Room       string
	HP         int
	MaxHP      int
	Mana       int
	MaxMana    int
	Experience int
	Position   string
	UpdatedAt  time.Time
}

// Snapshot captures the persisted fields of c.
func Snapshot(c *combat.Combatant) CombatantRecord {
	return CombatantRecord{
		ID:         c.ID,
		Kind:       c.Kind.String(),
		Name:       c.Name,
		Template:   c.Template,
		Level:      c.Level,
		Room:       c.Room,
		HP:         c.HP,
		MaxHP:      c.MaxHP,
		Mana:       c.Mana,
		MaxMana:    c.MaxMana,
		Experience: c.Experience,
		Position:   c.Position().String(),
	}
}

// Store is a combat.Persister that can also read back what it wrote.
type Store interface {
	combat.Persister
	Combatant(ctx context.Context, id string) (CombatantRecord, error)
	// RecentKills returns up to limit kills, newest first.
	RecentKills(ctx context.Context, limit int) ([]combat.KillRecord, error)
	Close() error
}

// Nop discards everything; reads report ErrNotFound.
type Nop struct{}

// PersistCombatant does nothing.
func (Nop) PersistCombatant(context.Context, *combat.Combatant) error { return nil }

// RecordKill does nothing.
func (Nop) RecordKill(context.Context, combat.KillRecord) error { return nil }

// Combatant always reports ErrNotFound.
func (Nop) Combatant(context.Context, string) (CombatantRecord, error) {
	return CombatantRecord{}, ErrNotFound
}

// RecentKills returns no kills.
func (Nop) RecentKills(context.Context, int) ([]combat.KillRecord, error) { return nil, nil }

// Close does nothing.
func (Nop) Close() error { return nil }
