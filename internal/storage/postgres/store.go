package postgres

import (
	"context"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/storage"
)

// Store implements storage.Store over a Pool.
type Store struct {
	pool       *Pool
	combatants *CombatantRepository
	kills      *KillRepository
}

// NewStore creates a Store that owns pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		pool:       pool,
		combatants: NewCombatantRepository(pool.DB()),
		kills:      NewKillRepository(pool.DB()),
	}
}

// PersistCombatant saves a snapshot of c.
func (s *Store) PersistCombatant(ctx context.Context, c *combat.Combatant) error {
	return s.combatants.Save(ctx, storage.Snapshot(c))
}

// RecordKill appends k to the kill log.
func (s *Store) RecordKill(ctx context.Context, k combat.KillRecord) error {
	return s.kills.Record(ctx, k)
}

// Combatant returns the stored snapshot with id.
func (s *Store) Combatant(ctx context.Context, id string) (storage.CombatantRecord, error) {
	return s.combatants.Get(ctx, id)
}

// RecentKills returns up to limit kills, newest first.
func (s *Store) RecentKills(ctx context.Context, limit int) ([]combat.KillRecord, error) {
	return s.kills.Recent(ctx, limit)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ storage.Store = (*Store)(nil)
