package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/skirmish/internal/storage"
)

// CombatantRepository persists combatant snapshots.
type CombatantRepository struct {
	db *pgxpool.Pool
}

// NewCombatantRepository creates a CombatantRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCombatantRepository(db *pgxpool.Pool) *CombatantRepository {
	return &CombatantRepository{db: db}
}

// Save upserts rec by ID.
//
// Precondition: rec.ID must be non-empty.
// Postcondition: the stored row matches rec and updated_at is refreshed.
func (r *CombatantRepository) Save(ctx context.Context, rec storage.CombatantRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO combatants
			(id, kind, name, template, level, room, hp, max_hp, mana, max_mana, experience, position, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, name = EXCLUDED.name, template = EXCLUDED.template,
			level = EXCLUDED.level, room = EXCLUDED.room, hp = EXCLUDED.hp,
			max_hp = EXCLUDED.max_hp, mana = EXCLUDED.mana, max_mana = EXCLUDED.max_mana,
			experience = EXCLUDED.experience, position = EXCLUDED.position,
			updated_at = NOW()`,
		rec.ID, rec.Kind, rec.Name, rec.Template, rec.Level, rec.Room,
		rec.HP, rec.MaxHP, rec.Mana, rec.MaxMana, rec.Experience, rec.Position,
	)
	if err != nil {
		return fmt.Errorf("upserting combatant %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves the snapshot with id.
//
// Postcondition: Returns the record or storage.ErrNotFound.
func (r *CombatantRepository) Get(ctx context.Context, id string) (storage.CombatantRecord, error) {
	var rec storage.CombatantRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, kind, name, template, level, room, hp, max_hp, mana, max_mana,
		       experience, position, updated_at
		FROM combatants WHERE id = $1`,
		id,
	).Scan(
		&rec.ID, &rec.Kind, &rec.Name, &rec.Template, &rec.Level, &rec.Room,
		&rec.HP, &rec.MaxHP, &rec.Mana, &rec.MaxMana, &rec.Experience, &rec.Position,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.CombatantRecord{}, storage.ErrNotFound
		}
		return storage.CombatantRecord{}, fmt.Errorf("querying combatant %s: %w", id, err)
	}
	return rec, nil
}
