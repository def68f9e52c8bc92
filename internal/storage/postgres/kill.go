package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/storage"
)

// KillRepository appends to and reads the kill log.
type KillRepository struct {
	db *pgxpool.Pool
}

// NewKillRepository creates a KillRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewKillRepository(db *pgxpool.Pool) *KillRepository {
	return &KillRepository{db: db}
}

// Record inserts k.
//
// Postcondition: Returns storage.ErrDuplicate if k.ID was already recorded.
func (r *KillRepository) Record(ctx context.Context, k combat.KillRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO kill_log
			(id, killer_id, victim_id, victim_name, room, player, experience, sim_time_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		k.ID, k.KillerID, k.VictimID, k.VictimName, k.Room, k.Player, k.Experience, k.At.Milliseconds(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("inserting kill %s: %w", k.ID, err)
	}
	return nil
}

// Recent returns up to limit kills, newest first.
//
// Precondition: limit > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *KillRepository) Recent(ctx context.Context, limit int) ([]combat.KillRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, killer_id, victim_id, victim_name, room, player, experience, sim_time_ms
		FROM kill_log ORDER BY recorded_at DESC, sim_time_ms DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing kills: %w", err)
	}
	defer rows.Close()

	kills := make([]combat.KillRecord, 0)
	for rows.Next() {
		var (
			k  combat.KillRecord
			ms int64
		)
		if err := rows.Scan(&k.ID, &k.KillerID, &k.VictimID, &k.VictimName, &k.Room, &k.Player, &k.Experience, &ms); err != nil {
			return nil, fmt.Errorf("scanning kill row: %w", err)
		}
		k.At = time.Duration(ms) * time.Millisecond
		kills = append(kills, k)
	}
	return kills, rows.Err()
}
