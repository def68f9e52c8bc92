// Package sqlite provides a SQLite-backed combatant and kill-log store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/storage"
	"github.com/cory-johannsen/skirmish/internal/storage/sqlite/migrations"
)

// Store persists combatants and kills in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
//
// Precondition: path must be non-empty.
// Postcondition: Returns a migrated Store or a non-nil error.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func applyMigrations(sqlDB *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PersistCombatant upserts a snapshot of c.
func (s *Store) PersistCombatant(ctx context.Context, c *combat.Combatant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := storage.Snapshot(c)
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO combatants (
		   id, kind, name, template, level, room, hp, max_hp,
		   mana, max_mana, experience, position, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   kind = excluded.kind, name = excluded.name, template = excluded.template,
		   level = excluded.level, room = excluded.room, hp = excluded.hp,
		   max_hp = excluded.max_hp, mana = excluded.mana, max_mana = excluded.max_mana,
		   experience = excluded.experience, position = excluded.position,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.Kind, rec.Name, rec.Template, rec.Level, rec.Room, rec.HP, rec.MaxHP,
		rec.Mana, rec.MaxMana, rec.Experience, rec.Position, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert combatant %s: %w", rec.ID, err)
	}
	return nil
}

// Combatant returns the stored snapshot with id, or storage.ErrNotFound.
func (s *Store) Combatant(ctx context.Context, id string) (storage.CombatantRecord, error) {
	var (
		rec     storage.CombatantRecord
		updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, kind, name, template, level, room, hp, max_hp,
		        mana, max_mana, experience, position, updated_at
		 FROM combatants WHERE id = ?`, id,
	).Scan(
		&rec.ID, &rec.Kind, &rec.Name, &rec.Template, &rec.Level, &rec.Room, &rec.HP, &rec.MaxHP,
		&rec.Mana, &rec.MaxMana, &rec.Experience, &rec.Position, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CombatantRecord{}, storage.ErrNotFound
		}
		return storage.CombatantRecord{}, fmt.Errorf("get combatant %s: %w", id, err)
	}
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}

// RecordKill appends k to the kill log.
func (s *Store) RecordKill(ctx context.Context, k combat.KillRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO kill_log (
		   id, killer_id, victim_id, victim_name, room, player, experience, sim_time_ms, recorded_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID.String(), k.KillerID, k.VictimID, k.VictimName, k.Room, k.Player, k.Experience,
		k.At.Milliseconds(), toMillis(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("record kill %s: %w", k.ID, err)
	}
	return nil
}

// RecentKills returns up to limit kills, newest first.
func (s *Store) RecentKills(ctx context.Context, limit int) ([]combat.KillRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, killer_id, victim_id, victim_name, room, player, experience, sim_time_ms
		 FROM kill_log ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list kills: %w", err)
	}
	defer rows.Close()

	kills := make([]combat.KillRecord, 0)
	for rows.Next() {
		var (
			k  combat.KillRecord
			id string
			ms int64
		)
		if err := rows.Scan(&id, &k.KillerID, &k.VictimID, &k.VictimName, &k.Room, &k.Player, &k.Experience, &ms); err != nil {
			return nil, fmt.Errorf("scan kill row: %w", err)
		}
		if k.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse kill id %q: %w", id, err)
		}
		k.At = time.Duration(ms) * time.Millisecond
		kills = append(kills, k)
	}
	return kills, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
