package postgres_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/storage"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
	"github.com/cory-johannsen/skirmish/internal/testutil"
)

var pg *testutil.PostgresContainer

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	ctx := context.Background()
	var err error
	pg, err = testutil.StartPostgres(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	code := m.Run()
	_ = pg.Close(ctx)
	os.Exit(code)
}

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	if pg == nil {
		t.Skip("postgres container disabled in -short mode")
	}
	pg.Reset(t)
	return postgres.NewStore(pg.Pool)
}

func hero() *combat.Combatant {
	return &combat.Combatant{
		ID: "hero", Kind: combat.KindPlayer, Name: "Hero", Level: 7, Room: "start",
		HP: 1, MaxHP: 60, Mana: 5, MaxMana: 20, Experience: 4200,
	}
}

func TestStore_PersistCombatantUpserts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := hero()
	require.NoError(t, s.PersistCombatant(ctx, c))

	c.HP, c.Room = 45, "tavern"
	c.SetPosition(combat.Resting)
	require.NoError(t, s.PersistCombatant(ctx, c))

	rec, err := s.Combatant(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, "player", rec.Kind)
	assert.Equal(t, 45, rec.HP)
	assert.Equal(t, "tavern", rec.Room)
	assert.Equal(t, "resting", rec.Position)
	assert.Equal(t, 4200, rec.Experience)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestStore_CombatantNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Combatant(context.Background(), "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_KillLog(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	first := combat.KillRecord{ID: uuid.New(), KillerID: "hero", VictimID: "orc-1", VictimName: "orc", Room: "cave", Experience: 100, At: 6 * time.Second}
	require.NoError(t, s.RecordKill(ctx, first))
	assert.ErrorIs(t, s.RecordKill(ctx, first), storage.ErrDuplicate)

	second := combat.KillRecord{ID: uuid.New(), VictimID: "hero", VictimName: "Hero", Room: "cave", Player: true, At: 12 * time.Second}
	require.NoError(t, s.RecordKill(ctx, second))

	kills, err := s.RecentKills(ctx, 10)
	require.NoError(t, err)
	require.Len(t, kills, 2)
	assert.Equal(t, second.ID, kills[0].ID)
	assert.True(t, kills[0].Player)
	assert.Equal(t, first, kills[1])
}
