package gameserver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/gameserver"
)

func TestLoadRoomGraph(t *testing.T) {
	roller := dice.NewLoggedRoller(maxSrc{}, zap.NewNop())
	g, err := gameserver.LoadRoomGraph("testdata/rooms.yaml", roller, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, g.Has("pit"))

	to, ok := g.CanRetreat(ctx, "a", "arena", "north")
	require.True(t, ok)
	assert.Equal(t, "hall", to)

	_, ok = g.CanRetreat(ctx, "a", "arena", "west")
	assert.False(t, ok)

	_, ok = g.CanRetreat(ctx, "a", "pit", "")
	assert.False(t, ok, "a room without exits cannot be fled")

	// The highest roll picks the last direction in name order.
	to, ok = g.CanRetreat(ctx, "a", "arena", "")
	require.True(t, ok)
	assert.Equal(t, "hall", to)
}

func TestRoomGraph_Relocate(t *testing.T) {
	roller := dice.NewLoggedRoller(maxSrc{}, zap.NewNop())
	g, err := gameserver.LoadRoomGraph("testdata/rooms.yaml", roller, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := g.Location("a")
	assert.False(t, ok)
	require.NoError(t, g.Relocate(ctx, "a", "hall"))
	room, ok := g.Location("a")
	require.True(t, ok)
	assert.Equal(t, "hall", room)

	assert.Error(t, g.Relocate(ctx, "a", "void"))
}

func TestNewRoomGraph_Rejects(t *testing.T) {
	roller := dice.NewLoggedRoller(maxSrc{}, zap.NewNop())
	logger := zaptest.NewLogger(t)

	_, err := gameserver.NewRoomGraph([]gameserver.RoomDef{{ID: "a"}, {ID: "a"}}, roller, logger)
	assert.ErrorContains(t, err, "duplicate room")

	_, err = gameserver.NewRoomGraph([]gameserver.RoomDef{{ID: "a", Exits: map[string]string{"up": "nowhere"}}}, roller, logger)
	assert.ErrorContains(t, err, "unknown room")

	_, err = gameserver.NewRoomGraph([]gameserver.RoomDef{{Title: "Nameless"}}, roller, logger)
	assert.ErrorContains(t, err, "has no id")
}
