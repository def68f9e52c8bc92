package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// seqSrc returns queued values in order, then zeros.
type seqSrc struct {
	vals []int
}

func (s *seqSrc) Intn(n int) int {
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v % n
}

func TestRollResult_Total(t *testing.T) {
	r := dice.RollResult{Expression: "2d6+3", Dice: []int{4, 5}, Modifier: 3}
	assert.Equal(t, 12, r.Total())
}

func TestRollResult_String(t *testing.T) {
	r := dice.RollResult{Expression: "2d6+3", Dice: []int{4, 5}, Modifier: 3}
	assert.Equal(t, "2d6+3 [4 5] +3 = 12", r.String())
}

func TestRollResult_StringShowsDropped(t *testing.T) {
	r := dice.RollResult{Expression: "4d6kh3+1", Dice: []int{6, 5, 4}, Dropped: []int{1}, Modifier: 1}
	assert.Equal(t, 15, r.Sum())
	assert.Equal(t, "4d6kh3+1 [6 5 4] drop [1] +1 = 16", r.String())
}

func TestRollResult_String_PanicsOnEmptyExpression(t *testing.T) {
	r := dice.RollResult{Dice: []int{4}}
	assert.Panics(t, func() { _ = r.String() })
}

func TestRollResult_Total_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		faces := rapid.SliceOf(rapid.IntRange(1, 20)).Draw(rt, "dice")
		modifier := rapid.IntRange(-1000, 1000).Draw(rt, "modifier")
		expected := modifier
		for _, d := range faces {
			expected += d
		}
		r := dice.RollResult{Expression: "x", Dice: faces, Modifier: modifier}
		assert.Equal(rt, expected, r.Total())
	})
}

func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { dice.NewCryptoSource().Intn(0) })
}

func TestSeededSource_Reproducible(t *testing.T) {
	a := dice.NewSeededSource(42)
	b := dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Intn(1000), b.Intn(1000), "draw %d diverged", i)
	}
}

func TestSeededSource_PanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { dice.NewSeededSource(1).Intn(0) })
}

func TestRoller_LogsEveryRoll(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := dice.NewLoggedRoller(&seqSrc{vals: []int{3, 4}}, zap.New(core))

	res, err := r.RollExpr("2d6+1")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, res.Dice)
	assert.Equal(t, 10, res.Total())

	entries := logs.FilterMessage("dice roll").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].ContextMap()["total"])
}

func TestRoller_D20_Range(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(7), zap.NewNop())
	for i := 0; i < 500; i++ {
		v := r.D20()
		require.GreaterOrEqual(t, v, 1)
		require.LessOrEqual(t, v, 20)
	}
}

func TestRoller_Chance_ZeroNeverRolls(t *testing.T) {
	src := &seqSrc{vals: []int{0}}
	r := dice.NewLoggedRoller(src, zap.NewNop())
	assert.False(t, r.Chance(0))
	assert.Len(t, src.vals, 1, "no randomness consumed")
}

func TestRoller_Chance_AtThreshold(t *testing.T) {
	r := dice.NewLoggedRoller(&seqSrc{vals: []int{49, 50}}, zap.NewNop())
	assert.True(t, r.Chance(50), "roll 50 <= 50")
	assert.False(t, r.Chance(50), "roll 51 > 50")
}

func TestRoller_Between_Property(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(3), zap.NewNop())
	rapid.Check(t, func(rt *rapid.T) {
		lo := rapid.IntRange(-50, 50).Draw(rt, "lo")
		hi := rapid.IntRange(lo, lo+100).Draw(rt, "hi")
		v := r.Between(lo, hi)
		assert.GreaterOrEqual(rt, v, lo)
		assert.LessOrEqual(rt, v, hi)
	})
}

func TestRoller_Dice_NonPositiveCount(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(1), zap.NewNop())
	assert.Equal(t, 0, r.Dice(0, 6))
	assert.Equal(t, 3, r.Dice(3, 1))
}
