package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

func TestParse_Forms(t *testing.T) {
	tests := []struct {
		in                       string
		count, sides, mod, keep int
	}{
		{"d20", 1, 20, 0, 0},
		{"2d6", 2, 6, 0, 0},
		{"2d6+3", 2, 6, 3, 0},
		{"4d8-2", 4, 8, -2, 0},
		{"4d6kh3", 4, 6, 0, 3},
		{"4d6kh3+1", 4, 6, 1, 3},
		{"3D2", 3, 2, 0, 0},
		{"7", 0, 0, 7, 0},
	}
	for _, tc := range tests {
		e, err := dice.Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.count, e.Count, tc.in)
		assert.Equal(t, tc.sides, e.Sides, tc.in)
		assert.Equal(t, tc.mod, e.Modifier, tc.in)
		assert.Equal(t, tc.keep, e.KeepHighest, tc.in)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"", "d", "0d6", "2d1", "2d6kh2", "2d6kh0", "abc", "2d6+"} {
		_, err := dice.Parse(in)
		assert.Error(t, err, "expected %q to be rejected", in)
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { dice.MustParse("nope") })
}

func TestExpression_IsConstant(t *testing.T) {
	assert.True(t, dice.MustParse("4").IsConstant())
	assert.False(t, dice.MustParse("1d4").IsConstant())
}

func TestRoll_KeepHighest(t *testing.T) {
	res := dice.Roll(dice.MustParse("4d6kh3"), &seqSrc{vals: []int{0, 5, 2, 3}})
	assert.Equal(t, []int{6, 4, 3}, res.Dice)
	assert.Equal(t, []int{1}, res.Dropped)
	assert.Equal(t, 13, res.Total())
}

func TestExpression_String_RoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := dice.Expression{
			Count:    rapid.IntRange(1, 20).Draw(rt, "count"),
			Sides:    rapid.IntRange(2, 100).Draw(rt, "sides"),
			Modifier: rapid.IntRange(-50, 50).Draw(rt, "mod"),
		}
		back, err := dice.Parse(e.String())
		require.NoError(rt, err)
		assert.Equal(rt, e.Count, back.Count)
		assert.Equal(rt, e.Sides, back.Sides)
		assert.Equal(rt, e.Modifier, back.Modifier)
	})
}

func TestRoll_Property_TotalBounds(t *testing.T) {
	src := dice.NewSeededSource(99)
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 10).Draw(rt, "count")
		sides := rapid.IntRange(2, 20).Draw(rt, "sides")
		res := dice.Roll(dice.Expression{Count: count, Sides: sides}, src)
		assert.GreaterOrEqual(rt, res.Total(), count)
		assert.LessOrEqual(rt, res.Total(), count*sides)
	})
}
