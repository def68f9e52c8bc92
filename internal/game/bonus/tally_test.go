package bonus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/bonus"
)

func contributionGen() *rapid.Generator[bonus.Contribution] {
	return rapid.Custom(func(t *rapid.T) bonus.Contribution {
		return bonus.Contribution{
			Type:  bonus.Type(rapid.IntRange(0, int(bonus.Universal)).Draw(t, "type")),
			Value: rapid.IntRange(-20, 20).Draw(t, "value"),
		}
	})
}

func TestTally_StackingTypesSum(t *testing.T) {
	for _, typ := range []bonus.Type{bonus.Circumstance, bonus.Dodge, bonus.Undefined, bonus.Universal} {
		tl := bonus.New(
			bonus.Contribution{Type: typ, Value: 2},
			bonus.Contribution{Type: typ, Value: 3},
		)
		assert.Equal(t, 5, tl.Total(), "type %s", typ)
	}
}

func TestTally_NonStackingKeepsStrongest(t *testing.T) {
	tl := bonus.New(
		bonus.Contribution{Type: bonus.Enhancement, Value: 2},
		bonus.Contribution{Type: bonus.Enhancement, Value: 5},
		bonus.Contribution{Type: bonus.Enhancement, Value: 3},
	)
	assert.Equal(t, 5, tl.Value(bonus.Enhancement))
}

func TestTally_NonStackingKeepsLargestMagnitude(t *testing.T) {
	tl := bonus.New(
		bonus.Contribution{Type: bonus.Morale, Value: 4},
		bonus.Contribution{Type: bonus.Morale, Value: -2},
		bonus.Contribution{Type: bonus.Morale, Value: -3},
	)
	assert.Equal(t, 4, tl.Value(bonus.Morale))

	tl.Add(bonus.Morale, -6)
	assert.Equal(t, -6, tl.Value(bonus.Morale), "a stronger penalty replaces the bonus")

	tie := bonus.New(
		bonus.Contribution{Type: bonus.Luck, Value: -5},
		bonus.Contribution{Type: bonus.Luck, Value: 5},
	)
	assert.Equal(t, 5, tie.Value(bonus.Luck))
}

// A non-stacking type resolves to one of its entries, the one of largest magnitude.
func TestTally_Property_NonStackingResolvesToLargestMagnitude(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		typ := bonus.Type(rapid.IntRange(0, int(bonus.Universal)).Draw(rt, "type"))
		if typ.Stacks() {
			rt.Skip("stacking type")
		}
		vs := rapid.SliceOfN(rapid.IntRange(-20, 20).Filter(func(v int) bool { return v != 0 }), 1, 6).Draw(rt, "values")
		var tl bonus.Tally
		for _, v := range vs {
			tl.Add(typ, v)
		}
		got := tl.Value(typ)
		assert.Contains(rt, vs, got)
		for _, v := range vs {
			assert.GreaterOrEqual(rt, max(got, -got), max(v, -v))
		}
	})
}

func TestTally_TotalSumsAcrossTypes(t *testing.T) {
	tl := bonus.New(
		bonus.Contribution{Type: bonus.Armor, Value: 6},
		bonus.Contribution{Type: bonus.Shield, Value: 2},
		bonus.Contribution{Type: bonus.Dodge, Value: 1},
		bonus.Contribution{Type: bonus.Dodge, Value: 1},
		bonus.Contribution{Type: bonus.Deflection, Value: 3},
		bonus.Contribution{Type: bonus.Deflection, Value: 2},
	)
	assert.Equal(t, 13, tl.Total())
	assert.Equal(t, 5, tl.TotalExcept(bonus.Armor, bonus.Shield, bonus.NaturalArmor))
}

func TestTally_ZeroValueUsable(t *testing.T) {
	var tl bonus.Tally
	tl.Add(bonus.Luck, 2)
	assert.Equal(t, 2, tl.Total())
	assert.True(t, tl.Has(bonus.Luck))
	assert.False(t, tl.Has(bonus.Sacred))
}

func TestTally_Breakdown(t *testing.T) {
	tl := bonus.New(bonus.Contribution{Type: bonus.Size, Value: 1}, bonus.Contribution{Type: bonus.Sacred, Value: 2})
	assert.Equal(t, map[bonus.Type]int{bonus.Size: 1, bonus.Sacred: 2}, tl.Breakdown())
}

func TestFold_Clamps(t *testing.T) {
	got := bonus.Fold(bonus.Bounds{Min: 0, Max: 10}, bonus.Contribution{Type: bonus.Undefined, Value: 40})
	assert.Equal(t, 10, got)
	assert.Equal(t, 40, bonus.Fold(bonus.Bounds{}, bonus.Contribution{Type: bonus.Undefined, Value: 40}))
}

func TestParseType(t *testing.T) {
	typ, err := bonus.ParseType(" Natural_Armor ")
	require.NoError(t, err)
	assert.Equal(t, bonus.NaturalArmor, typ)
	_, err = bonus.ParseType("divine")
	assert.Error(t, err)
}

func TestContribution_YAML(t *testing.T) {
	var c bonus.Contribution
	require.NoError(t, yaml.Unmarshal([]byte("type: deflection\nvalue: 2\n"), &c))
	assert.Equal(t, bonus.Contribution{Type: bonus.Deflection, Value: 2}, c)
	assert.Error(t, yaml.Unmarshal([]byte("type: nope\nvalue: 2\n"), &c))
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "natural_armor", bonus.NaturalArmor.String())
	assert.Equal(t, "bonus(99)", bonus.Type(99).String())
}

// The fold is independent of the order sources arrive in.
func TestTally_Property_Commutative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cs := rapid.SliceOfN(contributionGen(), 0, 12).Draw(rt, "contributions")
		perm := rapid.Permutation(cs).Draw(rt, "permutation")
		assert.Equal(rt, bonus.New(cs...).Total(), bonus.New(perm...).Total())
	})
}

// A second source of a non-stacking type never lifts the aggregate above
// the stronger of the two.
func TestTally_Property_NonStackingNeverExceedsMax(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		typ := bonus.Type(rapid.IntRange(0, int(bonus.Universal)).Draw(rt, "type"))
		if typ.Stacks() {
			rt.Skip("stacking type")
		}
		a := rapid.IntRange(-20, 20).Draw(rt, "a")
		b := rapid.IntRange(-20, 20).Draw(rt, "b")
		got := bonus.New(bonus.Contribution{Type: typ, Value: a}, bonus.Contribution{Type: typ, Value: b}).Total()
		assert.LessOrEqual(rt, got, max(a, b))
	})
}

func TestTally_Property_IdempotentForNonStacking(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		typ := bonus.Type(rapid.IntRange(0, int(bonus.Universal)).Draw(rt, "type"))
		if typ.Stacks() {
			rt.Skip("stacking type")
		}
		v := rapid.IntRange(-20, 20).Draw(rt, "v")
		once := bonus.New(bonus.Contribution{Type: typ, Value: v}).Total()
		twice := bonus.New(bonus.Contribution{Type: typ, Value: v}, bonus.Contribution{Type: typ, Value: v}).Total()
		assert.Equal(rt, once, twice)
	})
}
