package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

func newDamage(cfg config.CombatConfig, vals ...int) *combat.DamageComputer {
	return combat.NewDamageComputer(roller(vals...), cfg, zap.NewNop())
}

func TestCompute_CriticalMultipliesPreCritical(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	a.Abilities.Str = 18
	w := &combat.Weapon{Name: "rapier", Damage: "1d6", DamageType: combat.DamagePiercing, ThreatRange: 2}

	dmg := newDamage(config.DefaultCombat(), 5).Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, w, true)
	assert.Equal(t, 10, dmg.PreCritical)
	assert.Equal(t, 2, dmg.Multiplier)
	assert.Equal(t, 20, dmg.Total)
	assert.Equal(t, combat.DamagePiercing, dmg.Type)
}

func TestCompute_AddOnsNotMultiplied(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	a.SneakDice = 2
	d.Acted = false
	w := &combat.Weapon{Damage: "1d8", BurstDice: "1d10"}

	// 1d8 -> 4, 1d10 burst -> 10, sneak 2d6 -> 3+3
	dmg := newDamage(config.DefaultCombat(), 3, 9, 2, 2).Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, w, true)
	assert.Equal(t, 4, dmg.PreCritical)
	assert.Equal(t, 16, dmg.AddOns)
	assert.Equal(t, 4*2+16, dmg.Total)
}

func TestCompute_NegativePreCriticalNotMultiplied(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	a.Abilities.Str = 2
	a.SneakDice = 1
	d.Acted = false
	w := &combat.Weapon{Damage: "1d4"}

	// 1d4 -> 1 with -4 strength, sneak 1d6 -> 4
	dmg := newDamage(config.DefaultCombat(), 0, 3).Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, w, true)
	assert.Equal(t, -4, dmg.Ability)
	assert.Equal(t, 0, dmg.PreCritical)
	assert.Equal(t, 4, dmg.AddOns)
	assert.Equal(t, 4, dmg.Total)
}

func TestCompute_PositionBeforeMultiplier(t *testing.T) {
	cases := []struct {
		pos  combat.Position
		want int
	}{
		{combat.Standing, 6},
		{combat.Sitting, 10},
		{combat.Resting, 12},
		{combat.Sleeping, 12},
		{combat.Incapacitated, 9},
	}
	for _, tc := range cases {
		t.Run(tc.pos.String(), func(t *testing.T) {
			a, d := fighter("a"), fighter("d")
			d.SetPosition(tc.pos)
			w := &combat.Weapon{Damage: "1d6"}
			dmg := newDamage(config.DefaultCombat(), 5).Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, w, false)
			assert.Equal(t, tc.want, dmg.Total)
		})
	}
}

func TestCompute_AbilityByGrip(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	a.Abilities.Str = 18
	ac := combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}

	twoHanded := newDamage(config.DefaultCombat(), 0).Compute(ac, &combat.Weapon{Damage: "1d12", TwoHanded: true}, false)
	assert.Equal(t, 6, twoHanded.Ability)

	ac.Mode = combat.ModeOffhand
	offhand := newDamage(config.DefaultCombat(), 0).Compute(ac, &combat.Weapon{Damage: "1d4"}, false)
	assert.Equal(t, 2, offhand.Ability)

	ac.Mode = combat.ModeRanged
	bow := newDamage(config.DefaultCombat(), 0).Compute(ac, &combat.Weapon{Damage: "1d8", Ranged: true, Family: "longbow"}, false)
	assert.Equal(t, 0, bow.Ability)
	sling := newDamage(config.DefaultCombat(), 0).Compute(ac, &combat.Weapon{Damage: "1d4", Ranged: true, Family: "sling"}, false)
	assert.Equal(t, 4, sling.Ability)
}

func TestCompute_UnarmedMonkDice(t *testing.T) {
	a, d := fighter("monk"), fighter("d")
	a.MonkLevel = 12
	dmg := newDamage(config.DefaultCombat(), 5, 5).Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, nil, false)
	assert.Equal(t, 12, dmg.Dice)
	assert.Equal(t, combat.DamageBludgeoning, dmg.Type)
}

func TestCompute_FloorAndCap(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	a.Abilities.Str = 1
	dmg := newDamage(config.DefaultCombat(), 0).Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, &combat.Weapon{Damage: "1d2"}, false)
	assert.Equal(t, 1, dmg.Total)

	cfg := config.DefaultCombat()
	cfg.DamageCap = 50
	a.Abilities.Str = 30
	w := &combat.Weapon{Damage: "10d10", CritMultiplier: 4}
	big := combat.NewDamageComputer(dice.NewLoggedRoller(dice.NewSeededSource(7), zap.NewNop()), cfg, zap.NewNop()).
		Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, w, true)
	assert.Equal(t, 50, big.Total)
	assert.True(t, big.Capped)
}

func TestCritMultiplier_Bounds(t *testing.T) {
	a := fighter("a")
	assert.Equal(t, 2, combat.CritMultiplier(a, nil))
	a.Feats = []combat.Feat{combat.FeatIncreasedMultiplier}
	assert.Equal(t, 4, combat.CritMultiplier(a, &combat.Weapon{CritMultiplier: 3}))
	assert.Equal(t, 6, combat.CritMultiplier(a, &combat.Weapon{CritMultiplier: 6}))
}

func TestCompute_Bounds_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := config.DefaultCombat()
		cfg.DamageCap = rapid.IntRange(1, 200).Draw(rt, "cap")
		a, d := fighter("a"), fighter("d")
		a.Abilities.Str = rapid.IntRange(1, 40).Draw(rt, "str")
		a.SneakDice = rapid.IntRange(0, 10).Draw(rt, "sneak")
		w := &combat.Weapon{Damage: "2d6", Enhancement: rapid.IntRange(-3, 5).Draw(rt, "enh")}
		crit := rapid.Bool().Draw(rt, "crit")
		dc := combat.NewDamageComputer(dice.NewLoggedRoller(dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed")), zap.NewNop()), cfg, zap.NewNop())

		dmg := dc.Compute(combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary}, w, crit)
		assert.GreaterOrEqual(rt, dmg.Total, 1)
		assert.LessOrEqual(rt, dmg.Total, cfg.DamageCap)
	})
}
