package combat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

func withFlag(t *testing.T, c *combat.Combatant, id string, f effect.Flag) {
	t.Helper()
	if c.Effects == nil {
		c.Effects = effect.NewActiveSet()
	}
	require.NoError(t, c.Effects.Apply(&effect.Def{ID: id, DurationType: effect.DurationUntilRemoved, Flags: []effect.Flag{f}}, 1, -1))
}

func TestReactions_TotalDefenseOncePerRound(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	withFlag(t, d, "total_defense", effect.FlagTotalDefense)
	r := newResolver(d20(20))

	first := r.Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary})
	assert.Equal(t, combat.InterceptTotalDefense, first.Interception)
	assert.Equal(t, combat.Miss, first.Outcome)
	assert.Zero(t, first.Natural, "intercepted before the roll")

	second := r.Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary})
	assert.Equal(t, combat.InterceptNone, second.Interception)
	assert.True(t, second.Outcome.Landed())
}

func TestReactions_DeflectRangedOnly(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	d.Feats = []combat.Feat{combat.FeatDeflectArrows}
	r := newResolver(d20(20))

	res := r.Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModeRanged})
	assert.Equal(t, combat.InterceptDeflect, res.Interception)

	d.Reactions = combat.Reactions{}
	d.Acted = false
	res = r.Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModeRanged})
	assert.Equal(t, combat.InterceptNone, res.Interception, "flat-footed defenders cannot deflect")
}

func TestReactions_ParryContested(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	d.BAB = 10
	withFlag(t, d, "parry", effect.FlagParryStance)

	// attack 12 vs AC 10 hits; parry 8+10 = 18 beats 12
	r := newResolver(d20(12), d20(8))
	res := r.Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary})
	assert.Equal(t, combat.InterceptParry, res.Interception)
	assert.Equal(t, combat.Miss, res.Outcome)
	assert.Equal(t, 1, d.Reactions.Parries)
}

func TestReactions_ParryFailsAgainstHighTotal(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	a.BAB = 15
	withFlag(t, d, "parry", effect.FlagParryStance)

	r := newResolver(d20(15), d20(2))
	res := r.Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary})
	assert.Equal(t, combat.InterceptNone, res.Interception)
	assert.Equal(t, combat.Hit, res.Outcome)
}

func TestReactions_ParryLimit(t *testing.T) {
	c := fighter("a")
	assert.Equal(t, 1, combat.ParryLimit(c))
	c.BAB = 11
	assert.Equal(t, 3, combat.ParryLimit(c))
}

func TestReactions_HelplessDefenderGetsNone(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	withFlag(t, d, "total_defense", effect.FlagTotalDefense)
	d.SetPosition(combat.Sleeping)
	res := newResolver(d20(15)).Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary})
	assert.Equal(t, combat.InterceptNone, res.Interception)
}

func TestReactions_MountedBlock(t *testing.T) {
	a, d := fighter("a"), fighter("d")
	d.Mount = "horse"
	d.Level = 10
	d.Feats = []combat.Feat{combat.FeatMountedCombat}
	res := newResolver(d20(11), d20(5)).Resolve(context.Background(), combat.AttackContext{Attacker: a, Defender: d, Mode: combat.ModePrimary})
	assert.Equal(t, combat.InterceptMountedBlock, res.Interception)
	assert.True(t, d.Reactions.MountedBlock)
}
