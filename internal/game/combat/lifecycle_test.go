package combat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

type lifecycleFixture struct {
	lc       *combat.Lifecycle
	registry *combat.Registry
	roster   *combat.Roster
	narrator *recordingNarrator
	economy  *fakeEconomy
	persist  *fakePersister
	mover    *fakeMover
	now      time.Duration
}

func newLifecycleFixture(cs ...*combat.Combatant) *lifecycleFixture {
	f := &lifecycleFixture{
		registry: combat.NewRegistry(),
		roster:   combat.NewRoster(),
		narrator: &recordingNarrator{},
		economy:  newEconomy(),
		persist:  &fakePersister{},
		mover:    newMover(nil),
	}
	for _, c := range cs {
		f.roster.Add(c)
	}
	collab := combat.Collaborators{Narrator: f.narrator, Economy: f.economy, Persist: f.persist, Mover: f.mover}
	f.lc = combat.NewLifecycle(config.DefaultCombat(), f.registry, f.roster, collab, zap.NewNop(), func() time.Duration { return f.now })
	return f
}

func TestApplyDamage_PositionFollowsHealth(t *testing.T) {
	p := player("hero")
	f := newLifecycleFixture(p)
	ctx := context.Background()

	out := f.lc.ApplyDamage(ctx, nil, p, 30)
	assert.Equal(t, 30, out.Applied)
	assert.Equal(t, combat.Stunned, out.Position)

	out = f.lc.ApplyDamage(ctx, nil, p, 4)
	assert.Equal(t, combat.Incapacitated, out.Position)

	out = f.lc.ApplyDamage(ctx, nil, p, 3)
	assert.Equal(t, combat.MortallyWounded, out.Position)
	assert.False(t, out.Killed)
}

func TestApplyDamage_NPCDiesAtZero(t *testing.T) {
	hero, orc := player("hero"), fighter("orc")
	orc.Level = 3
	orc.Experience = 300
	f := newLifecycleFixture(hero, orc)

	out := f.lc.ApplyDamage(context.Background(), hero, orc, 30)
	assert.True(t, out.Killed)
	assert.Equal(t, combat.Dead, out.Position)
	// passive 3*30 plus the kill award min(300/3, max) scaled by level difference 2/8
	assert.Equal(t, 90+125, out.Experience)
	assert.Equal(t, 215, f.economy.granted["hero"])
	_, ok := f.roster.Get("orc")
	assert.False(t, ok, "dead NPCs leave the roster")
	assert.Contains(t, f.narrator.texts(), "orc is dead! R.I.P.")
	require.Len(t, f.persist.kills, 1)
	assert.Equal(t, "hero", f.persist.kills[0].KillerID)
	assert.Equal(t, []string{"orc"}, f.economy.loot)
}

func TestApplyDamage_WimpyFlee(t *testing.T) {
	orc := fighter("orc")
	orc.Wimpy = 10
	f := newLifecycleFixture(orc)
	out := f.lc.ApplyDamage(context.Background(), nil, orc, 25)
	assert.True(t, out.Flee)
}

func TestHandleLethal_DefensiveRollCooldown(t *testing.T) {
	p := player("rogue")
	p.HP = 0
	p.SetPosition(combat.Stunned)
	p.Feats = []combat.Feat{combat.FeatDefensiveRoll}
	f := newLifecycleFixture(p)
	ctx := context.Background()

	out := f.lc.ApplyDamage(ctx, nil, p, 20)
	assert.Equal(t, combat.AvertDefensiveRoll, out.Averted)
	assert.Equal(t, 0, p.HP)

	f.now += time.Minute
	out = f.lc.ApplyDamage(ctx, nil, p, 20)
	assert.Empty(t, out.Averted)
	assert.True(t, out.Killed)

	p.HP = 0
	p.SetPosition(combat.Stunned)
	f.now += time.Hour
	out = f.lc.ApplyDamage(ctx, nil, p, 20)
	assert.Equal(t, combat.AvertDefensiveRoll, out.Averted, "usable again once the cooldown elapses")
}

func TestHandleLethal_DeathWardConsumed(t *testing.T) {
	p := player("cleric")
	withFlag(t, p, "death_ward", effect.FlagDeathWard)
	f := newLifecycleFixture(p)

	out := f.lc.ApplyDamage(context.Background(), nil, p, 100)
	assert.Equal(t, combat.AvertDeathWard, out.Averted)
	assert.False(t, p.Effects.Has("death_ward"))
}

func TestKill_CleansUpReferences(t *testing.T) {
	hero, orc, wolf := player("hero"), fighter("orc"), fighter("wolf")
	hero.Target, wolf.Target = "orc", "orc"
	wolf.Leader = "orc"
	orc.Mount = "wolf"
	wolf.Rider = "orc"
	f := newLifecycleFixture(hero, orc, wolf)
	for _, c := range []*combat.Combatant{hero, orc, wolf} {
		f.registry.Join(c)
	}
	withFlag(t, orc, "haste", effect.FlagHaste)

	f.lc.Kill(context.Background(), hero, orc)
	assert.False(t, f.registry.Contains("orc"))
	assert.Empty(t, hero.Target)
	assert.Empty(t, wolf.Target)
	assert.Empty(t, wolf.Leader)
	assert.Empty(t, wolf.Rider)
	assert.Equal(t, 0, orc.Effects.Len())
}

func TestKill_PlayerRecalledAndPenalised(t *testing.T) {
	p := player("hero")
	p.Level = 10
	p.Experience = 1000
	p.Room = "dungeon"
	f := newLifecycleFixture(p)
	p.SetPosition(combat.Dead)

	f.lc.Kill(context.Background(), nil, p)
	assert.Equal(t, 500, p.Experience)
	assert.Equal(t, 1, p.HP)
	assert.Equal(t, "start", p.Room)
	assert.Equal(t, combat.Standing, p.Position())
	assert.Equal(t, "start", f.mover.relocated["hero"])
	assert.Equal(t, []string{"hero"}, f.persist.persisted)
	_, ok := f.roster.Get("hero")
	assert.True(t, ok, "players stay in the roster")
}

func TestKill_GroupShare(t *testing.T) {
	a, b, orc := player("a"), player("b"), fighter("orc")
	a.Group, b.Group = "party", "party"
	orc.Experience = 600
	f := newLifecycleFixture(a, b, orc)

	earned := f.lc.Kill(context.Background(), a, orc)
	assert.Equal(t, 100, earned)
	assert.Equal(t, 100, f.economy.granted["b"])
}

func TestBleed(t *testing.T) {
	p := player("hero")
	p.HP = -4
	p.SetPosition(combat.Incapacitated)
	f := newLifecycleFixture(p)
	assert.True(t, f.lc.Bleed(context.Background(), p))
	assert.Equal(t, -5, p.HP)

	f.registry.Join(p)
	assert.False(t, f.lc.Bleed(context.Background(), p), "engaged players do not bleed")

	npc := fighter("orc")
	npc.SetPosition(combat.Incapacitated)
	assert.False(t, f.lc.Bleed(context.Background(), npc))
}

func TestApplyDamage_DownedPlayerLeavesRegistry(t *testing.T) {
	p, orc := player("hero"), fighter("orc")
	f := newLifecycleFixture(p, orc)
	f.registry.Join(p)
	f.registry.Join(orc)
	p.Target = orc.ID

	out := f.lc.ApplyDamage(context.Background(), orc, p, 31)
	assert.Equal(t, combat.Stunned, out.Position)
	assert.False(t, f.registry.Contains(p.ID))
	assert.Empty(t, p.Target)
	assert.True(t, f.registry.Contains(orc.ID))
}

func TestBleed_StunnedPlayerRecovers(t *testing.T) {
	p := player("hero")
	p.HP = -1
	p.SetPosition(combat.Stunned)
	f := newLifecycleFixture(p)
	ctx := context.Background()

	require.True(t, f.lc.Bleed(ctx, p))
	assert.Equal(t, 0, p.HP)
	assert.Equal(t, combat.Stunned, p.Position())

	require.True(t, f.lc.Bleed(ctx, p))
	assert.Equal(t, 1, p.HP)
	assert.Equal(t, combat.Sitting, p.Position())
	assert.False(t, f.lc.Bleed(ctx, p), "conscious players do not bleed")
}

func TestBleed_ToDeath(t *testing.T) {
	p := player("hero")
	p.HP = -10
	p.SetPosition(combat.MortallyWounded)
	f := newLifecycleFixture(p)
	require.True(t, f.lc.Bleed(context.Background(), p))
	assert.Len(t, f.persist.kills, 1)
	assert.Equal(t, 1, p.HP)
}

func TestSoloExperience(t *testing.T) {
	k := fighter("k")
	k.Level = 10
	v := fighter("v")
	v.Level = 5
	v.Experience = 3000
	assert.Equal(t, 1, combat.SoloExperience(k, v, 2000000), "far lower level yields 1")

	v.Level = 10
	assert.Equal(t, 1000, combat.SoloExperience(k, v, 2000000))
	assert.Equal(t, 500, combat.SoloExperience(k, v, 500))
}

func TestExperience_Bounds_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k, v := fighter("k"), fighter("v")
		k.Level = rapid.IntRange(1, 50).Draw(rt, "kl")
		v.Level = rapid.IntRange(1, 50).Draw(rt, "vl")
		v.Experience = rapid.IntRange(0, 10000000).Draw(rt, "xp")
		maxGain := rapid.IntRange(1, 2000000).Draw(rt, "max")
		gain := combat.SoloExperience(k, v, maxGain)
		assert.GreaterOrEqual(rt, gain, 1)
		assert.LessOrEqual(rt, gain, maxGain)

		n := rapid.IntRange(1, 8).Draw(rt, "n")
		assert.GreaterOrEqual(rt, combat.GroupShare(v.Experience, n)*n, v.Experience/3)
	})
}
