package combat_test

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// seqSrc returns queued values in order, then zeros. A d-sided die rolls v%sides+1.
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

func roller(vals ...int) *dice.Roller {
	return dice.NewLoggedRoller(&seqSrc{vals: vals}, zap.NewNop())
}

// d20 converts a natural roll into the queued value that produces it.
func d20(natural int) int { return natural - 1 }

func fighter(id string) *combat.Combatant {
	return &combat.Combatant{
		ID:        id,
		Kind:      combat.KindNPC,
		Name:      id,
		Level:     1,
		Room:      "arena",
		HP:        30,
		MaxHP:     30,
		Abilities: combat.Abilities{Str: 10, Dex: 10, Con: 10, Int: 10, Wis: 10, Cha: 10},
		Acted:     true,
		Actions:   combat.ActionEconomy{Standard: true, Move: true, Swift: true, FullRound: true},
	}
}

func player(id string) *combat.Combatant {
	c := fighter(id)
	c.Kind = combat.KindPlayer
	return c
}

type recordingNarrator struct {
	mu    sync.Mutex
	lines []combat.Narration
}

func (n *recordingNarrator) Narrate(_ context.Context, msg combat.Narration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, msg)
}

func (n *recordingNarrator) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.lines))
	for i, l := range n.lines {
		out[i] = l.Text
	}
	return out
}

type fakeMover struct {
	exits     map[string]string // room -> destination
	relocated map[string]string
}

func newMover(exits map[string]string) *fakeMover {
	return &fakeMover{exits: exits, relocated: make(map[string]string)}
}

func (m *fakeMover) CanRetreat(_ context.Context, _, room, _ string) (string, bool) {
	to, ok := m.exits[room]
	return to, ok
}

func (m *fakeMover) Relocate(_ context.Context, id, room string) error {
	m.relocated[id] = room
	return nil
}

type fakePersister struct {
	persisted []string
	kills     []combat.KillRecord
}

func (p *fakePersister) PersistCombatant(_ context.Context, c *combat.Combatant) error {
	p.persisted = append(p.persisted, c.ID)
	return nil
}

func (p *fakePersister) RecordKill(_ context.Context, k combat.KillRecord) error {
	p.kills = append(p.kills, k)
	return nil
}

type fakeEconomy struct {
	granted map[string]int
	loot    []string
}

func newEconomy() *fakeEconomy { return &fakeEconomy{granted: make(map[string]int)} }

func (e *fakeEconomy) GrantExperience(_ context.Context, c *combat.Combatant, amount int) {
	e.granted[c.ID] += amount
}

func (e *fakeEconomy) GenerateLoot(_ context.Context, victim, _ *combat.Combatant) error {
	e.loot = append(e.loot, victim.ID)
	return nil
}
