package gameserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// Save kinds understood by SaveTable.
const (
	SaveFortitude = "fortitude"
	SaveReflex    = "reflex"
	SaveWill      = "will"
)

// SaveTable implements combat.SaveResolver with a d20 roll plus half level
// plus the governing ability modifier. A natural 20 always succeeds and a
// natural 1 always fails.
type SaveTable struct {
	Roller *dice.Roller
	Logger *zap.Logger
}

// Save rolls c's saving throw of kind against dc.
func (s SaveTable) Save(_ context.Context, c *combat.Combatant, kind string, dc int) bool {
	if c == nil {
		return false
	}
	natural := s.Roller.D20()
	total := natural + c.Level/2 + saveAbility(c, kind)
	ok := natural == 20 || (natural != 1 && total >= dc)
	s.Logger.Debug("saving throw",
		zap.String("combatant", c.ID),
		zap.String("kind", kind),
		zap.Int("natural", natural),
		zap.Int("total", total),
		zap.Int("dc", dc),
		zap.Bool("saved", ok),
	)
	return ok
}

func saveAbility(c *combat.Combatant, kind string) int {
	switch kind {
	case SaveFortitude:
		return combat.AbilityMod(c.Abilities.Con)
	case SaveReflex:
		return combat.AbilityMod(c.Abilities.Dex)
	case SaveWill:
		return combat.AbilityMod(c.Abilities.Wis)
	default:
		return 0
	}
}
