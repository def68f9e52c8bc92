package combat

import "github.com/cory-johannsen/skirmish/internal/game/dice"

// RollInitiative sets c.Initiative to d20 + DEX modifier.
//
// Precondition: c and roller must be non-nil.
func RollInitiative(c *Combatant, roller *dice.Roller) {
	c.Initiative = roller.D20() + c.DexMod()
}
