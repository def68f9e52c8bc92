package combat

import "github.com/cory-johannsen/skirmish/internal/game/effect"

// Interception names the reactive defense that stopped an attack.
type Interception int

const (
	InterceptNone Interception = iota
	InterceptTotalDefense
	InterceptDeflect
	InterceptMountedBlock
	InterceptParry
)

var interceptionNames = [...]string{"none", "total defense", "deflect", "mounted block", "parry"}

// String returns the interception name.
func (i Interception) String() string {
	if i < 0 || int(i) >= len(interceptionNames) {
		return "unknown"
	}
	return interceptionNames[i]
}

// ParryLimit returns how many parries c may attempt per round.
func ParryLimit(c *Combatant) int {
	return 1 + max(c.BAB, 0)/5
}

// interceptBeforeRoll applies reactions that stop an attack outright.
// Each is spent at most once per defender per round.
func (r *Resolver) interceptBeforeRoll(ac AttackContext) Interception {
	d := ac.Defender
	if d.Helpless() {
		return InterceptNone
	}
	switch {
	case ac.Mode.Melee() && d.hasFlag(effect.FlagTotalDefense) && !d.Reactions.TotalDefense:
		d.Reactions.TotalDefense = true
		return InterceptTotalDefense
	case ac.Mode == ModeRanged && d.HasFeat(FeatDeflectArrows) && !d.Reactions.DeflectMissile && !d.FlatFooted():
		d.Reactions.DeflectMissile = true
		return InterceptDeflect
	}
	return InterceptNone
}

// interceptAfterHit applies contested reactions against an attack total that
// would otherwise hit.
func (r *Resolver) interceptAfterHit(ac AttackContext, total int) Interception {
	d := ac.Defender
	if d.Helpless() {
		return InterceptNone
	}
	if d.Mount != "" && d.HasFeat(FeatMountedCombat) && !d.Reactions.MountedBlock {
		d.Reactions.MountedBlock = true
		if r.roller.D20()+d.DexMod()+d.Level >= total {
			return InterceptMountedBlock
		}
	}
	if ac.Mode.Melee() && d.hasFlag(effect.FlagParryStance) && d.Reactions.Parries < ParryLimit(d) {
		d.Reactions.Parries++
		if r.roller.D20()+d.BAB+d.DexMod() >= total {
			return InterceptParry
		}
	}
	return InterceptNone
}
