// Package combat implements the combat-resolution core: engagement
// scheduling, attack resolution, damage, mitigation, maneuvers and the
// consequences of lethal damage.
package combat

import "errors"

var (
	// ErrCombatantNotFound is returned when an ID does not name a joined combatant.
	ErrCombatantNotFound = errors.New("combat: combatant not found")
	// ErrAlreadyJoined is returned when a combatant ID is joined twice.
	ErrAlreadyJoined = errors.New("combat: combatant already joined")
	// ErrAlreadyEngaged is returned when a combatant is already engaged with the requested target.
	ErrAlreadyEngaged = errors.New("combat: already engaged")
	// ErrNotCoLocated is returned when two combatants are in different rooms.
	ErrNotCoLocated = errors.New("combat: combatants are not in the same room")
	// ErrCannotEngage is returned for self-engagement or a combatant unable to fight.
	ErrCannotEngage = errors.New("combat: combatant cannot engage")
)

// Kind distinguishes player combatants from NPC combatants.
type Kind int

const (
	KindPlayer Kind = iota
	KindNPC
)

// String returns "player" or "npc".
func (k Kind) String() string {
	if k == KindPlayer {
		return "player"
	}
	return "npc"
}

// Outcome is the result of one attack roll.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	CriticalHit
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case Miss:
		return "miss"
	case Hit:
		return "hit"
	case CriticalHit:
		return "critical hit"
	default:
		return "unknown"
	}
}

// Landed reports whether the outcome deals damage.
func (o Outcome) Landed() bool { return o == Hit || o == CriticalHit }

// Mode is the route an attack takes.
type Mode int

const (
	ModePrimary Mode = iota
	ModeOffhand
	ModeRanged
	ModeManeuver
	ModeOpportunity
)

var modeNames = [...]string{"primary", "offhand", "ranged", "maneuver", "opportunity"}

// String returns the lower-case mode name.
func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// ParseMode resolves a mode name.
func ParseMode(s string) (Mode, bool) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), true
		}
	}
	return ModePrimary, false
}

// Melee reports whether the mode is a melee route.
func (m Mode) Melee() bool { return m == ModePrimary || m == ModeOffhand || m == ModeOpportunity }

// Origin classifies where incoming damage comes from.
// Only OriginWeapon is physical for concealment and decoy purposes.
type Origin int

const (
	OriginWeapon Origin = iota
	OriginSpell
	OriginEnvironment
)

var originNames = [...]string{"weapon", "spell", "environment"}

// String returns the lower-case origin name.
func (o Origin) String() string {
	if o < 0 || int(o) >= len(originNames) {
		return "unknown"
	}
	return originNames[o]
}

// ParseOrigin resolves an origin name.
func ParseOrigin(s string) (Origin, bool) {
	for i, n := range originNames {
		if n == s {
			return Origin(i), true
		}
	}
	return OriginWeapon, false
}

// Damage types.
const (
	DamageSlashing    = "slashing"
	DamagePiercing    = "piercing"
	DamageBludgeoning = "bludgeoning"
	DamageFire        = "fire"
	DamageCold        = "cold"
	DamageAcid        = "acid"
	DamageElectric    = "electric"
	DamageSonic       = "sonic"
	DamageForce       = "force"
	DamageNegative    = "negative"
)

// PhysicalType reports whether damageType is weapon damage subject to DR and wards.
func PhysicalType(damageType string) bool {
	switch damageType {
	case "", DamageSlashing, DamagePiercing, DamageBludgeoning:
		return true
	}
	return false
}

// RefusalKind classifies why an action was refused before any roll.
type RefusalKind int

const (
	ResourceUnavailable RefusalKind = iota
	RuleViolation
)

// String returns the refusal kind name.
func (k RefusalKind) String() string {
	if k == ResourceUnavailable {
		return "resource unavailable"
	}
	return "rule violation"
}

// Refusal is an outcome value describing an action refused before rolling.
type Refusal struct {
	Kind  RefusalKind
	Cause string
}

func refuse(kind RefusalKind, cause string) *Refusal {
	return &Refusal{Kind: kind, Cause: cause}
}

// AbilityMod computes the standard ability modifier using floor division: floor((score - 10) / 2).
// Postcondition: Returns floor((score - 10) / 2).
func AbilityMod(score int) int {
	diff := score - 10
	if diff < 0 {
		return (diff - 1) / 2
	}
	return diff / 2
}
