package combat

import (
	"context"
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/effect"
)

// Size is a creature size category.
type Size int

const (
	SizeFine Size = iota - 4
	SizeDiminutive
	SizeTiny
	SizeSmall
	SizeMedium
	SizeLarge
	SizeHuge
	SizeGargantuan
	SizeColossal
)

var sizeModifiers = map[Size]int{
	SizeFine: 8, SizeDiminutive: 4, SizeTiny: 2, SizeSmall: 1, SizeMedium: 0,
	SizeLarge: -1, SizeHuge: -2, SizeGargantuan: -4, SizeColossal: -8,
}

// Modifier returns the size bonus to attack and armor class.
func (s Size) Modifier() int { return sizeModifiers[s] }

// ManeuverModifier returns the special size modifier used by CMB and CMD.
func (s Size) ManeuverModifier() int { return -sizeModifiers[s] }

// Feat is a named capability a combatant may have.
type Feat string

const (
	FeatAmbidexterity        Feat = "ambidexterity"
	FeatTwoWeaponFighting    Feat = "two_weapon_fighting"
	FeatImprovedTwoWeapon    Feat = "improved_two_weapon_fighting"
	FeatGreaterTwoWeapon     Feat = "greater_two_weapon_fighting"
	FeatWeaponFinesse        Feat = "weapon_finesse"
	FeatImprovedCritical     Feat = "improved_critical"
	FeatEpicCritical         Feat = "epic_critical"
	FeatIncreasedMultiplier  Feat = "increased_multiplier"
	FeatOverwhelmingCritical Feat = "overwhelming_critical"
	FeatDirtyFighting        Feat = "dirty_fighting"
	FeatDeflectArrows        Feat = "deflect_arrows"
	FeatMountedCombat        Feat = "mounted_combat"
	FeatRapidReload          Feat = "rapid_reload"
	FeatDefensiveRoll        Feat = "defensive_roll"
	FeatEvasiveLeap          Feat = "evasive_leap"
	FeatImprovedGrapple      Feat = "improved_grapple"
	FeatImprovedDisarm       Feat = "improved_disarm"
	FeatImprovedTrip         Feat = "improved_trip"
	FeatCleave               Feat = "cleave"
)

// Abilities holds the six ability scores.
type Abilities struct {
	Str, Dex, Con, Int, Wis, Cha int
}

// Weapon is an equipped weapon or natural attack.
type Weapon struct {
	Name   string
	Damage string // dice expression, e.g. "1d8"
	// DamageType defaults to bludgeoning.
	DamageType  string
	Enhancement int
	// ThreatRange is the width of the critical threat range: 1 threatens on 20 only, 2 on 19-20.
	ThreatRange    int
	CritMultiplier int
	TwoHanded      bool
	Finesse        bool
	Ranged         bool
	// Family groups ranged weapons; thrown and sling add strength to damage.
	Family string
	// DamageAbility overrides the damage ability: "str", "dex" or "none".
	DamageAbility  string
	RequiresReload bool
	Magic          bool
	Material       string
	// BurstDice are critical-only dice added after multiplication.
	BurstDice string
	Procs     []Proc
}

// IsMagic reports whether the weapon counts as magical for bypass purposes.
func (w *Weapon) IsMagic() bool { return w != nil && (w.Magic || w.Enhancement > 0) }

func (w *Weapon) damageType() string {
	if w == nil || w.DamageType == "" {
		return DamageBludgeoning
	}
	return w.DamageType
}

// Armor holds equipment contributions to armor class.
type Armor struct {
	Armor, Shield, NaturalArmor, Deflection int
	// DexCap limits the dexterity bonus to AC; 0 means uncapped.
	DexCap int
}

// Defenses holds a combatant's innate mitigation.
type Defenses struct {
	Absorb map[string]int // flat absorption per damage type
	Resist map[string]int // percent resistance per damage type; negative is vulnerability
	DR     int
	// DRBypass names the material ("silver", "adamantine") or "magic" that ignores DR.
	DRBypass    string
	Concealment int
	Incorporeal bool
	Legless     bool
	Flying      bool
}

// ActionEconomy tracks which actions remain available this round.
type ActionEconomy struct {
	Standard, Move, Swift, FullRound bool
}

func fullEconomy() ActionEconomy {
	return ActionEconomy{Standard: true, Move: true, Swift: true, FullRound: true}
}

// Reactions tracks per-round reactive defense use.
type Reactions struct {
	TotalDefense   bool
	DeflectMissile bool
	MountedBlock   bool
	Parries        int
}

// Combatant represents one participant: a player or an NPC instance.
type Combatant struct {
	ID    string
	Kind  Kind
	Name  string
	Level int
	Room  string

	// Template names the NPC template the combatant was spawned from; empty for players.
	Template string

	Initiative int
	// Target is a non-owning reference validated lazily on every tick.
	Target string

	HP, MaxHP     int
	Mana, MaxMana int
	Experience    int
	Wimpy         int

	Abilities Abilities
	Size      Size
	BAB       int
	MonkLevel int
	// SneakDice is the number of sneak attack d6.
	SneakDice int

	Armor    Armor
	Mainhand *Weapon
	Offhand  *Weapon
	Natural  *Weapon
	Ammo     int
	Feats    []Feat
	Defenses Defenses
	Effects  *effect.ActiveSet

	Group  string
	Leader string
	Mount  string
	Rider  string

	// Acted is false until the combatant's first dispatched phase; until then it is flat-footed.
	Acted bool

	Actions   ActionEconomy
	Reactions Reactions

	position   *PositionMachine
	grappling  string
	grappledBy string
	// cooldowns maps ability name to the simulated time it becomes usable again.
	cooldowns map[string]time.Duration
}

func (c *Combatant) machine() *PositionMachine {
	if c.position == nil {
		c.position = NewPositionMachine(Standing, c.enterPosition)
	}
	return c.position
}

// enterPosition interrupts spellcasting when the combatant drops to sitting or lower.
func (c *Combatant) enterPosition(_, to Position) {
	if to > Sitting || c.Effects == nil {
		return
	}
	for {
		a, ok := c.Effects.FirstWithFlag(effect.FlagCasting)
		if !ok {
			return
		}
		c.Effects.Remove(a.Def.ID)
	}
}

// Position returns the current position.
func (c *Combatant) Position() Position { return c.machine().Current() }

// SetPosition forces the position without transition hooks.
func (c *Combatant) SetPosition(p Position) { c.machine().Force(p) }

// Transition fires a position event.
func (c *Combatant) Transition(ctx context.Context, event string) error {
	return c.machine().Fire(ctx, event)
}

// IsPlayer reports whether this combatant is a player character.
func (c *Combatant) IsPlayer() bool { return c.Kind == KindPlayer }

// Alive reports whether the combatant has not died.
func (c *Combatant) Alive() bool {
	return c != nil && c.Position() > Dead
}

// Downed reports whether the combatant is alive but out of the fight.
func (c *Combatant) Downed() bool {
	return c.Alive() && (c.HP <= 0 || c.Position() <= Stunned)
}

// Helpless reports whether the combatant cannot defend itself.
func (c *Combatant) Helpless() bool {
	return c.Position() <= Sleeping || c.hasFlag(effect.FlagPinned)
}

// FlatFooted reports whether the combatant loses its dexterity and dodge defenses.
func (c *Combatant) FlatFooted() bool {
	return !c.Acted || c.hasFlag(effect.FlagFlatFooted) || c.Helpless()
}

// HasFeat reports whether the combatant has f.
func (c *Combatant) HasFeat(f Feat) bool {
	for _, g := range c.Feats {
		if g == f {
			return true
		}
	}
	return false
}

func (c *Combatant) hasFlag(f effect.Flag) bool {
	return c.Effects != nil && c.Effects.HasFlag(f)
}

func (c *Combatant) effects() *effect.ActiveSet {
	if c.Effects == nil {
		c.Effects = effect.NewActiveSet()
	}
	return c.Effects
}

// StrMod returns the strength modifier.
func (c *Combatant) StrMod() int { return AbilityMod(c.Abilities.Str) }

// DexMod returns the dexterity modifier.
func (c *Combatant) DexMod() int { return AbilityMod(c.Abilities.Dex) }

// Grappling returns the ID of the combatant this one holds, if any.
func (c *Combatant) Grappling() string { return c.grappling }

// GrappledBy returns the ID of the combatant holding this one, if any.
func (c *Combatant) GrappledBy() string { return c.grappledBy }

// DualWielding reports whether the combatant fights with a melee weapon in each hand.
func (c *Combatant) DualWielding() bool {
	return c.Offhand != nil && !c.Offhand.Ranged && (c.Mainhand == nil || !c.Mainhand.Ranged)
}

// WeaponFor returns the weapon used for mode; nil means unarmed.
func (c *Combatant) WeaponFor(mode Mode) *Weapon {
	switch mode {
	case ModeOffhand:
		return c.Offhand
	default:
		if c.Mainhand == nil {
			return c.Natural
		}
		return c.Mainhand
	}
}

func (c *Combatant) resetRound() {
	c.Actions = fullEconomy()
	c.Reactions = Reactions{}
}

func (c *Combatant) ready(ability string, now time.Duration) bool {
	return now >= c.cooldowns[ability]
}

func (c *Combatant) startCooldown(ability string, until time.Duration) {
	if c.cooldowns == nil {
		c.cooldowns = make(map[string]time.Duration)
	}
	c.cooldowns[ability] = until
}

// HealthDescription renders hp/maxHP as a diagnose phrase.
//
// Precondition: maxHP > 0.
func HealthDescription(hp, maxHP int) string {
	pct := -1
	if maxHP > 0 {
		pct = hp * 100 / maxHP
	}
	switch {
	case pct >= 100:
		return "is in excellent condition"
	case pct >= 95:
		return "has a few scratches"
	case pct >= 75:
		return "has some small wounds and bruises"
	case pct >= 55:
		return "has quite a few wounds"
	case pct >= 35:
		return "has some big nasty wounds and scratches"
	case pct >= 15:
		return "looks pretty hurt"
	case pct >= 1:
		return "is in awful condition"
	default:
		return "is bleeding awfully from big wounds"
	}
}
