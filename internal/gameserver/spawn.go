package gameserver

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// ErrInvalidSpec is wrapped by every CombatantSpec validation failure.
var ErrInvalidSpec = errors.New("invalid combatant spec")

// Proc kinds accepted in a WeaponSpec.
const (
	ProcDamage     = "damage"
	ProcCritEffect = "crit_effect"
	ProcRiposte    = "riposte"
	ProcScript     = "script"
)

// AbilitiesSpec holds ability scores; omitted scores default to 10.
type AbilitiesSpec struct {
	Str int `json:"str"`
	Dex int `json:"dex"`
	Con int `json:"con"`
	Int int `json:"int"`
	Wis int `json:"wis"`
	Cha int `json:"cha"`
}

// ArmorSpec mirrors combat.Armor.
type ArmorSpec struct {
	Armor        int `json:"armor"`
	Shield       int `json:"shield"`
	NaturalArmor int `json:"natural_armor"`
	Deflection   int `json:"deflection"`
	DexCap       int `json:"dex_cap"`
}

// DefensesSpec mirrors combat.Defenses.
type DefensesSpec struct {
	Absorb      map[string]int `json:"absorb"`
	Resist      map[string]int `json:"resist"`
	DR          int            `json:"dr"`
	DRBypass    string         `json:"dr_bypass"`
	Concealment int            `json:"concealment"`
	Incorporeal bool           `json:"incorporeal"`
	Legless     bool           `json:"legless"`
	Flying      bool           `json:"flying"`
}

// ProcSpec describes one weapon procedure.
type ProcSpec struct {
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Dice   string `json:"dice"`
	Effect string `json:"effect"`
	Rounds int    `json:"rounds"`
	Save   string `json:"save"`
	DC     int    `json:"dc"`
	// Script names a loaded proc scope; it defaults to Label.
	Script string `json:"script"`
}

// WeaponSpec mirrors combat.Weapon with procs given by description.
type WeaponSpec struct {
	Name           string     `json:"name"`
	Damage         string     `json:"damage"`
	DamageType     string     `json:"damage_type"`
	Enhancement    int        `json:"enhancement"`
	ThreatRange    int        `json:"threat_range"`
	CritMultiplier int        `json:"crit_multiplier"`
	TwoHanded      bool       `json:"two_handed"`
	Finesse        bool       `json:"finesse"`
	Ranged         bool       `json:"ranged"`
	Family         string     `json:"family"`
	DamageAbility  string     `json:"damage_ability"`
	RequiresReload bool       `json:"requires_reload"`
	Magic          bool       `json:"magic"`
	Material       string     `json:"material"`
	BurstDice      string     `json:"burst_dice"`
	Procs          []ProcSpec `json:"procs"`
}

// EffectSpec is an effect active when the combatant joins.
type EffectSpec struct {
	ID     string `json:"id"`
	Stacks int    `json:"stacks"`
	// Rounds defaults to -1, until removed.
	Rounds *int `json:"rounds"`
}

// CombatantSpec is the wire description of a combatant joining combat.
type CombatantSpec struct {
	ID         string        `json:"id"`
	Kind       string        `json:"kind"`
	Name       string        `json:"name"`
	Level      int           `json:"level"`
	Room       string        `json:"room"`
	Template   string        `json:"template"`
	HP         *int          `json:"hp"`
	MaxHP      int           `json:"max_hp"`
	Mana       int           `json:"mana"`
	MaxMana    int           `json:"max_mana"`
	Experience int           `json:"experience"`
	Wimpy      int           `json:"wimpy"`
	Abilities  AbilitiesSpec `json:"abilities"`
	Size       string        `json:"size"`
	BAB        int           `json:"bab"`
	MonkLevel  int           `json:"monk_level"`
	SneakDice  int           `json:"sneak_dice"`
	Armor      ArmorSpec     `json:"armor"`
	Mainhand   *WeaponSpec   `json:"mainhand"`
	Offhand    *WeaponSpec   `json:"offhand"`
	Natural    *WeaponSpec   `json:"natural"`
	Ammo       int           `json:"ammo"`
	Feats      []string      `json:"feats"`
	Defenses   DefensesSpec  `json:"defenses"`
	Effects    []EffectSpec  `json:"effects"`
	Group      string        `json:"group"`
	Leader     string        `json:"leader"`
	Mount      string        `json:"mount"`
	Rider      string        `json:"rider"`
	Position   string        `json:"position"`
}

// NewCombatantSpec returns a spec holding the defaults that decoding
// overwrites: average abilities and medium size.
func NewCombatantSpec() CombatantSpec {
	return CombatantSpec{
		Kind:      "npc",
		Abilities: AbilitiesSpec{Str: 10, Dex: 10, Con: 10, Int: 10, Wis: 10, Cha: 10},
		Size:      "medium",
	}
}

var sizeNames = map[string]combat.Size{
	"fine": combat.SizeFine, "diminutive": combat.SizeDiminutive, "tiny": combat.SizeTiny,
	"small": combat.SizeSmall, "medium": combat.SizeMedium, "large": combat.SizeLarge,
	"huge": combat.SizeHuge, "gargantuan": combat.SizeGargantuan, "colossal": combat.SizeColossal,
}

// Spawner turns specs into combatants, resolving effect IDs and script procs.
type Spawner struct {
	Effects *effect.Registry
	// Scripts may be nil; script procs are then rejected.
	Scripts *scripting.Manager
}

// Build validates spec and returns the combatant it describes.
//
// Postcondition: every returned error wraps ErrInvalidSpec.
func (s Spawner) Build(spec CombatantSpec) (*combat.Combatant, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidSpec)
	}
	if spec.MaxHP < 1 {
		return nil, fmt.Errorf("%w: %s: max_hp must be >= 1, got %d", ErrInvalidSpec, spec.ID, spec.MaxHP)
	}
	if spec.Room == "" {
		return nil, fmt.Errorf("%w: %s: room is required", ErrInvalidSpec, spec.ID)
	}
	c := &combat.Combatant{
		ID: spec.ID, Name: spec.Name, Level: spec.Level, Room: spec.Room, Template: spec.Template,
		HP: spec.MaxHP, MaxHP: spec.MaxHP, Mana: spec.Mana, MaxMana: spec.MaxMana,
		Experience: spec.Experience, Wimpy: spec.Wimpy,
		Abilities: combat.Abilities{
			Str: spec.Abilities.Str, Dex: spec.Abilities.Dex, Con: spec.Abilities.Con,
			Int: spec.Abilities.Int, Wis: spec.Abilities.Wis, Cha: spec.Abilities.Cha,
		},
		BAB: spec.BAB, MonkLevel: spec.MonkLevel, SneakDice: spec.SneakDice,
		Armor: combat.Armor{
			Armor: spec.Armor.Armor, Shield: spec.Armor.Shield, NaturalArmor: spec.Armor.NaturalArmor,
			Deflection: spec.Armor.Deflection, DexCap: spec.Armor.DexCap,
		},
		Ammo: spec.Ammo,
		Defenses: combat.Defenses{
			Absorb: spec.Defenses.Absorb, Resist: spec.Defenses.Resist,
			DR: spec.Defenses.DR, DRBypass: spec.Defenses.DRBypass,
			Concealment: spec.Defenses.Concealment, Incorporeal: spec.Defenses.Incorporeal,
			Legless: spec.Defenses.Legless, Flying: spec.Defenses.Flying,
		},
		Group: spec.Group, Leader: spec.Leader, Mount: spec.Mount, Rider: spec.Rider,
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if spec.HP != nil {
		c.HP = min(*spec.HP, spec.MaxHP)
	}

	switch spec.Kind {
	case "player":
		c.Kind = combat.KindPlayer
	case "npc", "":
		c.Kind = combat.KindNPC
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidSpec, spec.ID, spec.Kind)
	}

	size, ok := sizeNames[spec.Size]
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown size %q", ErrInvalidSpec, spec.ID, spec.Size)
	}
	c.Size = size

	for _, f := range spec.Feats {
		c.Feats = append(c.Feats, combat.Feat(f))
	}

	var err error
	if c.Mainhand, err = s.weapon(spec.ID, spec.Mainhand); err != nil {
		return nil, err
	}
	if c.Offhand, err = s.weapon(spec.ID, spec.Offhand); err != nil {
		return nil, err
	}
	if c.Natural, err = s.weapon(spec.ID, spec.Natural); err != nil {
		return nil, err
	}

	if spec.Position != "" {
		p, ok := combat.ParsePosition(spec.Position)
		if !ok || p == combat.Dead {
			return nil, fmt.Errorf("%w: %s: cannot join in position %q", ErrInvalidSpec, spec.ID, spec.Position)
		}
		c.SetPosition(p)
	}

	if len(spec.Effects) > 0 {
		c.Effects = effect.NewActiveSet()
		for _, es := range spec.Effects {
			if err := s.applyEffect(c, es); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (s Spawner) applyEffect(c *combat.Combatant, es EffectSpec) error {
	if s.Effects == nil {
		return fmt.Errorf("%w: %s: no effects are loaded", ErrInvalidSpec, c.ID)
	}
	def, ok := s.Effects.Get(es.ID)
	if !ok {
		return fmt.Errorf("%w: %s: unknown effect %q", ErrInvalidSpec, c.ID, es.ID)
	}
	rounds := -1
	if es.Rounds != nil {
		rounds = *es.Rounds
	}
	return c.Effects.Apply(def, max(es.Stacks, 1), rounds)
}

func (s Spawner) weapon(owner string, ws *WeaponSpec) (*combat.Weapon, error) {
	if ws == nil {
		return nil, nil
	}
	if _, err := dice.Parse(ws.Damage); err != nil {
		return nil, fmt.Errorf("%w: %s: weapon %q damage: %v", ErrInvalidSpec, owner, ws.Name, err)
	}
	if ws.BurstDice != "" {
		if _, err := dice.Parse(ws.BurstDice); err != nil {
			return nil, fmt.Errorf("%w: %s: weapon %q burst dice: %v", ErrInvalidSpec, owner, ws.Name, err)
		}
	}
	w := &combat.Weapon{
		Name: ws.Name, Damage: ws.Damage, DamageType: ws.DamageType, Enhancement: ws.Enhancement,
		ThreatRange: ws.ThreatRange, CritMultiplier: ws.CritMultiplier,
		TwoHanded: ws.TwoHanded, Finesse: ws.Finesse, Ranged: ws.Ranged, Family: ws.Family,
		DamageAbility: ws.DamageAbility, RequiresReload: ws.RequiresReload, Magic: ws.Magic,
		Material: ws.Material, BurstDice: ws.BurstDice,
	}
	for _, ps := range ws.Procs {
		p, err := s.proc(ps)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: weapon %q: %v", ErrInvalidSpec, owner, ws.Name, err)
		}
		w.Procs = append(w.Procs, p)
	}
	return w, nil
}

func (s Spawner) proc(ps ProcSpec) (combat.Proc, error) {
	switch ps.Kind {
	case ProcDamage:
		expr, err := dice.Parse(ps.Dice)
		if err != nil {
			return nil, fmt.Errorf("proc %q dice: %v", ps.Label, err)
		}
		return combat.DamageProc{Label: ps.Label, Dice: expr}, nil
	case ProcCritEffect, ProcRiposte:
		if s.Effects == nil {
			return nil, fmt.Errorf("proc %q: no effects are loaded", ps.Label)
		}
		if _, ok := s.Effects.Get(ps.Effect); !ok {
			return nil, fmt.Errorf("proc %q: unknown effect %q", ps.Label, ps.Effect)
		}
		if ps.Kind == ProcRiposte {
			return combat.RiposteProc{Label: ps.Label, EffectID: ps.Effect, Rounds: ps.Rounds}, nil
		}
		return combat.CritEffectProc{Label: ps.Label, EffectID: ps.Effect, Rounds: ps.Rounds, SaveKind: ps.Save, SaveDC: ps.DC}, nil
	case ProcScript:
		scope := ps.Script
		if scope == "" {
			scope = ps.Label
		}
		if s.Scripts == nil || !s.Scripts.Has(scope) {
			return nil, fmt.Errorf("proc %q: no script scope %q", ps.Label, scope)
		}
		return s.Scripts.NewProc(scope), nil
	default:
		return nil, fmt.Errorf("proc %q: unknown kind %q", ps.Label, ps.Kind)
	}
}
