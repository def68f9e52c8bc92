// Package effect models timed status effects on combatants: typed bonuses,
// behavioural flags, concealment, ablative wards and decoy images.
package effect

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/bonus"
)

// Duration types.
const (
	DurationRounds       = "rounds"
	DurationUntilRemoved = "until_removed"
	DurationPermanent    = "permanent"
)

// Stat names the combat number a Modifier feeds into.
type Stat string

const (
	StatAttack     Stat = "attack"
	StatArmorClass Stat = "ac"
	StatDamage     Stat = "damage"
	StatCMB        Stat = "cmb"
	StatCMD        Stat = "cmd"
)

func (s Stat) valid() bool {
	switch s {
	case StatAttack, StatArmorClass, StatDamage, StatCMB, StatCMD:
		return true
	}
	return false
}

// Flag is a behavioural marker carried by an effect.
type Flag string

const (
	FlagPreventsAction  Flag = "prevents_action"
	FlagHaste           Flag = "haste"
	FlagSanctuary       Flag = "sanctuary"
	FlagTrueSeeing      Flag = "true_seeing"
	FlagManaShield      Flag = "mana_shield"
	FlagTotalDefense    Flag = "total_defense"
	FlagDeathWard       Flag = "death_ward"
	FlagCritImmune      Flag = "crit_immune"
	FlagFatigued        Flag = "fatigued"
	FlagFlatFooted      Flag = "flat_footed"
	FlagIncorporeal     Flag = "incorporeal"
	FlagCasting         Flag = "casting"
	FlagParryStance     Flag = "parry_stance"
	FlagPowerAttack     Flag = "power_attack"
	FlagCombatExpertise Flag = "combat_expertise"
	FlagGrappled        Flag = "grappled"
	FlagPinned          Flag = "pinned"
	FlagFlying          Flag = "flying"
)

var knownFlags = map[Flag]struct{}{
	FlagPreventsAction: {}, FlagHaste: {}, FlagSanctuary: {}, FlagTrueSeeing: {},
	FlagManaShield: {}, FlagTotalDefense: {}, FlagDeathWard: {}, FlagCritImmune: {},
	FlagFatigued: {}, FlagFlatFooted: {}, FlagIncorporeal: {}, FlagCasting: {},
	FlagParryStance: {}, FlagPowerAttack: {}, FlagCombatExpertise: {},
	FlagGrappled: {}, FlagPinned: {}, FlagFlying: {},
}

// Modifier is one typed contribution to a Stat.
type Modifier struct {
	Stat  Stat       `yaml:"stat"`
	Type  bonus.Type `yaml:"type"`
	Value int        `yaml:"value"`
}

// WardDef describes an ablative damage pool.
// A zero PerHitCap defers to the configured stoneskin or epic ward cap.
type WardDef struct {
	Capacity        int  `yaml:"capacity"`
	PerHitCap       int  `yaml:"per_hit_cap"`
	Epic            bool `yaml:"epic"`
	BypassedByMagic bool `yaml:"bypassed_by_magic"`
}

// Def is the static definition of an effect, loaded from YAML.
type Def struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	DurationType string         `yaml:"duration_type"`
	MaxStacks    int            `yaml:"max_stacks"` // 0 = unstackable
	Modifiers    []Modifier     `yaml:"modifiers"`
	Flags        []Flag         `yaml:"flags"`
	Concealment  int            `yaml:"concealment"`
	Resistance   map[string]int `yaml:"resistance"`
	Ward         *WardDef       `yaml:"ward"`
	Images       int            `yaml:"images"`
}

// HasFlag reports whether the definition carries f.
func (d *Def) HasFlag(f Flag) bool {
	for _, g := range d.Flags {
		if g == f {
			return true
		}
	}
	return false
}

// Validate checks the definition for internal consistency.
//
// Postcondition: Returns nil or an error listing every violation.
func (d *Def) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	switch d.DurationType {
	case DurationRounds, DurationUntilRemoved, DurationPermanent:
	default:
		errs = append(errs, fmt.Errorf("duration_type %q is not one of rounds, until_removed, permanent", d.DurationType))
	}
	if d.MaxStacks < 0 {
		errs = append(errs, fmt.Errorf("max_stacks must be >= 0, got %d", d.MaxStacks))
	}
	for i, m := range d.Modifiers {
		if !m.Stat.valid() {
			errs = append(errs, fmt.Errorf("modifiers[%d].stat %q is unknown", i, m.Stat))
		}
	}
	for _, f := range d.Flags {
		if _, ok := knownFlags[f]; !ok {
			errs = append(errs, fmt.Errorf("flag %q is unknown", f))
		}
	}
	if d.Concealment < 0 || d.Concealment > 100 {
		errs = append(errs, fmt.Errorf("concealment must be in [0, 100], got %d", d.Concealment))
	}
	for typ, pct := range d.Resistance {
		if pct > 100 {
			errs = append(errs, fmt.Errorf("resistance[%s] must be <= 100, got %d", typ, pct))
		}
	}
	if d.Ward != nil && d.Ward.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("ward.capacity must be > 0, got %d", d.Ward.Capacity))
	}
	if d.Images < 0 {
		errs = append(errs, fmt.Errorf("images must be >= 0, got %d", d.Images))
	}
	if len(errs) > 0 {
		return fmt.Errorf("effect %q: %w", d.ID, errors.Join(errs...))
	}
	return nil
}

// Registry holds all known Defs keyed by ID.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def to the registry, overwriting any existing entry with the same ID.
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *Def) {
	r.defs[def.ID] = def
}

// Get returns the Def for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns the registered Defs ordered by ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses each as a Def,
// validates it and returns a populated Registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def Def
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("validating %q: %w", path, err)
		}
		reg.Register(&def)
	}
	return reg, nil
}
