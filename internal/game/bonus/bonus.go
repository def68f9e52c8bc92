// Package bonus implements typed modifier stacking: the single fold used for
// attack bonus, armor class, and combat maneuver bonus/defense.
package bonus

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type classifies a modifier for stacking purposes.
type Type int

const (
	Undefined Type = iota
	Alchemical
	Armor
	Circumstance
	Competence
	Deflection
	Dodge
	Enhancement
	Insight
	Luck
	Morale
	NaturalArmor
	Profane
	Racial
	Resistance
	Sacred
	Shield
	Size
	Trait
	Universal
	typeCount
)

var typeNames = [...]string{
	Undefined:    "undefined",
	Alchemical:   "alchemical",
	Armor:        "armor",
	Circumstance: "circumstance",
	Competence:   "competence",
	Deflection:   "deflection",
	Dodge:        "dodge",
	Enhancement:  "enhancement",
	Insight:      "insight",
	Luck:         "luck",
	Morale:       "morale",
	NaturalArmor: "natural_armor",
	Profane:      "profane",
	Racial:       "racial",
	Resistance:   "resistance",
	Sacred:       "sacred",
	Shield:       "shield",
	Size:         "size",
	Trait:        "trait",
	Universal:    "universal",
}

// String returns the snake_case name used in definition files.
func (t Type) String() string {
	if t < 0 || t >= typeCount {
		return fmt.Sprintf("bonus(%d)", int(t))
	}
	return typeNames[t]
}

// Stacks reports whether multiple sources of this type sum rather than
// collapse to the strongest.
func (t Type) Stacks() bool {
	switch t {
	case Circumstance, Dodge, Undefined, Universal:
		return true
	default:
		return false
	}
}

// ParseType resolves a type name, case-insensitively.
//
// Postcondition: Returns the Type or an error naming the unknown input.
func ParseType(s string) (Type, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for i, name := range typeNames {
		if name == needle {
			return Type(i), nil
		}
	}
	return Undefined, fmt.Errorf("bonus: unknown type %q", s)
}

// UnmarshalYAML decodes a type from its name.
func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Contribution is one typed modifier from one source.
type Contribution struct {
	Type   Type   `yaml:"type"`
	Value  int    `yaml:"value"`
	Source string `yaml:"source,omitempty"`
}

// Bounds clamps a folded total. A zero Bounds does not clamp.
type Bounds struct {
	Min, Max int
}

// Clamp limits v to [b.Min, b.Max] unless b is the zero value.
func (b Bounds) Clamp(v int) int {
	if b == (Bounds{}) {
		return v
	}
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}
