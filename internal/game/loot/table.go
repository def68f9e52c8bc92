// Package loot holds loot tables, corpse generation and the experience ledger.
package loot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// CurrencyDrop defines the range of currency a victim can drop on death.
type CurrencyDrop struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ItemDrop defines a single item entry in a loot table with a drop chance.
type ItemDrop struct {
	ItemID string  `yaml:"item"`
	Chance float64 `yaml:"chance"`
	MinQty int     `yaml:"min_qty"`
	MaxQty int     `yaml:"max_qty"`
}

// Table defines the possible loot drops for an NPC template.
type Table struct {
	Template string        `yaml:"template"`
	Currency *CurrencyDrop `yaml:"currency"`
	Items    []ItemDrop    `yaml:"items"`
}

// Validate checks that the loot table satisfies its invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff all currency and item constraints hold;
// an empty loot table (no currency, no items) is valid.
func (t *Table) Validate() error {
	if t.Currency != nil {
		if t.Currency.Min < 0 {
			return fmt.Errorf("loot table %q: currency min must be >= 0, got %d", t.Template, t.Currency.Min)
		}
		if t.Currency.Min > t.Currency.Max {
			return fmt.Errorf("loot table %q: currency min (%d) must be <= max (%d)", t.Template, t.Currency.Min, t.Currency.Max)
		}
	}
	for i, item := range t.Items {
		if item.ItemID == "" {
			return fmt.Errorf("loot table %q: item[%d] must have a non-empty item id", t.Template, i)
		}
		if item.Chance <= 0 || item.Chance > 1.0 {
			return fmt.Errorf("loot table %q: item[%d] chance must be in (0, 1.0], got %f", t.Template, i, item.Chance)
		}
		if item.MinQty < 1 {
			return fmt.Errorf("loot table %q: item[%d] min_qty must be >= 1, got %d", t.Template, i, item.MinQty)
		}
		if item.MinQty > item.MaxQty {
			return fmt.Errorf("loot table %q: item[%d] min_qty (%d) must be <= max_qty (%d)", t.Template, i, item.MinQty, item.MaxQty)
		}
	}
	return nil
}

// Item is a single item stack in a loot result.
type Item struct {
	ItemDefID string
	Quantity  int
}

// Result holds the generated loot from a single kill.
type Result struct {
	Currency int
	Items    []Item
}

// Generate rolls loot from t.
//
// Precondition: t must have passed Validate().
// Postcondition: Currency is in [Currency.Min, Currency.Max] if currency is set;
// each item's Quantity is in [MinQty, MaxQty] for items that pass the chance roll.
func Generate(t Table, roller *dice.Roller) Result {
	var result Result
	if t.Currency != nil && t.Currency.Max > 0 {
		result.Currency = roller.Between(t.Currency.Min, t.Currency.Max)
	}
	for _, item := range t.Items {
		if float64(roller.Percent()) > item.Chance*100 {
			continue
		}
		result.Items = append(result.Items, Item{
			ItemDefID: item.ItemID,
			Quantity:  roller.Between(item.MinQty, item.MaxQty),
		})
	}
	return result
}

// LoadDirectory reads every *.yaml file in dir as a Table keyed by template.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns every table, or an error if any file fails to parse or validate.
func LoadDirectory(dir string) (map[string]Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading loot dir %q: %w", dir, err)
	}
	tables := make(map[string]Table)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var t Table
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if t.Template == "" {
			return nil, fmt.Errorf("validating %q: template must not be empty", path)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("validating %q: %w", path, err)
		}
		if _, dup := tables[t.Template]; dup {
			return nil, fmt.Errorf("validating %q: duplicate table for template %q", path, t.Template)
		}
		tables[t.Template] = t
	}
	return tables, nil
}
