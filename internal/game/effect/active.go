package effect

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/skirmish/internal/game/bonus"
)

// Active tracks one applied effect on a combatant.
type Active struct {
	Def               *Def
	Stacks            int
	DurationRemaining int // -1 = permanent or until_removed
	// WardRemaining is the undrained ward capacity; zero when Def.Ward is nil.
	WardRemaining int
	// Images is the count of decoy images left.
	Images int
}

// Absorb drains up to min(dam, perHitCap, WardRemaining) from the ward and
// returns the amount absorbed.
//
// Precondition: dam >= 0 and perHitCap > 0.
// Postcondition: 0 <= absorbed <= dam; WardRemaining decreases by absorbed.
func (a *Active) Absorb(dam, perHitCap int) int {
	absorbed := min(dam, perHitCap, a.WardRemaining)
	if absorbed < 0 {
		absorbed = 0
	}
	a.WardRemaining -= absorbed
	return absorbed
}

// ActiveSet tracks all effects currently applied to one combatant.
// It is not safe for concurrent use; the caller must serialise access.
type ActiveSet struct {
	effects map[string]*Active
}

// NewActiveSet creates an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{effects: make(map[string]*Active)}
}

// Apply adds or refreshes an effect.
// Re-applying increments stacks (capped at MaxStacks; unstackable stays 1),
// extends the duration to the longer of the two and refills ward capacity
// and decoy images.
// duration is rounds remaining; use -1 for permanent or until_removed.
//
// Precondition: def must not be nil.
// Postcondition: Has(def.ID) is true.
func (s *ActiveSet) Apply(def *Def, stacks, duration int) error {
	if def == nil {
		return fmt.Errorf("Apply: def must not be nil")
	}
	wardCap := 0
	if def.Ward != nil {
		wardCap = def.Ward.Capacity
	}

	if existing, ok := s.effects[def.ID]; ok {
		if def.MaxStacks > 0 {
			existing.Stacks = min(existing.Stacks+stacks, def.MaxStacks)
		}
		if duration > existing.DurationRemaining || duration < 0 {
			existing.DurationRemaining = duration
		}
		existing.WardRemaining = max(existing.WardRemaining, wardCap)
		existing.Images = max(existing.Images, def.Images)
		return nil
	}

	effective := 1
	if def.MaxStacks > 0 {
		effective = min(max(stacks, 1), def.MaxStacks)
	}
	s.effects[def.ID] = &Active{
		Def:               def,
		Stacks:            effective,
		DurationRemaining: duration,
		WardRemaining:     wardCap,
		Images:            def.Images,
	}
	return nil
}

// Remove deletes the effect with the given ID. Removing an absent effect is a no-op.
//
// Postcondition: Has(id) is false.
func (s *ActiveSet) Remove(id string) {
	delete(s.effects, id)
}

// Clear removes every effect and returns the removed IDs in sorted order.
//
// Postcondition: Len() == 0.
func (s *ActiveSet) Clear() []string {
	ids := make([]string, 0, len(s.effects))
	for id := range s.effects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.effects = make(map[string]*Active)
	return ids
}

// Tick decrements every "rounds" effect by one and removes those reaching zero.
//
// Postcondition: For every id in the returned (sorted) slice, Has(id) is false.
func (s *ActiveSet) Tick() []string {
	var expired []string
	for id, a := range s.effects {
		if a.Def.DurationType != DurationRounds || a.DurationRemaining < 0 {
			continue
		}
		a.DurationRemaining--
		if a.DurationRemaining <= 0 {
			expired = append(expired, id)
			delete(s.effects, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Has reports whether the effect with id is active.
func (s *ActiveSet) Has(id string) bool {
	_, ok := s.effects[id]
	return ok
}

// Get returns the active effect with id.
func (s *ActiveSet) Get(id string) (*Active, bool) {
	a, ok := s.effects[id]
	return a, ok
}

// Stacks returns the current stack count for id, or 0 if not present.
func (s *ActiveSet) Stacks(id string) int {
	if a, ok := s.effects[id]; ok {
		return a.Stacks
	}
	return 0
}

// Len returns the number of active effects.
func (s *ActiveSet) Len() int { return len(s.effects) }

// HasFlag reports whether any active effect carries f.
func (s *ActiveSet) HasFlag(f Flag) bool {
	for _, a := range s.effects {
		if a.Def.HasFlag(f) {
			return true
		}
	}
	return false
}

// FirstWithFlag returns the lowest-ID active effect carrying f.
func (s *ActiveSet) FirstWithFlag(f Flag) (*Active, bool) {
	for _, a := range s.All() {
		if a.Def.HasFlag(f) {
			return a, true
		}
	}
	return nil, false
}

// Contributions returns the typed contributions every active effect makes to
// stat, each multiplied by the effect's stack count.
func (s *ActiveSet) Contributions(stat Stat) []bonus.Contribution {
	var out []bonus.Contribution
	for _, a := range s.All() {
		for _, m := range a.Def.Modifiers {
			if m.Stat != stat {
				continue
			}
			out = append(out, bonus.Contribution{Type: m.Type, Value: m.Value * a.Stacks, Source: a.Def.ID})
		}
	}
	return out
}

// Concealment returns the largest concealment percentage among active effects.
func (s *ActiveSet) Concealment() int {
	best := 0
	for _, a := range s.effects {
		best = max(best, a.Def.Concealment)
	}
	return best
}

// Resistance returns the summed percentage resistance to damageType.
func (s *ActiveSet) Resistance(damageType string) int {
	total := 0
	for _, a := range s.effects {
		total += a.Def.Resistance[damageType]
	}
	return total
}

// Wards returns the active effects that still hold ward capacity, ordered by ID.
func (s *ActiveSet) Wards() []*Active {
	var out []*Active
	for _, a := range s.All() {
		if a.Def.Ward != nil && a.WardRemaining > 0 {
			out = append(out, a)
		}
	}
	return out
}

// Decoys returns the lowest-ID active effect with images left.
func (s *ActiveSet) Decoys() (*Active, bool) {
	for _, a := range s.All() {
		if a.Images > 0 {
			return a, true
		}
	}
	return nil, false
}

// All returns the active effects ordered by ID.
// The slice is a new allocation, but the pointed-to values are shared.
func (s *ActiveSet) All() []*Active {
	out := make([]*Active, 0, len(s.effects))
	for _, a := range s.effects {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.ID < out[j].Def.ID })
	return out
}
