package combat

import (
	"sort"

	"github.com/google/uuid"
)

// followUp is an attack queued for the owner's next tick, e.g. a cleave.
type followUp struct {
	Mode    Mode
	Penalty int
	Reason  string
}

// entry is one engaged combatant together with its schedule state. Removing
// the entry removes the schedule with it.
type entry struct {
	c          *Combatant
	seq        uint64
	engagement uuid.UUID
	// phase is 0 until the first tick, then cycles 1..phases.
	phase   int
	plan    []PlannedAttack
	pending []followUp
	// rangedCancelled stops the rest of this round's ranged attacks.
	rangedCancelled bool
}

// Registry owns the initiative-ordered set of engaged combatants.
// Order is initiative descending, then join sequence; existing entries are
// never renumbered. It is not safe for concurrent use.
type Registry struct {
	entries []*entry
	byID    map[string]*entry
	nextSeq uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*entry)}
}

// Join inserts c in initiative order.
//
// Precondition: c must not be nil.
// Postcondition: Returns false without change if c.ID is already present.
func (r *Registry) Join(c *Combatant) bool {
	if _, ok := r.byID[c.ID]; ok {
		return false
	}
	r.nextSeq++
	e := &entry{c: c, seq: r.nextSeq, engagement: uuid.New()}
	// A later join sorts after every existing entry with equal initiative.
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].c.Initiative < c.Initiative
	})
	r.entries = append(r.entries, nil)
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
	r.byID[c.ID] = e
	return true
}

// Leave removes the entry for id together with its schedule and queued follow-ups.
//
// Postcondition: Contains(id) is false; returns true iff an entry was removed.
func (r *Registry) Leave(id string) bool {
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	for i, x := range r.entries {
		if x == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether id is engaged.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Get returns the engaged combatant for id.
func (r *Registry) Get(id string) (*Combatant, bool) {
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return e.c, true
}

// Len returns the number of engaged combatants.
func (r *Registry) Len() int { return len(r.entries) }

// Order returns a snapshot of engaged combatants in initiative order.
func (r *Registry) Order() []*Combatant {
	out := make([]*Combatant, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.c
	}
	return out
}

// Phase returns the current phase token for id, 0 when unscheduled or absent.
func (r *Registry) Phase(id string) int {
	if e, ok := r.byID[id]; ok {
		return e.phase
	}
	return 0
}

// Engagement returns the engagement ID assigned when id joined.
func (r *Registry) Engagement(id string) (uuid.UUID, bool) {
	e, ok := r.byID[id]
	if !ok {
		return uuid.Nil, false
	}
	return e.engagement, true
}

// advance moves id to its next phase in 1..phases and returns it.
func (r *Registry) advance(id string, phases int) int {
	e, ok := r.byID[id]
	if !ok {
		return 0
	}
	e.phase = e.phase%phases + 1
	return e.phase
}

// Queued returns the number of follow-up attacks queued for id.
func (r *Registry) Queued(id string) int {
	if e, ok := r.byID[id]; ok {
		return len(e.pending)
	}
	return 0
}

func (r *Registry) enqueue(id string, f followUp) bool {
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	e.pending = append(e.pending, f)
	return true
}

func (r *Registry) drain(id string) []followUp {
	e, ok := r.byID[id]
	if !ok {
		return nil
	}
	out := e.pending
	e.pending = nil
	return out
}

func (r *Registry) entry(id string) (*entry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// TargetingOf returns engaged combatants whose target is id, in initiative order.
func (r *Registry) TargetingOf(id string) []*Combatant {
	var out []*Combatant
	for _, e := range r.entries {
		if e.c.Target == id && e.c.ID != id {
			out = append(out, e.c)
		}
	}
	return out
}

// Roster holds every combatant known to the engine, engaged or not.
type Roster struct {
	byID map[string]*Combatant
}

// NewRoster creates an empty Roster.
func NewRoster() *Roster {
	return &Roster{byID: make(map[string]*Combatant)}
}

// Add registers c; returns false if the ID is taken.
func (r *Roster) Add(c *Combatant) bool {
	if _, ok := r.byID[c.ID]; ok {
		return false
	}
	r.byID[c.ID] = c
	return true
}

// Remove drops id from the roster.
func (r *Roster) Remove(id string) { delete(r.byID, id) }

// Get returns the combatant for id.
func (r *Roster) Get(id string) (*Combatant, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns every combatant ordered by ID.
func (r *Roster) All() []*Combatant {
	out := make([]*Combatant, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InRoom returns every combatant in room, ordered by ID.
func (r *Roster) InRoom(room string) []*Combatant {
	var out []*Combatant
	for _, c := range r.All() {
		if c.Room == room {
			out = append(out, c)
		}
	}
	return out
}
