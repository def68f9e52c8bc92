package bonus

// slot holds the resolved value of one type. Stacking types keep bonuses
// and penalties as running sums; non-stacking types keep the single entry
// of largest magnitude in bonus.
type slot struct {
	bonus   int
	penalty int
	set     bool
}

// Tally accumulates contributions and resolves them per type.
// Within a non-stacking type the entry of largest magnitude is kept;
// stacking types sum. The zero value is ready to use.
type Tally struct {
	slots [typeCount]slot
}

// New returns an empty tally seeded with cs.
func New(cs ...Contribution) *Tally {
	t := &Tally{}
	for _, c := range cs {
		t.Add(c.Type, c.Value)
	}
	return t
}

// Add folds one contribution into the tally.
//
// Precondition: typ is a defined Type.
func (t *Tally) Add(typ Type, v int) {
	if typ < 0 || typ >= typeCount || v == 0 {
		return
	}
	s := &t.slots[typ]
	s.set = true
	if typ.Stacks() {
		if v > 0 {
			s.bonus += v
		} else {
			s.penalty += v
		}
		return
	}
	// Equal magnitudes resolve to the bonus so the fold ignores arrival order.
	if abs(v) > abs(s.bonus) || (abs(v) == abs(s.bonus) && v > s.bonus) {
		s.bonus = v
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// AddAll folds every contribution.
func (t *Tally) AddAll(cs []Contribution) {
	for _, c := range cs {
		t.Add(c.Type, c.Value)
	}
}

// Value returns the resolved value of one type.
func (t *Tally) Value(typ Type) int {
	if typ < 0 || typ >= typeCount {
		return 0
	}
	s := t.slots[typ]
	return s.bonus + s.penalty
}

// Has reports whether any non-zero contribution of typ was added.
func (t *Tally) Has(typ Type) bool {
	if typ < 0 || typ >= typeCount {
		return false
	}
	return t.slots[typ].set
}

// Total sums every resolved type.
func (t *Tally) Total() int {
	total := 0
	for i := range t.slots {
		total += t.slots[i].bonus + t.slots[i].penalty
	}
	return total
}

// TotalExcept sums every resolved type not listed in skip. Touch attacks use
// it to drop armor, shield and natural armor.
func (t *Tally) TotalExcept(skip ...Type) int {
	total := t.Total()
	for _, typ := range skip {
		total -= t.Value(typ)
	}
	return total
}

// Breakdown returns the non-zero resolved value of each type.
func (t *Tally) Breakdown() map[Type]int {
	out := make(map[Type]int)
	for i := range t.slots {
		if v := t.slots[i].bonus + t.slots[i].penalty; v != 0 {
			out[Type(i)] = v
		}
	}
	return out
}

// Fold resolves cs in one call and clamps the total to b.
func Fold(b Bounds, cs ...Contribution) int {
	return b.Clamp(New(cs...).Total())
}
