// Package dice provides the randomness abstraction, dice expressions, and a
// logging roller used by every combat roll.
package dice

import (
	"fmt"
	"strings"
)

// Source is the randomness provider for dice rolls. Implementations must be
// safe for concurrent use.
type Source interface {
	// Intn returns a value in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// RollResult is one evaluated expression. Dropped holds the faces discarded
// by a keep-highest clause so audits can show the whole roll.
type RollResult struct {
	Expression string
	Dice       []int
	Dropped    []int
	Modifier   int
}

// Sum returns the kept faces without the modifier.
func (r RollResult) Sum() int {
	sum := 0
	for _, d := range r.Dice {
		sum += d
	}
	return sum
}

// Total returns Sum() + Modifier.
func (r RollResult) Total() int {
	return r.Sum() + r.Modifier
}

// String renders "4d6kh3+1 [6 5 4] drop [1] +1 = 16". The drop clause is
// omitted when nothing was discarded.
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %v", r.Expression, r.Dice)
	if len(r.Dropped) > 0 {
		fmt.Fprintf(&b, " drop %v", r.Dropped)
	}
	fmt.Fprintf(&b, " %+d = %d", r.Modifier, r.Total())
	return b.String()
}
