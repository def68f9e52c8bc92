package dice

import (
	"sort"

	"go.uber.org/zap"
)

// Roll evaluates expr against src.
//
// Postcondition: len(result.Dice) == expr.Count, or expr.KeepHighest when set.
func Roll(expr Expression, src Source) RollResult {
	rolled := make([]int, expr.Count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}
	res := RollResult{Expression: expr.Raw, Dice: rolled, Modifier: expr.Modifier}
	if res.Expression == "" {
		res.Expression = expr.String()
	}
	if expr.KeepHighest > 0 {
		sort.Sort(sort.Reverse(sort.IntSlice(rolled)))
		res.Dice, res.Dropped = rolled[:expr.KeepHighest], rolled[expr.KeepHighest:]
	}
	return res
}

// Roller wraps a Source and a logger. Every roll is logged at debug level with
// its expression, dice, modifier and total.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Source returns the underlying randomness source.
func (r *Roller) Source() Source { return r.src }

// Roll evaluates expr and logs the result.
func (r *Roller) Roll(expr Expression) RollResult {
	result := Roll(expr, r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Ints("dropped", result.Dropped),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)
	return result
}

// RollExpr parses and rolls expr.
//
// Postcondition: Returns the result or a parse error.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e), nil
}

// Dice rolls count dice of the given sides and returns the total.
// A non-positive count yields 0 without consuming randomness.
func (r *Roller) Dice(count, sides int) int {
	if count <= 0 || sides <= 0 {
		return 0
	}
	if sides == 1 {
		return count
	}
	return r.Roll(Expression{Count: count, Sides: sides}).Total()
}

// D20 returns a natural d20 result in [1, 20].
func (r *Roller) D20() int {
	return r.Dice(1, 20)
}

// Percent returns a d100 result in [1, 100].
func (r *Roller) Percent() int {
	return r.Dice(1, 100)
}

// Chance reports whether a d100 roll lands at or under pct.
// pct <= 0 never succeeds and consumes no randomness.
func (r *Roller) Chance(pct int) bool {
	if pct <= 0 {
		return false
	}
	return r.Percent() <= pct
}

// Between returns a uniform integer in [lo, hi].
//
// Precondition: lo <= hi.
func (r *Roller) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	v := lo + r.src.Intn(hi-lo+1)
	r.logger.Debug("dice range", zap.Int("lo", lo), zap.Int("hi", hi), zap.Int("value", v))
	return v
}
