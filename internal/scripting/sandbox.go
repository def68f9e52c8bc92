// Package scripting runs item procedure hooks written in Lua inside
// instruction-budgeted GopherLua sandboxes.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// script execution when no override is configured.
const DefaultInstructionLimit = 100_000

// countingContext is a context.Context that cancels itself after Done() has
// been called limit times. GopherLua's mainLoopWithContext calls Done() once
// per opcode, making this an exact instruction-count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

// Done returns the underlying cancellation channel. Each call decrements the
// remaining counter; when it reaches zero the cancel function fires,
// terminating the Lua VM on the next opcode boundary.
func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

// newCountingContext returns a child of parent that cancels after limit calls to Done().
//
// Precondition: limit > 0.
func newCountingContext(parent context.Context, limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(parent)
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

func effectiveLimit(instLimit int) int {
	if instLimit <= 0 {
		return DefaultInstructionLimit
	}
	return instLimit
}

// removedGlobals are stripped after the safe libraries load. Procs roll
// through engine.dice so every roll is logged and seeded sources replay a
// fight exactly; math.random would bypass both.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require", "print"}

var removedFields = map[string][]string{
	"math":   {"random", "randomseed"},
	"string": {"rep", "dump"},
}

// NewSandboxedState returns a state with only the base, table, string and
// math libraries, minus removedGlobals and removedFields, and a budget of
// instLimit opcodes covering top-level chunk execution. Manager grants each
// hook call a fresh budget.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil LState. The caller must call L.Close() when done.
func NewSandboxedState(instLimit int) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	for lib, fields := range removedFields {
		if t, ok := L.GetGlobal(lib).(*lua.LTable); ok {
			for _, f := range fields {
				t.RawSetString(f, lua.LNil)
			}
		}
	}

	ctx, _ := newCountingContext(context.Background(), effectiveLimit(instLimit)) //nolint:govet // cancel fires when the limit is reached
	L.SetContext(ctx)
	return L
}

// budget installs a fresh instruction budget derived from ctx on L.
//
// Postcondition: the returned func must be called when the budgeted run ends.
func budget(ctx context.Context, L *lua.LState, instLimit int) func() {
	bctx, cancel := newCountingContext(ctx, effectiveLimit(instLimit))
	L.SetContext(bctx)
	return cancel
}
