package scripting

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// Hook names called on a proc scope, one per trigger.
const (
	HookOnHit    = "on_hit"
	HookOnCrit   = "on_crit"
	HookOnParry  = "on_parry"
	HookOnGlance = "on_glance"
	HookOnDodge  = "on_dodge"
)

// LuaProc is an item procedure backed by a Lua scope. Each trigger calls the
// matching hook with one table argument:
//
//	{attacker = uid, defender = uid, weapon = name, damage = n}
//
// A number returned from on_hit or on_crit is added to the extra damage.
type LuaProc struct {
	Scope   string
	Manager *Manager
}

// NewProc returns the LuaProc for scope.
func (m *Manager) NewProc(scope string) LuaProc {
	return LuaProc{Scope: scope, Manager: m}
}

// Name returns the scope name.
func (p LuaProc) Name() string { return p.Scope }

// OnHit calls on_hit.
func (p LuaProc) OnHit(ctx context.Context, pc *combat.ProcContext) {
	p.fire(ctx, HookOnHit, pc, true)
}

// OnCrit calls on_crit.
func (p LuaProc) OnCrit(ctx context.Context, pc *combat.ProcContext) {
	p.fire(ctx, HookOnCrit, pc, true)
}

// OnParry calls on_parry.
func (p LuaProc) OnParry(ctx context.Context, pc *combat.ProcContext) {
	p.fire(ctx, HookOnParry, pc, false)
}

// OnGlance calls on_glance.
func (p LuaProc) OnGlance(ctx context.Context, pc *combat.ProcContext) {
	p.fire(ctx, HookOnGlance, pc, false)
}

// OnDodge calls on_dodge.
func (p LuaProc) OnDodge(ctx context.Context, pc *combat.ProcContext) {
	p.fire(ctx, HookOnDodge, pc, false)
}

func (p LuaProc) fire(ctx context.Context, hook string, pc *combat.ProcContext, addsDamage bool) {
	if !p.Manager.Has(p.Scope) {
		return
	}
	ret, _ := p.Manager.call(ctx, p.Scope, hook, pc, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{procTable(L, pc)}
	})
	if n, ok := ret.(lua.LNumber); ok && addsDamage && n > 0 {
		pc.ExtraDamage += int(n)
	}
}

func procTable(L *lua.LState, pc *combat.ProcContext) *lua.LTable {
	t := L.NewTable()
	if pc.Attacker != nil {
		L.SetField(t, "attacker", lua.LString(pc.Attacker.ID))
	}
	if pc.Defender != nil {
		L.SetField(t, "defender", lua.LString(pc.Defender.ID))
	}
	if pc.Weapon != nil {
		L.SetField(t, "weapon", lua.LString(pc.Weapon.Name))
	}
	L.SetField(t, "damage", lua.LNumber(pc.Damage))
	return t
}

var (
	_ combat.OnHit    = LuaProc{}
	_ combat.OnCrit   = LuaProc{}
	_ combat.OnParry  = LuaProc{}
	_ combat.OnGlance = LuaProc{}
	_ combat.OnDodge  = LuaProc{}
)
