package scripting

import (
	"context"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// registerModules installs the engine global into v:
//
//	engine.log.{debug,info,warn,error}(msg)
//	engine.dice.roll(expr)                  -> {total, dice, modifier} or nil
//	engine.combat.get(uid)                  -> combatant table or nil
//	engine.combat.apply_effect(uid, id, n)  -> bool
//	engine.combat.save(uid, kind, dc)       -> bool
//
// The engine.combat functions only see the attacker and defender of the
// proc currently running; outside a proc call they return nil or false.
func (m *Manager) registerModules(v *vm) {
	L := v.L
	engine := L.NewTable()
	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "dice", m.diceModule(v))
	L.SetField(engine, "combat", m.combatModule(v))
	L.SetGlobal("engine", engine)
}

func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	levels := map[string]func(string, ...zap.Field){
		"debug": m.logger.Debug,
		"info":  m.logger.Info,
		"warn":  m.logger.Warn,
		"error": m.logger.Error,
	}
	for name, fn := range levels {
		L.SetField(mod, name, L.NewFunction(func(L *lua.LState) int {
			fn(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}))
	}
	return mod
}

func (m *Manager) diceModule(v *vm) *lua.LTable {
	L := v.L
	mod := L.NewTable()
	L.SetField(mod, "roll", L.NewFunction(func(L *lua.LState) int {
		roller := m.roller
		if v.call != nil && v.call.Roller != nil {
			roller = v.call.Roller
		}
		res, err := roller.RollExpr(L.CheckString(1))
		if err != nil {
			m.logger.Warn("scripting: bad dice expression", zap.Error(err))
			L.Push(lua.LNil)
			return 1
		}
		t := L.NewTable()
		L.SetField(t, "total", lua.LNumber(res.Total()))
		L.SetField(t, "dice", lua.LNumber(res.Sum()))
		L.SetField(t, "modifier", lua.LNumber(res.Modifier))
		L.Push(t)
		return 1
	}))
	return mod
}

// participant returns the attacker or defender of the running proc with uid.
func (v *vm) participant(uid string) *combat.Combatant {
	if v.call == nil {
		return nil
	}
	for _, c := range []*combat.Combatant{v.call.Attacker, v.call.Defender} {
		if c != nil && c.ID == uid {
			return c
		}
	}
	return nil
}

func (m *Manager) combatModule(v *vm) *lua.LTable {
	L := v.L
	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(func(L *lua.LState) int {
		c := v.participant(L.CheckString(1))
		if c == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(combatantTable(L, c))
		return 1
	}))
	L.SetField(mod, "apply_effect", L.NewFunction(func(L *lua.LState) int {
		c := v.participant(L.CheckString(1))
		id := L.CheckString(2)
		rounds := L.OptInt(3, 1)
		if c == nil || v.call.Effects == nil {
			L.Push(lua.LFalse)
			return 1
		}
		if err := v.call.Effects.Invoke(luaContext(L), id, v.call.Attacker, c, rounds); err != nil {
			m.logger.Warn("scripting: applying effect", zap.String("effect", id), zap.Error(err))
			L.Push(lua.LFalse)
			return 1
		}
		L.Push(lua.LTrue)
		return 1
	}))
	L.SetField(mod, "save", L.NewFunction(func(L *lua.LState) int {
		c := v.participant(L.CheckString(1))
		kind := L.CheckString(2)
		dc := L.CheckInt(3)
		if c == nil || v.call.Saves == nil {
			L.Push(lua.LFalse)
			return 1
		}
		L.Push(lua.LBool(v.call.Saves.Save(luaContext(L), c, kind, dc)))
		return 1
	}))
	return mod
}

func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func combatantTable(L *lua.LState, c *combat.Combatant) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "uid", lua.LString(c.ID))
	L.SetField(t, "name", lua.LString(c.Name))
	L.SetField(t, "kind", lua.LString(c.Kind.String()))
	L.SetField(t, "level", lua.LNumber(c.Level))
	L.SetField(t, "hp", lua.LNumber(c.HP))
	L.SetField(t, "max_hp", lua.LNumber(c.MaxHP))
	L.SetField(t, "room", lua.LString(c.Room))
	L.SetField(t, "position", lua.LString(c.Position().String()))
	effects := L.NewTable()
	if c.Effects != nil {
		for _, a := range c.Effects.All() {
			effects.Append(lua.LString(a.Def.ID))
		}
	}
	L.SetField(t, "effects", effects)
	return t
}
