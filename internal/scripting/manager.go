package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// vm is one sandboxed LState. Its mutex serializes every use of L; call is
// the proc context of the hook currently running, nil between calls.
type vm struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	closed bool
	call   *combat.ProcContext
}

func (v *vm) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.L.Close()
		v.closed = true
	}
}

// Manager owns one sandboxed LState per script scope and exposes hook dispatch.
//
// Manager is safe for concurrent CallHook. Each VM is single-threaded; calls
// into the same scope are serialized while different scopes run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	roller *dice.Roller
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no scopes loaded.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[string]*vm),
		roller: roller,
		logger: logger,
	}
}

// Load creates a sandboxed VM for scope, registers the engine.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: scope must be non-empty; scriptDir must be a readable directory.
// Postcondition: the scope VM is registered, replacing any previous one.
func (m *Manager) Load(scope, scriptDir string, instLimit int) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, scope, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(files)
	return m.loadFiles(scope, files, instLimit)
}

// LoadProcs loads every *.lua file in dir into its own scope named after
// the file stem, so "vampiric.lua" becomes proc scope "vampiric". Each
// subdirectory becomes one scope built from all of its files, for procs
// that share helpers across files.
//
// Postcondition: Returns the loaded scope names in lexicographic order.
func (m *Manager) LoadProcs(dir string, instLimit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading proc dir %q: %w", dir, err)
	}
	var scopes []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		switch {
		case e.IsDir():
			if err := m.Load(e.Name(), path, instLimit); err != nil {
				return nil, err
			}
			scopes = append(scopes, e.Name())
		case filepath.Ext(e.Name()) == ".lua":
			scope := strings.TrimSuffix(e.Name(), ".lua")
			if err := m.loadFiles(scope, []string{path}, instLimit); err != nil {
				return nil, err
			}
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

func (m *Manager) loadFiles(scope string, files []string, instLimit int) error {
	v := &vm{L: NewSandboxedState(instLimit), limit: instLimit}
	m.registerModules(v)
	for _, path := range files {
		done := budget(context.Background(), v.L, instLimit)
		err := v.L.DoFile(path)
		done()
		if err != nil {
			v.L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, scope, err)
		}
	}

	m.mu.Lock()
	old := m.vms[scope]
	m.vms[scope] = v
	m.mu.Unlock()
	if old != nil {
		old.close()
	}
	m.logger.Debug("scripts loaded", zap.String("scope", scope), zap.Int("files", len(files)))
	return nil
}

// Has reports whether scope has a VM of its own.
func (m *Manager) Has(scope string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vms[scope]
	return ok
}

// CallHook calls the named Lua global function in scope's VM outside any
// attack. Returns (LNil, nil) if the hook is not defined or the scope has no
// VM. Lua runtime errors are logged at Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(scope, hook string, args ...lua.LValue) (lua.LValue, error) {
	return m.call(context.Background(), scope, hook, nil, func(*lua.LState) []lua.LValue { return args })
}

// call runs hook under the VM lock. args builds the arguments inside the
// target VM so tables are never shared across states.
func (m *Manager) call(ctx context.Context, scope, hook string, pc *combat.ProcContext, args func(*lua.LState) []lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	v := m.vms[scope]
	m.mu.RUnlock()

	if v == nil {
		m.logger.Info("scripting: no VM for scope",
			zap.String("scope", scope),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return lua.LNil, nil
	}
	fn := v.L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	v.call = pc
	done := budget(ctx, v.L, v.limit)
	err := v.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args(v.L)...)
	done()
	v.call = nil
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("scope", scope),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret, nil
}

// Close releases every VM.
//
// Postcondition: no scopes remain; later CallHook calls return LNil.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()
	for _, v := range vms {
		v.close()
	}
}
