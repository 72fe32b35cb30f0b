package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/game/dice"
)

// globalScope is the reserved key for shared scripts loaded via LoadGlobal.
// Hook calls fall back to this VM when no scope VM is found.
const globalScope = "__global__"

// ChooseTargetHook is the global Lua function consulted by scripted monsters:
//
//	function choose_target(actor, candidates) return candidates[1].id end
//
// It may return a candidate id or a 1-based candidate index.
const ChooseTargetHook = "choose_target"

// CombatantInfo is a snapshot of a combatant's state passed to Lua callbacks.
type CombatantInfo struct {
	UID         string
	Name        string
	HP          int
	MaxHP       int
	AC          int
	Row         string
	Spellcaster bool
}

// Dice rolls count dice of the given sides and returns the sum.
type Dice interface {
	Dice(count, sides int) int
}

type vm struct {
	mu    sync.Mutex
	L     *lua.LState
	limit int
	// dice serves crawl.roll during the current call; nil uses the
	// manager's roller.
	dice Dice
}

// Manager owns one sandboxed LState per scope (a monster template ID) plus an
// optional global VM, and exposes hook dispatch.
//
// Manager is safe for concurrent use after loading completes. Each VM is
// single-threaded and calls into the same VM are serialized.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	roller *dice.Roller
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no VMs.
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

// LoadScope creates a sandboxed VM for scope, registers the crawl.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: scope must be non-empty; scriptDir must be a readable directory.
// Postcondition: the VM replaces any previous VM for scope; returns error on Lua load failure.
func (m *Manager) LoadScope(scope, scriptDir string, instLimit int) error {
	if scope == "" || scope == globalScope {
		return fmt.Errorf("scripting: invalid scope %q", scope)
	}
	return m.loadInto(scope, scriptDir, instLimit)
}

// LoadGlobal creates the global VM used as a fallback for every scope.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Global VM is registered; returns error on Lua load failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(globalScope, scriptDir, instLimit)
}

// LoadTree loads root's own *.lua files into the global VM and each
// immediate subdirectory into a scope named after it.
//
// Precondition: root must be a readable directory.
func (m *Manager) LoadTree(root string, instLimit int) error {
	if err := m.LoadGlobal(root, instLimit); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("scripting: reading script root %q: %w", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := m.LoadScope(e.Name(), filepath.Join(root, e.Name()), instLimit); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	L := NewSandboxedState(instLimit)
	v := &vm{L: L, limit: instLimit}
	m.registerModules(L, v)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		release := SetInstructionLimit(L, instLimit)
		err := L.DoFile(path)
		release()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	if old, ok := m.vms[key]; ok {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.vms[key] = v
	m.mu.Unlock()
	m.logger.Debug("scripting: loaded scripts",
		zap.String("scope", key),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

func (m *Manager) lookup(scope string) *vm {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vms[scope]; ok {
		return v
	}
	return m.vms[globalScope]
}

// HasHook reports whether hook is defined for scope or globally.
func (m *Manager) HasHook(scope, hook string) bool {
	v := m.lookup(scope)
	if v == nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.L.GetGlobal(hook) != lua.LNil
}

// CallHook calls the named Lua global function in scope's VM. If the scope has
// no VM, the global VM is tried as a fallback. Returns (LNil, nil) if the hook
// is not defined or no VM exists. Lua runtime errors are logged at Warn level
// and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(scope, hook string, args ...lua.LValue) (lua.LValue, error) {
	v := m.lookup(scope)
	if v == nil {
		m.logger.Info("scripting: no VM for scope",
			zap.String("scope", scope),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return m.call(v, scope, hook, func(*lua.LState) []lua.LValue { return args }), nil
}

// call invokes hook with the arguments build produces in v's state.
//
// Precondition: v.mu is held.
func (m *Manager) call(v *vm, scope, hook string, build func(L *lua.LState) []lua.LValue) lua.LValue {
	fn := v.L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil
	}
	release := SetInstructionLimit(v.L, v.limit)
	defer release()
	if err := v.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, build(v.L)...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("scope", scope),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil
	}
	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret
}

func combatantTable(L *lua.LState, c CombatantInfo) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(c.UID))
	L.SetField(t, "name", lua.LString(c.Name))
	L.SetField(t, "hp", lua.LNumber(c.HP))
	L.SetField(t, "max_hp", lua.LNumber(c.MaxHP))
	L.SetField(t, "ac", lua.LNumber(c.AC))
	L.SetField(t, "row", lua.LString(c.Row))
	L.SetField(t, "spellcaster", lua.LBool(c.Spellcaster))
	return t
}

// ChooseTarget asks scope's choose_target hook to pick one of candidates.
// crawl.roll calls made by the hook draw from rnd; a nil rnd uses the
// manager's roller.
//
// Postcondition: returns a UID from candidates and true, or "" and false when
// no hook is defined, the hook fails, or it returns anything that does not
// name a candidate.
func (m *Manager) ChooseTarget(scope string, actor CombatantInfo, candidates []CombatantInfo, rnd Dice) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	v := m.lookup(scope)
	if v == nil {
		return "", false
	}
	v.mu.Lock()
	v.dice = rnd
	ret := m.call(v, scope, ChooseTargetHook, func(L *lua.LState) []lua.LValue {
		list := L.NewTable()
		for _, c := range candidates {
			list.Append(combatantTable(L, c))
		}
		return []lua.LValue{combatantTable(L, actor), list}
	})
	v.dice = nil
	v.mu.Unlock()

	switch r := ret.(type) {
	case lua.LString:
		for _, c := range candidates {
			if c.UID == string(r) {
				return c.UID, true
			}
		}
	case lua.LNumber:
		i := int(r)
		if float64(i) == float64(r) && i >= 1 && i <= len(candidates) {
			return candidates[i-1].UID, true
		}
	}
	if ret != lua.LNil {
		m.logger.Warn("scripting: choose_target returned no valid candidate",
			zap.String("scope", scope),
			zap.String("returned", ret.String()),
		)
	}
	return "", false
}

// Close releases every VM. Hooks called afterwards return LNil.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, v := range m.vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
		delete(m.vms, key)
	}
}
