// Package scripting provides a sandboxed GopherLua execution environment for
// monster behaviour scripts. It has no dependency on the combat packages; the
// combat AI passes plain snapshots in and reads plain values back.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// script execution when no override is configured.
const DefaultInstructionLimit = 100_000

// VM sizing. A script that recurses past callStackSize frames fails with a
// stack overflow instead of growing without bound.
const (
	callStackSize   = 120
	registrySize    = 1024 * 4
	registryMaxSize = 1024 * 64
)

// removedGlobals are base library functions a monster script has no use for:
// code loading, environment tampering, collector control and stdout writes.
var removedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require",
	"getfenv", "setfenv", "newproxy", "collectgarbage",
	"print", "_printregs",
}

// opBudget is a context whose Done channel closes once Done has been asked
// for more than limit times. GopherLua polls Done once per opcode, so the
// budget is an exact instruction count.
type opBudget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *opBudget) Done() <-chan struct{} {
	if b.left.Add(-1) < 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// SetInstructionLimit arms L with a fresh budget of limit opcodes and returns
// a function that disarms it. Each script execution gets its own budget.
//
// Precondition: limit >= 0; 0 uses DefaultInstructionLimit.
func SetInstructionLimit(L *lua.LState, limit int) (release func()) {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &opBudget{Context: ctx, cancel: cancel}
	b.left.Store(int64(limit))
	L.SetContext(b)
	return func() {
		L.RemoveContext()
		cancel()
	}
}

// NewSandboxedState creates a GopherLua LState that opens only the base,
// table, string and math libraries, strips removedGlobals, caps the call
// stack and registry, and arms an initial budget of instLimit opcodes.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil LState ready for RegisterModules and DoFile.
// The caller owns the LState and must call L.Close() when done.
func NewSandboxedState(instLimit int) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		CallStackSize:   callStackSize,
		RegistrySize:    registrySize,
		RegistryMaxSize: registryMaxSize,
	})

	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	// Released by the owner's next SetInstructionLimit or by Close.
	SetInstructionLimit(L, instLimit)
	return L
}
