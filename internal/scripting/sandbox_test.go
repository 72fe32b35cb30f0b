package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crawler/internal/scripting"
)

func newState(t *testing.T, limit int) *lua.LState {
	t.Helper()
	L := scripting.NewSandboxedState(limit)
	require.NotNil(t, L)
	t.Cleanup(L.Close)
	return L
}

func TestNewSandboxedState_StrippedGlobals(t *testing.T) {
	L := newState(t, 0)
	for _, name := range []string{
		"os", "io", "debug", "package",
		"dofile", "loadfile", "load", "loadstring", "require",
		"getfenv", "setfenv", "newproxy", "collectgarbage", "print",
	} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := newState(t, 0)
	err := L.DoString(`
		assert(math.sqrt(4) == 2.0, "math.sqrt")
		assert(string.upper("kobold") == "KOBOLD", "string.upper")
		local t = {3, 1, 2}
		table.sort(t)
		assert(t[1] == 1 and t[3] == 3, "table.sort")
		assert(pcall(error, "x") == false, "pcall")
	`)
	assert.NoError(t, err)
}

func TestNewSandboxedState_InstructionLimitExceeded(t *testing.T) {
	L := newState(t, 10)
	assert.Error(t, L.DoString(`while true do end`))
}

func TestNewSandboxedState_DefaultLimitRunsNormalScript(t *testing.T) {
	L := newState(t, 0)
	assert.NoError(t, L.DoString(`local x = 0 for i = 1, 1000 do x = x + i end`))
}

func TestNewSandboxedState_DeepRecursionFails(t *testing.T) {
	L := newState(t, 0)
	err := L.DoString(`
		local function depth(n) return depth(n + 1) + 1 end
		depth(1)
	`)
	assert.Error(t, err)
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(rt, "limit")
		L := scripting.NewSandboxedState(limit)
		defer L.Close()
		if err := L.DoString(`while true do end`); err == nil {
			rt.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}

func TestSetInstructionLimit_FreshBudgetPerExecution(t *testing.T) {
	L := newState(t, 500)
	require.NoError(t, L.DoString(`function spin(n) local x = 0 for i = 1, n do x = x + i end return x end`))
	for i := 0; i < 20; i++ {
		release := scripting.SetInstructionLimit(L, 500)
		err := L.DoString(`spin(20)`)
		release()
		require.NoError(t, err, "execution %d exhausted a shared budget", i)
	}
}

func TestSetInstructionLimit_ReleaseDisarms(t *testing.T) {
	L := newState(t, 0)
	release := scripting.SetInstructionLimit(L, 5)
	release()
	assert.NoError(t, L.DoString(`local x = 0 for i = 1, 100 do x = x + i end`))
}
