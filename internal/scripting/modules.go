package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/crawler/internal/game/dice"
)

// RegisterModules registers the crawl.* Lua table into L:
//
//	crawl.roll(expr)     rolls a dice expression such as "2d6+1" and returns the total
//	crawl.log.debug(msg) / crawl.log.info(msg) / crawl.log.warn(msg)
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: crawl global is defined in L; crawl.roll uses the manager's roller.
func (m *Manager) RegisterModules(L *lua.LState) {
	m.registerModules(L, nil)
}

func (m *Manager) registerModules(L *lua.LState, v *vm) {
	crawl := L.NewTable()
	L.SetField(crawl, "roll", L.NewFunction(m.luaRoll(v)))

	log := L.NewTable()
	L.SetField(log, "debug", L.NewFunction(m.luaLog(zap.DebugLevel)))
	L.SetField(log, "info", L.NewFunction(m.luaLog(zap.InfoLevel)))
	L.SetField(log, "warn", L.NewFunction(m.luaLog(zap.WarnLevel)))
	L.SetField(crawl, "log", log)

	L.SetGlobal("crawl", crawl)
}

// luaRoll rolls through v's per-call dice when set, else the manager's roller.
//
// Precondition: v.mu is held while a hook runs.
func (m *Manager) luaRoll(v *vm) lua.LGFunction {
	return func(L *lua.LState) int {
		expr, err := dice.Parse(L.CheckString(1))
		if err != nil {
			L.RaiseError("crawl.roll: %s", err.Error())
			return 0
		}
		var total int
		if v != nil && v.dice != nil {
			total = v.dice.Dice(expr.Count, expr.Sides) + expr.Modifier
		} else {
			total = m.roller.Roll(expr).Total()
		}
		L.Push(lua.LNumber(total))
		return 1
	}
}

func (m *Manager) luaLog(level zapcore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		if ce := m.logger.Check(level, msg); ce != nil {
			ce.Write(zap.String("source", "lua"))
		}
		return 0
	}
}
