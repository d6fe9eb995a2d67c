package plugin

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// LogAPI routes plugin log calls into the host logger.
type LogAPI struct{}

func (LogAPI) Register(L *lua.LState, env *Env) {
	mod := L.NewTable()
	levels := map[string]func(string, ...zap.Field){
		"debug": env.Logger.Debug,
		"info":  env.Logger.Info,
		"warn":  env.Logger.Warn,
		"error": env.Logger.Error,
	}
	for name, fn := range levels {
		logFn := fn
		mod.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			logFn(L.CheckString(1))
			return 0
		}))
	}
	L.SetGlobal("log", mod)
}
