package plugin

import (
	"context"
	"strconv"

	"github.com/berfenger/virtualdevices/pkg/gpioline"

	lua "github.com/yuin/gopher-lua"
)

type LineController interface {
	WriteLevel(ctx context.Context, key gpioline.LineKey, value bool) error
	WritePulses(ctx context.Context, key gpioline.LineKey, durations []int) error
	Release(ctx context.Context, key gpioline.LineKey) error
}

// GPIOAPI exposes shared output lines as the gpio table.
//
//	gpio.write(chip, line, value)
//	gpio.write_timed(chip, line, {1000, -1000, 2000})
//	gpio.release(chip, line)
//	gpio.chips()
type GPIOAPI struct {
	Lines    LineController
	ChipGlob string
}

func (a GPIOAPI) Register(L *lua.LState, env *Env) {
	mod := L.NewTable()

	mod.RawSetString("write", L.NewFunction(func(L *lua.LState) int {
		key := checkLineKey(L)
		value := lineValue(L.Get(3))
		if err := a.Lines.WriteLevel(stateContext(L), key, value); err != nil {
			return env.Raise(L, err)
		}
		return 0
	}))

	mod.RawSetString("write_timed", L.NewFunction(func(L *lua.LState) int {
		key := checkLineKey(L)
		tbl := L.CheckTable(3)
		durations := make([]int, 0, tbl.Len())
		for i := 1; i <= tbl.Len(); i++ {
			n, ok := tbl.RawGetInt(i).(lua.LNumber)
			if !ok {
				L.ArgError(3, "durations must be numbers")
				return 0
			}
			durations = append(durations, int(n))
		}
		if err := a.Lines.WritePulses(stateContext(L), key, durations); err != nil {
			return env.Raise(L, err)
		}
		return 0
	}))

	mod.RawSetString("release", L.NewFunction(func(L *lua.LState) int {
		key := checkLineKey(L)
		if err := a.Lines.Release(stateContext(L), key); err != nil {
			return env.Raise(L, err)
		}
		return 0
	}))

	mod.RawSetString("chips", L.NewFunction(func(L *lua.LState) int {
		L.Push(goToLua(L, gpioline.Chips(a.ChipGlob)))
		return 1
	}))

	L.SetGlobal("gpio", mod)
}

func checkLineKey(L *lua.LState) gpioline.LineKey {
	chip := L.CheckString(1)
	var offset int
	switch v := L.Get(2).(type) {
	case lua.LNumber:
		offset = int(v)
	case lua.LString:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			L.ArgError(2, "line must be a number")
		}
		offset = n
	default:
		L.ArgError(2, "line must be a number")
	}
	return gpioline.LineKey{Chip: chip, Offset: offset}
}

func lineValue(v lua.LValue) bool {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return t != 0
	default:
		return false
	}
}

func stateContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
