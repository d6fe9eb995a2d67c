package plugin

import (
	lua "github.com/yuin/gopher-lua"
)

type CoilController interface {
	WriteCoil(url string, unit uint8, addr uint16, value bool) error
	ReadCoil(url string, unit uint8, addr uint16) (bool, error)
}

// ModbusAPI exposes coil access on modbus servers as the modbus table.
//
//	modbus.write_coil("tcp://host:502", unit, address, value)
//	modbus.read_coil("tcp://host:502", unit, address) -> bool
type ModbusAPI struct {
	Coils CoilController
}

func (a ModbusAPI) Register(L *lua.LState, env *Env) {
	mod := L.NewTable()

	mod.RawSetString("write_coil", L.NewFunction(func(L *lua.LState) int {
		url := L.CheckString(1)
		unit := uint8(L.CheckInt(2))
		addr := uint16(L.CheckInt(3))
		value := lineValue(L.Get(4))
		if err := a.Coils.WriteCoil(url, unit, addr, value); err != nil {
			return env.Raise(L, err)
		}
		return 0
	}))

	mod.RawSetString("read_coil", L.NewFunction(func(L *lua.LState) int {
		url := L.CheckString(1)
		unit := uint8(L.CheckInt(2))
		addr := uint16(L.CheckInt(3))
		value, err := a.Coils.ReadCoil(url, unit, addr)
		if err != nil {
			return env.Raise(L, err)
		}
		L.Push(lua.LBool(value))
		return 1
	}))

	L.SetGlobal("modbus", mod)
}
