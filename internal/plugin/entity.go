package plugin

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Entity is a constructed plugin instance. Calls are serialized since a Lua
// state is single threaded.
type Entity struct {
	mu       sync.Mutex
	module   *Module
	instance *lua.LTable
	closed   bool
}

func (e *Entity) Module() string {
	return e.module.Name
}

func (e *Entity) TurnOn(ctx context.Context) error {
	return e.call(ctx, "turn_on")
}

func (e *Entity) TurnOff(ctx context.Context) error {
	return e.call(ctx, "turn_off")
}

func (e *Entity) Press(ctx context.Context) error {
	return e.call(ctx, "press")
}

func (e *Entity) Update(ctx context.Context) error {
	return e.call(ctx, "update")
}

func (e *Entity) Added(ctx context.Context) error {
	return e.call(ctx, "added")
}

func (e *Entity) WillRemove(ctx context.Context) error {
	return e.call(ctx, "will_remove")
}

// IsOn reports the instance's is_on field when the plugin maintains one.
func (e *Entity) IsOn() (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, false
	}
	v := e.module.L.GetField(e.instance, "is_on")
	if b, ok := v.(lua.LBool); ok {
		return bool(b), true
	}
	return false, false
}

// Field reads a top-level instance field as a Go value.
func (e *Entity) Field(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	return luaToGo(e.module.L.GetField(e.instance, name))
}

func (e *Entity) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.module.Close()
	}
}

func (e *Entity) call(ctx context.Context, method string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEntityClosed
	}

	L := e.module.L
	fn, ok := L.GetField(e.instance, method).(*lua.LFunction)
	if !ok {
		return nil
	}

	e.module.env.lastErr = nil
	L.SetContext(ctx)
	err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, e.instance)
	L.RemoveContext()
	if err != nil {
		if hostErr := e.module.env.takeError(); hostErr != nil {
			return fmt.Errorf("%s.%s: %w", e.module.Name, method, hostErr)
		}
		return fmt.Errorf("%s.%s: %w", e.module.Name, method, err)
	}
	return nil
}
