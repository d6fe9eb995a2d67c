package plugin

import (
	"context"
	"fmt"
	"sort"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/schema"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Module is one executed plugin. It owns its Lua state.
type Module struct {
	Name        string
	Title       string
	Description string
	Path        string
	Source      string
	Mixins      []string

	L         *lua.LState
	env       *Env
	platforms map[string]*lua.LTable
}

// Env carries per-module host state shared by the registered APIs.
type Env struct {
	Module  string
	Logger  *zap.Logger
	lastErr error
}

// Raise records err so its identity survives the trip through Lua, then
// raises it as a Lua error.
func (e *Env) Raise(L *lua.LState, err error) int {
	e.lastErr = err
	L.RaiseError("%s", err.Error())
	return 0
}

func (e *Env) takeError() error {
	err := e.lastErr
	e.lastErr = nil
	return err
}

func (m *Module) readGlobals() {
	m.Title = lua.LVAsString(m.L.GetGlobal("TITLE"))
	if m.Title == "" {
		m.Title = m.Name
	}
	m.Description = lua.LVAsString(m.L.GetGlobal("DESCRIPTION"))
	m.platforms = make(map[string]*lua.LTable)
	if tbl, ok := m.L.GetGlobal("PLATFORMS").(*lua.LTable); ok {
		tbl.ForEach(func(k, v lua.LValue) {
			cls, ok := v.(*lua.LTable)
			if ok && k.Type() == lua.LTString {
				m.platforms[k.String()] = cls
			}
		})
	}
}

func (m *Module) Platforms() []string {
	platforms := make([]string, 0, len(m.platforms))
	for p := range m.platforms {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	return platforms
}

func (m *Module) Class(platform string) (*lua.LTable, bool) {
	cls, ok := m.platforms[platform]
	return cls, ok
}

func (m *Module) Info() domain.PluginInfo {
	return domain.PluginInfo{
		Name:        m.Name,
		Title:       m.Title,
		Description: m.Description,
		Platforms:   m.Platforms(),
		Source:      m.Source,
		Mixins:      append([]string(nil), m.Mixins...),
	}
}

// Schema calls the platform class's schema() and decodes the descriptors.
// A class without schema() has no plugin fields.
func (m *Module) Schema(platform string) ([]schema.Field, error) {
	cls, ok := m.Class(platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoConstructor, m.Name, platform)
	}
	fn, ok := m.L.GetField(cls, "schema").(*lua.LFunction)
	if !ok {
		return nil, nil
	}
	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, cls); err != nil {
		return nil, fmt.Errorf("%s.%s schema: %w", m.Name, platform, err)
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		if ret == lua.LNil {
			return nil, nil
		}
		return nil, fmt.Errorf("%s.%s schema: expected table, got %s", m.Name, platform, ret.Type())
	}
	return decodeFields(tbl)
}

func (m *Module) instantiate(ctx context.Context, cls *lua.LTable, data map[string]any) (*lua.LTable, error) {
	L := m.L
	dataTbl := goToLua(L, domain.CloneBag(data))

	if ctor, ok := L.GetField(cls, "new").(*lua.LFunction); ok {
		L.SetContext(ctx)
		err := L.CallByParam(lua.P{Fn: ctor, NRet: 1, Protect: true}, cls, dataTbl)
		L.RemoveContext()
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", m.Name, err)
		}
		ret := L.Get(-1)
		L.Pop(1)
		inst, ok := ret.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("construct %s: constructor returned %s", m.Name, ret.Type())
		}
		return inst, nil
	}

	if cls.RawGetString("__index") == lua.LNil {
		cls.RawSetString("__index", cls)
	}
	inst := L.NewTable()
	inst.RawSetString("data", dataTbl)
	L.SetMetatable(inst, cls)
	return inst, nil
}

func (m *Module) Close() {
	m.L.Close()
}
