package plugin

import (
	"fmt"
	"strconv"

	"github.com/berfenger/virtualdevices/internal/core/schema"

	lua "github.com/yuin/gopher-lua"
)

func luaToGo(val lua.LValue) any {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if n := v.Len(); n > 0 {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				arr[i-1] = luaToGo(v.RawGetInt(i))
			}
			return arr
		}
		m := make(map[string]any)
		v.ForEach(func(k, val lua.LValue) {
			m[k.String()] = luaToGo(val)
		})
		return m
	default:
		return nil
	}
}

func goToLua(L *lua.LState, val any) lua.LValue {
	switch v := val.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []string:
		tbl := L.NewTable()
		for _, s := range v {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for key, item := range v {
			tbl.RawSetString(key, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// decodeFields reads the array of descriptor tables returned by schema().
func decodeFields(tbl *lua.LTable) ([]schema.Field, error) {
	var fields []schema.Field
	for i := 1; i <= tbl.Len(); i++ {
		entry, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("schema entry %d: expected table", i)
		}
		f, err := decodeField(entry)
		if err != nil {
			return nil, fmt.Errorf("schema entry %d: %w", i, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func decodeField(entry *lua.LTable) (schema.Field, error) {
	f := schema.Field{
		Name:     lua.LVAsString(entry.RawGetString("name")),
		Kind:     schema.Kind(lua.LVAsString(entry.RawGetString("kind"))),
		Label:    lua.LVAsString(entry.RawGetString("label")),
		Required: lua.LVAsBool(entry.RawGetString("required")),
		Integer:  lua.LVAsBool(entry.RawGetString("integer")),
		Default:  luaToGo(entry.RawGetString("default")),
	}
	if f.Name == "" {
		return f, fmt.Errorf("missing name")
	}
	if f.Kind == "" {
		f.Kind = schema.KindString
	}
	if !f.Kind.Valid() {
		return f, fmt.Errorf("field %s: unknown kind %q", f.Name, f.Kind)
	}
	if n, ok := entry.RawGetString("min").(lua.LNumber); ok {
		min := float64(n)
		f.Min = &min
	}
	if n, ok := entry.RawGetString("max").(lua.LNumber); ok {
		max := float64(n)
		f.Max = &max
	}
	if opts, ok := entry.RawGetString("options").(*lua.LTable); ok {
		for i := 1; i <= opts.Len(); i++ {
			f.Options = append(f.Options, decodeOption(opts.RawGetInt(i)))
		}
	}
	return f, nil
}

func decodeOption(v lua.LValue) schema.Option {
	switch t := v.(type) {
	case *lua.LTable:
		value := optionString(t.RawGetString("value"))
		label := lua.LVAsString(t.RawGetString("label"))
		if label == "" {
			label = value
		}
		return schema.Option{Value: value, Label: label}
	default:
		s := optionString(t)
		return schema.Option{Value: s, Label: s}
	}
}

func optionString(v lua.LValue) string {
	if n, ok := v.(lua.LNumber); ok {
		return strconv.FormatFloat(float64(n), 'f', -1, 64)
	}
	return lua.LVAsString(v)
}
