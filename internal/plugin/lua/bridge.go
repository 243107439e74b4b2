package lua

import (
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// Bridge converts values between Go and Lua.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToLuaValue converts a Go value to a Lua value. Unsupported types
// become nil.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		return b.stringSliceToTable(val)
	case map[string]string:
		return b.stringMapToTable(val)
	case map[string]any:
		t := b.L.NewTable()
		for k, v := range val {
			t.RawSetString(k, b.ToLuaValue(v))
		}
		return t
	case lua.LValue:
		return val
	default:
		return lua.LNil
	}
}

// stringSliceToTable converts a string slice to a Lua array.
func (b *Bridge) stringSliceToTable(s []string) *lua.LTable {
	t := b.L.NewTable()
	for i, v := range s {
		t.RawSetInt(i+1, lua.LString(v))
	}
	return t
}

// stringMapToTable converts a string map to a Lua table.
func (b *Bridge) stringMapToTable(m map[string]string) *lua.LTable {
	t := b.L.NewTable()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.RawSetString(k, lua.LString(m[k]))
	}
	return t
}

// GetTableString gets a string field from a Lua table.
func (b *Bridge) GetTableString(t *lua.LTable, key string) (string, bool) {
	if t == nil {
		return "", false
	}
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s), true
	}
	return "", false
}

// GetTableFunc gets a function field from a Lua table.
func (b *Bridge) GetTableFunc(t *lua.LTable, key string) (*lua.LFunction, bool) {
	if t == nil {
		return nil, false
	}
	f, ok := t.RawGetString(key).(*lua.LFunction)
	return f, ok
}

// GetTableStrings reads an array field of strings. Non-string items are
// skipped.
func (b *Bridge) GetTableStrings(t *lua.LTable, key string) []string {
	if t == nil {
		return nil
	}
	arr, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	for i := 1; i <= arr.Len(); i++ {
		if s, ok := arr.RawGetInt(i).(lua.LString); ok {
			out = append(out, string(s))
		}
	}
	return out
}
