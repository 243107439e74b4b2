package lua

import (
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestBridgeToLuaValue(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	b := NewBridge(L)

	tests := []struct {
		name string
		in   any
		want glua.LValue
	}{
		{"nil", nil, glua.LNil},
		{"bool", true, glua.LTrue},
		{"int", 3, glua.LNumber(3)},
		{"int64", int64(4), glua.LNumber(4)},
		{"float", 1.5, glua.LNumber(1.5)},
		{"string", "Game", glua.LString("Game")},
		{"unsupported", struct{}{}, glua.LNil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.ToLuaValue(tt.in); got != tt.want {
				t.Errorf("ToLuaValue(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBridgeStringSlice(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	b := NewBridge(L)

	tbl, ok := b.ToLuaValue([]string{"Game", "GameEditor"}).(*glua.LTable)
	if !ok {
		t.Fatal("ToLuaValue([]string) is not a table")
	}
	if tbl.Len() != 2 || tbl.RawGetInt(2).String() != "GameEditor" {
		t.Errorf("table = %v", tbl)
	}

	holder := L.NewTable()
	holder.RawSetString("args", tbl)
	got := b.GetTableStrings(holder, "args")
	if len(got) != 2 || got[0] != "Game" {
		t.Errorf("GetTableStrings() = %v", got)
	}
}

func TestBridgeTableGetters(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	b := NewBridge(L)

	if err := L.DoString(`opts = { target = "Game", on_exit = function() end, count = 2 }`); err != nil {
		t.Fatal(err)
	}
	opts := L.GetGlobal("opts").(*glua.LTable)

	if s, ok := b.GetTableString(opts, "target"); !ok || s != "Game" {
		t.Errorf("GetTableString(target) = %q, %v", s, ok)
	}
	if _, ok := b.GetTableString(opts, "count"); ok {
		t.Error("GetTableString(count) should reject numbers")
	}
	if _, ok := b.GetTableFunc(opts, "on_exit"); !ok {
		t.Error("GetTableFunc(on_exit) not found")
	}
	if _, ok := b.GetTableString(nil, "target"); ok {
		t.Error("GetTableString(nil) should fail")
	}
	if got := b.GetTableStrings(opts, "missing"); got != nil {
		t.Errorf("GetTableStrings(missing) = %v", got)
	}
}
