package lua

import (
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Sandbox restricts what Lua code can load.
type Sandbox struct {
	L *lua.LState

	mu      sync.RWMutex
	modules map[string]bool
}

// NewSandbox creates a sandbox that allows the safe built-in modules.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L: L,
		modules: map[string]bool{
			"string": true,
			"table":  true,
			"math":   true,
		},
	}
}

// Install removes loaders that read files and replaces require with a
// whitelist check.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installSafeRequire()
}

// installSafeRequire clears package.path/cpath so nothing loads from
// disk and only lets whitelisted modules through.
func (s *Sandbox) installSafeRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	originalRequire := s.L.GetGlobal("require")
	if originalRequire == lua.LNil {
		return
	}

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)
		if !s.Allowed(modName) {
			L.RaiseError("module %q is not available", modName)
			return 0
		}
		L.Push(originalRequire)
		L.Push(lua.LString(modName))
		L.Call(1, 1)
		return 1
	}))
}

// Allow adds a module to the whitelist.
func (s *Sandbox) Allow(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[module] = true
}

// Allowed reports whether require may load module.
func (s *Sandbox) Allowed(module string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules[module]
}

// Modules returns the whitelisted module names, sorted.
func (s *Sandbox) Modules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
