package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// State wraps gopher-lua with the sandbox the plugin host needs.
//
// gopher-lua's LState is not goroutine-safe. The mutex guards the entry
// points; callbacks into Lua from Go functions that Lua itself called run
// on the same goroutine and use the LState directly.
type State struct {
	L *lua.LState

	mu sync.Mutex

	// executionTimeout bounds DoString, DoFile and Call; zero disables it.
	executionTimeout time.Duration

	sandbox *Sandbox
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout bounds every top-level execution. A script that
// runs past it fails with a context deadline error.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	state := &State{}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	state.L = L

	openSafeLibraries(L)

	state.sandbox = NewSandbox(L)
	state.sandbox.Install()

	return state
}

// openSafeLibraries opens the standard libraries that cannot touch the
// host. io, os and debug stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// DoFile executes a Lua file.
func (s *State) DoFile(path string) error {
	return s.Run(func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// DoString executes a Lua chunk.
func (s *State) DoString(code string) error {
	return s.Run(func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// Run calls fn with the LState under the state lock, the execution
// timeout and panic recovery.
func (s *State) Run(fn func(L *lua.LState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	if s.executionTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.executionTimeout)
		defer cancel()
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}

	return doWithRecovery(func() error {
		return fn(s.L)
	})
}

// doWithRecovery executes a function with panic recovery.
func doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Call calls a global Lua function with the given arguments.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) Call(fn string, args ...lua.LValue) ([]lua.LValue, error) {
	var results []lua.LValue
	err := s.Run(func(L *lua.LState) error {
		fnVal := L.GetGlobal(fn)
		if fnVal.Type() != lua.LTFunction {
			if fnVal == lua.LNil {
				return fmt.Errorf("function %q not found", fn)
			}
			return fmt.Errorf("%q is not a function (got %s)", fn, fnVal.Type())
		}

		var err error
		results, err = callFunction(L, fnVal.(*lua.LFunction), args...)
		return err
	})
	return results, err
}

// callFunction calls fn in protected mode and collects every result.
func callFunction(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	stackTop := L.GetTop()

	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}

	nRet := L.GetTop() - stackTop
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results := make([]lua.LValue, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = L.Get(stackTop + i + 1)
	}
	L.Pop(nRet)
	return results, nil
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// PreloadModule makes a Go module available to require and as a global.
func (s *State) PreloadModule(name string, loader lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.sandbox.Allow(name)
	s.L.PreloadModule(name, loader)
}

// Sandbox returns the sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases all resources associated with the Lua state.
// After Close is called, all other methods will return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
