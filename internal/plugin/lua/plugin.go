package lua

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/uebuild/internal/app"
	"github.com/dshills/uebuild/internal/config"
	"github.com/dshills/uebuild/internal/diagnostics"
	"github.com/dshills/uebuild/internal/integration/task"
	"github.com/dshills/uebuild/internal/logging"
	"github.com/dshills/uebuild/internal/unreal"
)

// ModuleName is the name the module is registered under.
const ModuleName = "ue"

// Options configures a Plugin.
type Options struct {
	Config    *config.Config
	Executor  *task.Executor
	Logger    logrus.FieldLogger
	HostOS    string
	LookupEnv func(string) (string, bool)

	// ExecutionTimeout bounds each top-level script run; zero disables it.
	ExecutionTimeout time.Duration
}

// callbacks are the functions registered by ue.setup. They are only
// touched on the Lua goroutine.
type callbacks struct {
	prompt   *lua.LFunction
	notify   *lua.LFunction
	refresh  *lua.LFunction
	onOutput *lua.LFunction
	onExit   *lua.LFunction
}

// Plugin hosts the ue module on a Lua state. Builds run in the
// background; their callbacks are queued and delivered on the Lua
// goroutine by Pump and Wait.
type Plugin struct {
	state  *State
	queue  *EventQueue
	bridge *Bridge
	svc    *app.Service
	logger logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int32

	callbacks      callbacks
	engineOverride string
}

// NewPlugin creates a plugin host. ctx bounds every build it starts.
func NewPlugin(ctx context.Context, opts Options) *Plugin {
	ctx, cancel := context.WithCancel(ctx)
	p := &Plugin{
		state:  NewState(WithExecutionTimeout(opts.ExecutionTimeout)),
		queue:  NewEventQueue(),
		logger: logging.WithComponent(opts.Logger, "lua"),
		ctx:    ctx,
		cancel: cancel,
	}
	p.bridge = NewBridge(p.state.L)
	p.svc = app.New(app.Options{
		Config:    opts.Config,
		Executor:  opts.Executor,
		Prompter:  p,
		Notifier:  app.NotifyFunc(p.postNotify),
		Refresher: diagnostics.RefreshFunc(p.postRefresh),
		Logger:    opts.Logger,
		HostOS:    opts.HostOS,
		LookupEnv: opts.LookupEnv,
	})
	p.svc.Executor().AddListener(p)

	mod := p.state.L.SetFuncs(p.state.L.NewTable(), p.exports())
	p.state.SetGlobal(ModuleName, mod)
	p.state.PreloadModule(ModuleName, func(L *lua.LState) int {
		L.Push(mod)
		return 1
	})
	return p
}

// State returns the Lua state.
func (p *Plugin) State() *State { return p.state }

// Service returns the orchestration service behind the module.
func (p *Plugin) Service() *app.Service { return p.svc }

// DoString runs a Lua chunk.
func (p *Plugin) DoString(code string) error { return p.state.DoString(code) }

// DoFile runs a Lua file.
func (p *Plugin) DoFile(path string) error { return p.state.DoFile(path) }

// Pump delivers every queued callback and returns how many ran.
func (p *Plugin) Pump() (int, error) {
	var n int
	err := p.state.Run(func(L *lua.LState) error {
		var err error
		n, err = p.queue.Pump(L)
		return err
	})
	return n, err
}

// Wait blocks until a callback is queued or ctx is done, then pumps.
func (p *Plugin) Wait(ctx context.Context) (int, error) {
	if err := p.queue.Await(ctx); err != nil {
		return 0, err
	}
	return p.Pump()
}

// Idle reports whether no build is running and no callback is queued.
func (p *Plugin) Idle() bool {
	return p.active.Load() == 0 && p.queue.Len() == 0
}

// Close cancels running builds, waits for them and releases the state.
func (p *Plugin) Close() error {
	p.cancel()
	p.wg.Wait()
	p.svc.Executor().RemoveListener(p)
	p.queue.Close()
	return p.state.Close()
}

// call invokes a callback; a nil callback is a no-op.
func (p *Plugin) call(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) error {
	if fn == nil {
		return nil
	}
	return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

func (p *Plugin) post(ev Event) {
	if err := p.queue.Post(ev); err != nil {
		p.logger.WithError(err).Debug("dropping callback")
	}
}

func (p *Plugin) postNotify(level app.Level, msg string) {
	p.post(func(L *lua.LState) error {
		if p.callbacks.notify == nil {
			app.LogNotifier{Logger: p.logger}.Notify(level, msg)
			return nil
		}
		return p.call(L, p.callbacks.notify, lua.LString(level.String()), lua.LString(msg))
	})
}

func (p *Plugin) postRefresh(context.Context) error {
	p.post(func(L *lua.LState) error {
		return p.call(L, p.callbacks.refresh)
	})
	return nil
}

// OnExecutionStarted implements task.ExecutionListener.
func (p *Plugin) OnExecutionStarted(*task.Execution) {}

// OnExecutionOutput queues the line for on_output.
func (p *Plugin) OnExecutionOutput(exec *task.Execution, line task.OutputLine) {
	id, content := exec.ID, line.Content
	p.post(func(L *lua.LState) error {
		return p.call(L, p.callbacks.onOutput, lua.LString(id), lua.LString(content))
	})
}

// OnExecutionProblem implements task.ExecutionListener.
func (p *Plugin) OnExecutionProblem(exec *task.Execution, problem task.Problem) {
	p.logger.WithField("execution", exec.ID).Debug(problem.String())
}

// OnExecutionCompleted implements task.ExecutionListener. on_exit is
// queued after the post-build steps instead.
func (p *Plugin) OnExecutionCompleted(*task.Execution) {}

// PromptEnginePath asks the prompt callback for an engine directory.
// It runs on the Lua goroutine inside a ue.* call.
func (p *Plugin) PromptEnginePath(_ context.Context, reason string) (string, error) {
	if p.callbacks.prompt == nil {
		return "", nil
	}
	return p.prompt("engine", reason, nil, "")
}

// Select asks the prompt callback to pick one of options.
func (p *Plugin) Select(_ context.Context, title string, options []string, def string) (string, error) {
	if p.callbacks.prompt == nil {
		return app.AutoSelect(title, options, def)
	}
	return p.prompt("select", title, options, def)
}

func (p *Plugin) prompt(kind, title string, options []string, def string) (string, error) {
	L := p.state.L
	results, err := callFunction(L, p.callbacks.prompt,
		lua.LString(kind), lua.LString(title), p.bridge.ToLuaValue(options), lua.LString(def))
	if err != nil {
		return "", fmt.Errorf("prompt callback: %w", err)
	}
	if len(results) == 0 || results[0] == lua.LNil {
		return "", fmt.Errorf("%s: %w", title, unreal.ErrCancelled)
	}
	return lua.LVAsString(results[0]), nil
}
