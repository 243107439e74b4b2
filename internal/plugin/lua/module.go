package lua

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/uebuild/internal/app"
	"github.com/dshills/uebuild/internal/integration/task"
	"github.com/dshills/uebuild/internal/unreal"
	"github.com/dshills/uebuild/internal/unreal/command"
)

// exports returns the functions of the ue module.
func (p *Plugin) exports() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"setup":     p.luaSetup,
		"build":     p.luaStart(command.ModeBuild),
		"headers":   p.luaStart(command.ModeHeaders),
		"compiledb": p.luaStart(command.ModeCompileDB),
		"engine":    p.luaEngine,
		"targets":   p.luaTargets,
		"command":   p.luaCommand,
		"output":    p.luaOutput,
		"clangd":    p.luaClangd,
		"cancel":    p.luaCancel,
	}
}

// fail pushes nil and an error message. Cancellation is reported as
// "cancelled" so scripts can ignore it.
func fail(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	if app.Classify(err) == app.KindCancelled {
		L.Push(lua.LString("cancelled"))
	} else {
		L.Push(lua.LString(err.Error()))
	}
	return 2
}

// ue.setup{prompt=, notify=, refresh=, on_output=, on_exit=, engine=}
func (p *Plugin) luaSetup(L *lua.LState) int {
	opts := L.CheckTable(1)
	b := p.bridge

	p.callbacks.prompt, _ = b.GetTableFunc(opts, "prompt")
	p.callbacks.notify, _ = b.GetTableFunc(opts, "notify")
	p.callbacks.refresh, _ = b.GetTableFunc(opts, "refresh")
	p.callbacks.onOutput, _ = b.GetTableFunc(opts, "on_output")
	p.callbacks.onExit, _ = b.GetTableFunc(opts, "on_exit")
	p.engineOverride, _ = b.GetTableString(opts, "engine")
	return 0
}

// location reads dir, scope and engine from an options table.
func (p *Plugin) location(opts *lua.LTable) (app.Location, error) {
	b := p.bridge
	loc := app.Location{EngineRoot: p.engineOverride}
	loc.Dir, _ = b.GetTableString(opts, "dir")
	if root, ok := b.GetTableString(opts, "engine"); ok {
		loc.EngineRoot = root
	}
	scope, _ := b.GetTableString(opts, "scope")
	var err error
	loc.Scope, err = unreal.ParseScope(scope)
	return loc, err
}

// request reads a build request from an options table.
func (p *Plugin) request(opts *lua.LTable, mode command.Mode) (app.Request, error) {
	loc, err := p.location(opts)
	if err != nil {
		return app.Request{}, err
	}
	b := p.bridge
	req := app.Request{Location: loc, Mode: mode}
	req.Target, _ = b.GetTableString(opts, "target")
	req.Platform, _ = b.GetTableString(opts, "platform")
	req.Configuration, _ = b.GetTableString(opts, "configuration")
	req.OutputDir, _ = b.GetTableString(opts, "output_dir")
	req.ExtraArgs = b.GetTableStrings(opts, "extra_args")
	return req, nil
}

// ue.build/headers/compiledb(opts) -> execution id | nil, err
func (p *Plugin) luaStart(mode command.Mode) lua.LGFunction {
	return func(L *lua.LState) int {
		req, err := p.request(L.OptTable(1, nil), mode)
		if err != nil {
			return fail(L, err)
		}

		inv, err := p.svc.Prepare(p.ctx, req)
		if err != nil {
			app.Report(p.svc.Notifier(), err)
			return fail(L, err)
		}
		exec, err := p.svc.Start(p.ctx, inv)
		if err != nil {
			app.Report(p.svc.Notifier(), err)
			return fail(L, err)
		}

		p.wg.Add(1)
		p.active.Add(1)
		go p.finish(inv, exec)

		L.Push(lua.LString(exec.ID))
		return 1
	}
}

// finish runs the post-build steps and queues on_exit.
func (p *Plugin) finish(inv *app.Invocation, exec *task.Execution) {
	defer p.wg.Done()

	_, err := p.svc.Finish(p.ctx, inv, exec)
	app.Report(p.svc.Notifier(), err)

	id, code := exec.ID, exec.Code()
	p.post(func(L *lua.LState) error {
		return p.call(L, p.callbacks.onExit, lua.LString(id), lua.LNumber(code))
	})
	p.active.Add(-1)
}

// ue.engine(dir [, scope]) -> path, "found" | nil, outcome, message
func (p *Plugin) luaEngine(L *lua.LState) int {
	opts := L.NewTable()
	opts.RawSetString("dir", lua.LString(L.OptString(1, "")))
	opts.RawSetString("scope", lua.LString(L.OptString(2, "")))
	loc, err := p.location(opts)
	if err != nil {
		return fail(L, err)
	}

	ws, err := p.svc.Locate(p.ctx, loc, false)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(app.Classify(err).String()))
		L.Push(lua.LString(err.Error()))
		return 3
	}
	L.Push(lua.LString(ws.EngineRoot))
	L.Push(lua.LString("found"))
	return 2
}

// ue.targets(dir [, scope]) -> list, guessed | nil, err
func (p *Plugin) luaTargets(L *lua.LState) int {
	opts := L.NewTable()
	opts.RawSetString("dir", lua.LString(L.OptString(1, "")))
	opts.RawSetString("scope", lua.LString(L.OptString(2, "")))
	loc, err := p.location(opts)
	if err != nil {
		return fail(L, err)
	}

	result, err := p.svc.DiscoverTargets(p.ctx, loc)
	if err != nil {
		return fail(L, err)
	}
	L.Push(p.bridge.ToLuaValue(result.Targets))
	L.Push(lua.LBool(result.Guessed))
	return 2
}

// ue.command(opts) -> shell line | nil, err. opts.mode selects the mode.
func (p *Plugin) luaCommand(L *lua.LState) int {
	opts := L.OptTable(1, nil)
	mode := command.ModeBuild
	if name, ok := p.bridge.GetTableString(opts, "mode"); ok {
		var err error
		if mode, err = command.ParseMode(name); err != nil {
			return fail(L, err)
		}
	}
	req, err := p.request(opts, mode)
	if err != nil {
		return fail(L, err)
	}
	inv, err := p.svc.Prepare(p.ctx, req)
	if err != nil {
		return fail(L, err)
	}
	L.Push(lua.LString(inv.Command.Line))
	return 1
}

// ue.output([since]) -> list of lines
func (p *Plugin) luaOutput(L *lua.LState) int {
	lines := p.svc.Executor().Sink().Since(L.OptInt(1, 0))
	t := L.NewTable()
	for i, line := range lines {
		t.RawSetInt(i+1, lua.LString(line.Content))
	}
	L.Push(t)
	return 1
}

// ue.clangd([dir]) -> path | nil, err
func (p *Plugin) luaClangd(L *lua.LState) int {
	path, err := p.svc.WriteClangd(L.OptString(1, ""))
	if err != nil {
		return fail(L, err)
	}
	L.Push(lua.LString(path))
	return 1
}

// ue.cancel(id) -> true | nil, err
func (p *Plugin) luaCancel(L *lua.LState) int {
	if err := p.svc.Executor().CancelExecution(L.CheckString(1)); err != nil {
		return fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}
