// Package lua hosts the ue build module on a sandboxed gopher-lua state.
//
// An editor loads its configuration script into a Plugin and calls the
// module from key bindings or commands:
//
//	local ue = require("ue")
//	ue.setup{
//	    prompt = function(kind, title, options, default) return default end,
//	    notify = function(level, msg) print(level, msg) end,
//	    on_output = function(id, line) end,
//	    on_exit = function(id, code) end,
//	}
//	local id, err = ue.build{ target = "GameEditor", configuration = "Development" }
//
// Builds run in the background. Output, notifications, refresh requests
// and exit codes are queued and delivered on the goroutine that owns the
// Lua state when the host calls Plugin.Pump or Plugin.Wait:
//
//	p := lua.NewPlugin(ctx, lua.Options{Config: cfg})
//	defer p.Close()
//	if err := p.DoFile("init.lua"); err != nil { ... }
//	for {
//	    if _, err := p.Wait(ctx); err != nil { ... }
//	}
//
// # Sandbox
//
// The state opens base, package, table, string and math only. dofile,
// loadfile and load are removed and require accepts whitelisted modules
// only.
package lua
