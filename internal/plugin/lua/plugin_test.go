package lua

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/uebuild/internal/config"
	"github.com/dshills/uebuild/internal/integration/task"
)

const fakeBuildScript = `#!/bin/sh
echo "ubt $*"
exit "${FAKE_UBT_EXIT:-0}"
`

type fixture struct {
	engineRoot string
	projectDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake build script needs /bin/sh")
	}

	base := t.TempDir()
	f := fixture{
		engineRoot: filepath.Join(base, "UE"),
		projectDir: filepath.Join(base, "Game"),
	}
	batch := filepath.Join(f.engineRoot, "Engine", "Build", "BatchFiles", "Linux")
	for _, dir := range []string{batch, filepath.Join(f.projectDir, "Source")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		filepath.Join(f.projectDir, "Game.uproject"):                  `{"FileVersion":3}`,
		filepath.Join(f.projectDir, "Source", "Game.Target.cs"):       "",
		filepath.Join(f.projectDir, "Source", "GameEditor.Target.cs"): "",
	}
	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(batch, "Build.sh"), []byte(fakeBuildScript), 0o755); err != nil {
		t.Fatal(err)
	}
	return f
}

func newTestPlugin(t *testing.T, f fixture, exitCode string) *Plugin {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.InstallRoots = []string{t.TempDir()}
	cfg.Engine.SearchDepth = 1
	cfg.Engine.Persist = false

	execCfg := task.DefaultExecutorConfig()
	execCfg.DefaultEnv = map[string]string{"FAKE_UBT_EXIT": exitCode}

	p := NewPlugin(context.Background(), Options{
		Config:    cfg,
		Executor:  task.NewExecutor(execCfg),
		HostOS:    "linux",
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	t.Cleanup(func() { _ = p.Close() })

	p.State().SetGlobal("ENGINE", glua.LString(f.engineRoot))
	p.State().SetGlobal("PROJECT", glua.LString(f.projectDir))
	return p
}

const setupScript = `
ue = require("ue")
lines = {}
notes = {}
refreshed = 0
ue.setup{
  engine = ENGINE,
  notify = function(level, msg) table.insert(notes, level .. ": " .. msg) end,
  refresh = function() refreshed = refreshed + 1 end,
  on_output = function(id, line) table.insert(lines, line) end,
  on_exit = function(id, code) exit_id = id; exit_code = code end,
}
`

// pumpUntil delivers callbacks until global name is set.
func pumpUntil(t *testing.T, p *Plugin, name string) glua.LValue {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		if v := p.State().GetGlobal(name); v != glua.LNil {
			return v
		}
		if _, err := p.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for %s", name)
			}
			t.Logf("callback error: %v", err)
		}
	}
}

func TestPluginBuild(t *testing.T) {
	f := newFixture(t)
	p := newTestPlugin(t, f, "0")

	if err := p.DoString(setupScript + `
id, err = ue.build{ dir = PROJECT, target = "GameEditor", configuration = "Development" }
`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if errVal := p.State().GetGlobal("err"); errVal != glua.LNil {
		t.Fatalf("ue.build error = %v", errVal)
	}

	code := pumpUntil(t, p, "exit_code")
	if code.(glua.LNumber) != 0 {
		t.Errorf("exit code = %v, want 0", code)
	}
	if id := p.State().GetGlobal("id").String(); id != p.State().GetGlobal("exit_id").String() {
		t.Errorf("exit id %q does not match build id %q", p.State().GetGlobal("exit_id"), id)
	}
	if n := p.State().GetGlobal("refreshed").(glua.LNumber); n != 1 {
		t.Errorf("refreshed = %v, want 1", n)
	}

	if err := p.DoString(`joined = table.concat(lines, "\n")`); err != nil {
		t.Fatal(err)
	}
	if joined := p.State().GetGlobal("joined").String(); !strings.Contains(joined, "ubt GameEditor Linux Development") {
		t.Errorf("output = %q", joined)
	}

	if err := p.DoString(`out = ue.output()`); err != nil {
		t.Fatal(err)
	}
	if out := p.State().GetGlobal("out").(*glua.LTable); out.Len() < 2 {
		t.Errorf("ue.output() returned %d lines", out.Len())
	}
	deadline := time.Now().Add(5 * time.Second)
	for !p.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("plugin never became idle")
		}
		if _, err := p.Pump(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPluginBuildFailure(t *testing.T) {
	f := newFixture(t)
	p := newTestPlugin(t, f, "4")

	if err := p.DoString(setupScript + `
id, err = ue.build{ dir = PROJECT, target = "Game", configuration = "Debug" }
`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	code := pumpUntil(t, p, "exit_code")
	if code.(glua.LNumber) != 4 {
		t.Errorf("exit code = %v, want 4", code)
	}
	if n := p.State().GetGlobal("refreshed").(glua.LNumber); n != 0 {
		t.Errorf("refreshed = %v, want 0", n)
	}
	if err := p.DoString(`notes_joined = table.concat(notes, "\n")`); err != nil {
		t.Fatal(err)
	}
	if notes := p.State().GetGlobal("notes_joined").String(); !strings.Contains(notes, "error: Build failed with exit code 4") {
		t.Errorf("notes = %q", notes)
	}
}

func TestPluginPromptCancel(t *testing.T) {
	f := newFixture(t)
	p := newTestPlugin(t, f, "0")

	err := p.DoString(setupScript + `
ue.setup{ engine = ENGINE, prompt = function(kind, title, options, default) return nil end }
id, err = ue.build{ dir = PROJECT }
`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if id := p.State().GetGlobal("id"); id != glua.LNil {
		t.Errorf("id = %v, want nil", id)
	}
	if msg := p.State().GetGlobal("err").String(); msg != "cancelled" {
		t.Errorf("err = %q, want cancelled", msg)
	}
}

func TestPluginPromptSelect(t *testing.T) {
	f := newFixture(t)
	p := newTestPlugin(t, f, "0")

	err := p.DoString(setupScript + `
asked = {}
ue.setup{
  engine = ENGINE,
  prompt = function(kind, title, options, default)
    table.insert(asked, kind)
    if title:find("target") then return options[1] end
    return "Shipping"
  end,
}
line, err = ue.command{ dir = PROJECT, mode = "headers" }
`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	line := p.State().GetGlobal("line").String()
	for _, want := range []string{"Game Linux Shipping", "-SkipBuild"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestPluginTargetsAndEngine(t *testing.T) {
	f := newFixture(t)
	p := newTestPlugin(t, f, "0")

	err := p.DoString(setupScript + `
targets, guessed = ue.targets(PROJECT)
first = targets[1]
count = #targets
root, outcome = ue.engine(PROJECT)
`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if n := p.State().GetGlobal("count").(glua.LNumber); n != 2 {
		t.Errorf("#targets = %v, want 2", n)
	}
	if first := p.State().GetGlobal("first").String(); first != "Game" {
		t.Errorf("targets[1] = %q, want Game", first)
	}
	if p.State().GetGlobal("guessed") != glua.LFalse {
		t.Error("guessed should be false")
	}
	if root := p.State().GetGlobal("root").String(); root != f.engineRoot {
		t.Errorf("root = %q, want %q", root, f.engineRoot)
	}
	if outcome := p.State().GetGlobal("outcome").String(); outcome != "found" {
		t.Errorf("outcome = %q, want found", outcome)
	}
}

func TestPluginEngineNotFound(t *testing.T) {
	f := newFixture(t)
	p := newTestPlugin(t, f, "0")

	if err := p.DoString(`root, outcome = ue.engine(PROJECT)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if root := p.State().GetGlobal("root"); root != glua.LNil {
		t.Errorf("root = %v, want nil", root)
	}
	if outcome := p.State().GetGlobal("outcome").String(); outcome != "not-found" {
		t.Errorf("outcome = %q, want not-found", outcome)
	}
}

func TestPluginClangd(t *testing.T) {
	f := newFixture(t)
	p := newTestPlugin(t, f, "0")

	if err := p.DoString(`path, err = ue.clangd(PROJECT)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	want := filepath.Join(f.projectDir, ".clangd")
	if path := p.State().GetGlobal("path").String(); path != want {
		t.Errorf("path = %q, want %q (err %v)", path, want, p.State().GetGlobal("err"))
	}
}
