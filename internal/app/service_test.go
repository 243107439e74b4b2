package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dshills/uebuild/internal/config"
	"github.com/dshills/uebuild/internal/diagnostics"
	"github.com/dshills/uebuild/internal/integration/task"
	"github.com/dshills/uebuild/internal/unreal"
	"github.com/dshills/uebuild/internal/unreal/command"
	"github.com/dshills/uebuild/internal/unreal/engine"
)

// fakeBuildScript stands in for UnrealBuildTool: it echoes its arguments,
// writes a compile database when asked to (unless $FAKE_UBT_NODB is set),
// and exits with $FAKE_UBT_EXIT after sleeping $FAKE_UBT_SLEEP seconds.
const fakeBuildScript = `#!/bin/sh
echo "ubt $*"
sleep "${FAKE_UBT_SLEEP:-0}"
echo "done $1"
out=""
for a in "$@"; do
  case "$a" in
    -OutputDir=*) out="${a#-OutputDir=}" ;;
  esac
done
if [ -n "$out" ] && [ -z "$FAKE_UBT_NODB" ]; then
  printf '[{"directory":"%s","file":"%s/Source/Game/A.cpp"},{"directory":"/engine","file":"/engine/Core.cpp"}]' "$out" "$out" > "$out/compile_commands.json"
fi
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
	mustMkdir(t, batch)
	mustMkdir(t, filepath.Join(f.engineRoot, "Engine", "Source"))
	mustWrite(t, filepath.Join(batch, "Build.sh"), fakeBuildScript, 0o755)

	mustMkdir(t, filepath.Join(f.projectDir, "Source"))
	mustWrite(t, filepath.Join(f.projectDir, "Game.uproject"), `{"FileVersion":3,"EngineAssociation":"5.3"}`, 0o644)
	mustWrite(t, filepath.Join(f.projectDir, "Source", "Game.Target.cs"), "", 0o644)
	mustWrite(t, filepath.Join(f.projectDir, "Source", "GameEditor.Target.cs"), "", 0o644)
	return f
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, path, body string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), mode); err != nil {
		t.Fatal(err)
	}
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	levels   []Level
}

func (n *recordingNotifier) Notify(level Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) count(level Level) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, l := range n.levels {
		if l == level {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) contains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// countingRefresher counts refresh calls.
type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return nil
}

// mockPrompter answers selections from a map keyed by title prefix.
type mockPrompter struct {
	answers map[string]string
	err     error
	asked   []string
}

func (m *mockPrompter) PromptEnginePath(context.Context, string) (string, error) {
	return "", unreal.ErrCancelled
}

func (m *mockPrompter) Select(_ context.Context, title string, options []string, def string) (string, error) {
	m.asked = append(m.asked, title)
	if m.err != nil {
		return "", m.err
	}
	for prefix, answer := range m.answers {
		if strings.HasPrefix(title, prefix) {
			return answer, nil
		}
	}
	return def, nil
}

type harness struct {
	svc       *Service
	notifier  *recordingNotifier
	refresher *countingRefresher
}

func newHarness(t *testing.T, exitCode string, prompter Prompter, mutate func(*config.Config)) harness {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.InstallRoots = []string{t.TempDir()}
	cfg.Engine.SearchDepth = 1
	if mutate != nil {
		mutate(cfg)
	}

	execCfg := task.DefaultExecutorConfig()
	execCfg.DefaultEnv = map[string]string{"FAKE_UBT_EXIT": exitCode}

	h := harness{notifier: &recordingNotifier{}, refresher: &countingRefresher{}}
	h.svc = New(Options{
		Config:    cfg,
		Executor:  task.NewExecutor(execCfg),
		Prompter:  prompter,
		Notifier:  h.notifier,
		Refresher: h.refresher,
		LookupEnv: func(string) (string, bool) { return "", false },
		HostOS:    "linux",
	})
	return h
}

func TestServiceRunBuild(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, nil)

	result, err := h.svc.Run(context.Background(), Request{
		Location: Location{Dir: f.projectDir, EngineRoot: f.engineRoot},
		Mode:     command.ModeBuild,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	inv := result.Invocation
	if inv.Target != "GameEditor" {
		t.Errorf("Target = %q, want GameEditor", inv.Target)
	}
	if inv.Configuration != "Development" || inv.Platform != "Linux" {
		t.Errorf("Configuration/Platform = %q/%q", inv.Configuration, inv.Platform)
	}
	if inv.EngineSource != engine.SourceConfigured {
		t.Errorf("EngineSource = %q, want configured", inv.EngineSource)
	}
	if code := result.Execution.Code(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got := h.refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}

	out := h.svc.Executor().Sink().Content()
	if !strings.Contains(out, "ubt GameEditor Linux Development -project=") {
		t.Errorf("output missing build arguments:\n%s", out)
	}
	if !strings.Contains(out, "-WaitMutex") {
		t.Errorf("output missing -WaitMutex:\n%s", out)
	}
	if h.notifier.count(LevelError) != 0 {
		t.Errorf("unexpected error notifications: %v", h.notifier.messages)
	}
	if _, err := os.Stat(filepath.Join(f.projectDir, ".ue-engine")); err != nil {
		t.Errorf("marker not persisted: %v", err)
	}
}

func TestServiceRunFailureSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "2", nil, nil)

	_, err := h.svc.Run(context.Background(), Request{
		Location: Location{Dir: f.projectDir, EngineRoot: f.engineRoot},
		Mode:     command.ModeBuild,
		Target:   "Game",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if Classify(err) != KindSubprocess {
		t.Errorf("Classify = %v, want subprocess-failure", Classify(err))
	}
	if code := ExitCode(err); code != 2 {
		t.Errorf("ExitCode = %d, want 2", code)
	}
	if got := h.refresher.calls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0", got)
	}
	if !h.notifier.contains("exit code 2") {
		t.Errorf("notifications = %v, want exit code", h.notifier.messages)
	}
}

func TestServiceRunCompileDB(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, func(cfg *config.Config) {
		cfg.Clangd.FilterToProject = true
	})

	result, err := h.svc.Run(context.Background(), Request{
		Location: Location{Dir: f.projectDir, EngineRoot: f.engineRoot},
		Mode:     command.ModeCompileDB,
		Target:   "GameEditor",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Invocation.OutputDir != f.projectDir {
		t.Errorf("OutputDir = %q, want %q", result.Invocation.OutputDir, f.projectDir)
	}
	db := result.CompileDB
	if db == nil {
		t.Fatal("CompileDB not set")
	}
	if db.Entries != 2 || db.Kept != 1 {
		t.Errorf("entries/kept = %d/%d, want 2/1", db.Entries, db.Kept)
	}
	if db.Path != filepath.Join(f.projectDir, diagnostics.CompileDBFile) {
		t.Errorf("Path = %q", db.Path)
	}

	wantClangd := filepath.Join(f.projectDir, diagnostics.ClangdFile)
	if result.ClangdPath != wantClangd {
		t.Errorf("ClangdPath = %q, want %q", result.ClangdPath, wantClangd)
	}
	if _, err := os.Stat(wantClangd); err != nil {
		t.Errorf(".clangd not written: %v", err)
	}
	if got := h.refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestServiceCompileDBMissingStillRefreshes(t *testing.T) {
	f := newFixture(t)
	t.Setenv("FAKE_UBT_NODB", "1")
	h := newHarness(t, "0", nil, nil)

	result, err := h.svc.Run(context.Background(), Request{
		Location: Location{Dir: f.projectDir, EngineRoot: f.engineRoot},
		Mode:     command.ModeCompileDB,
		Target:   "GameEditor",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.CompileDB != nil {
		t.Errorf("CompileDB = %+v, want nil", result.CompileDB)
	}
	if got := h.refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if h.notifier.count(LevelWarn) != 1 || !h.notifier.contains("Compile database not processed") {
		t.Errorf("notifications = %v, want one compile database warning", h.notifier.messages)
	}
	if h.notifier.count(LevelError) != 0 {
		t.Errorf("unexpected error notifications: %v", h.notifier.messages)
	}
}

func TestServiceQueuedEchoFollowsRunningBuild(t *testing.T) {
	f := newFixture(t)
	t.Setenv("FAKE_UBT_SLEEP", "0.3")
	h := newHarness(t, "0", nil, nil)
	ctx := context.Background()

	var invs []*Invocation
	for _, target := range []string{"Game", "GameEditor"} {
		inv, err := h.svc.Prepare(ctx, Request{
			Location: Location{Dir: f.projectDir, EngineRoot: f.engineRoot},
			Mode:     command.ModeBuild,
			Target:   target,
		})
		if err != nil {
			t.Fatal(err)
		}
		invs = append(invs, inv)
	}

	var execs []*task.Execution
	for _, inv := range invs {
		exec, err := h.svc.Start(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		execs = append(execs, exec)
	}
	for i, exec := range execs {
		if _, err := h.svc.Finish(ctx, invs[i], exec); err != nil {
			t.Fatalf("Finish %s: %v", invs[i].Target, err)
		}
	}

	var got []string
	for _, line := range h.svc.Executor().Sink().Lines() {
		got = append(got, line.Content)
	}
	want := []string{
		"> " + invs[0].Command.Line,
		"ubt " + strings.Join(invs[0].Command.Args, " "),
		"done Game",
		"> " + invs[1].Command.Line,
		"ubt " + strings.Join(invs[1].Command.Args, " "),
		"done GameEditor",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("sink lines:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestServiceLocateNotifiesRejectedPath(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, func(cfg *config.Config) {
		cfg.Engine.Persist = false
	})
	mustWrite(t, filepath.Join(f.projectDir, ".ue-engine"), "ENGINE_PATH="+f.engineRoot+"\n", 0o644)
	bogus := filepath.Join(t.TempDir(), "NotAnEngine")

	ws, err := h.svc.Locate(context.Background(), Location{Dir: f.projectDir, EngineRoot: bogus}, true)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if ws.EngineSource != engine.SourceMarker {
		t.Errorf("EngineSource = %q, want marker", ws.EngineSource)
	}
	if h.notifier.count(LevelWarn) != 1 {
		t.Fatalf("notifications = %v, want one warning", h.notifier.messages)
	}
	want := "Ignoring engine path " + bogus + " from configured"
	if !h.notifier.contains(want) {
		t.Errorf("notifications = %v, want %q", h.notifier.messages, want)
	}
}

func TestServicePrepareEngineScope(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, nil)

	inv, err := h.svc.Prepare(context.Background(), Request{
		Location: Location{Dir: f.engineRoot, Scope: unreal.ScopeEngine, EngineRoot: f.engineRoot},
		Mode:     command.ModeHeaders,
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if inv.Project != nil {
		t.Error("engine scope must not carry a project")
	}
	if !inv.TargetsGuessed || inv.Target != "UE" {
		t.Errorf("Target = %q (guessed %v), want guessed UE", inv.Target, inv.TargetsGuessed)
	}
	if h.notifier.count(LevelWarn) != 1 {
		t.Errorf("want one guess warning, got %v", h.notifier.messages)
	}
	if inv.WorkDir() != f.engineRoot {
		t.Errorf("WorkDir = %q, want %q", inv.WorkDir(), f.engineRoot)
	}
	for _, a := range inv.Command.Args {
		if strings.HasPrefix(a, "-project=") {
			t.Errorf("unexpected project argument %q", a)
		}
	}
	if !strings.Contains(inv.Command.Line, "-SkipBuild") {
		t.Errorf("Line = %q, want -SkipBuild", inv.Command.Line)
	}
}

func TestServicePrepareNoProject(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, nil)

	_, err := h.svc.Prepare(context.Background(), Request{
		Location: Location{Dir: t.TempDir(), EngineRoot: f.engineRoot},
	})
	if !errors.Is(err, ErrNoProject) {
		t.Fatalf("err = %v, want ErrNoProject", err)
	}
	if Classify(err) != KindNotFound {
		t.Errorf("Classify = %v, want not-found", Classify(err))
	}
}

func TestServicePrepareEngineNotFound(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, nil)

	_, err := h.svc.Prepare(context.Background(), Request{
		Location: Location{Dir: f.projectDir, EngineRoot: filepath.Join(t.TempDir(), "missing")},
	})
	if !errors.Is(err, ErrEngineNotFound) {
		t.Fatalf("err = %v, want ErrEngineNotFound", err)
	}
	if !strings.Contains(err.Error(), "rejected configured") {
		t.Errorf("error %q does not name the rejected path", err)
	}
}

func TestServicePromptSelection(t *testing.T) {
	f := newFixture(t)
	p := &mockPrompter{answers: map[string]string{
		"Select build target":        "Game",
		"Select build configuration": "Shipping",
	}}
	h := newHarness(t, "0", p, nil)

	inv, err := h.svc.Prepare(context.Background(), Request{
		Location: Location{Dir: f.projectDir, EngineRoot: f.engineRoot},
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := []string{"Game", "Linux", "Shipping"}
	for i, w := range want {
		if inv.Command.Args[i] != w {
			t.Errorf("Args[%d] = %q, want %q", i, inv.Command.Args[i], w)
		}
	}
	if len(p.asked) != 2 {
		t.Errorf("asked %v, want target and configuration", p.asked)
	}
}

func TestServiceCancelledPromptIsSilent(t *testing.T) {
	f := newFixture(t)
	p := &mockPrompter{err: unreal.ErrCancelled}
	h := newHarness(t, "0", p, nil)

	_, err := h.svc.Run(context.Background(), Request{
		Location: Location{Dir: f.projectDir, EngineRoot: f.engineRoot},
	})
	if Classify(err) != KindCancelled {
		t.Fatalf("Classify(%v) = %v, want cancelled", err, Classify(err))
	}
	if h.notifier.count(LevelError) != 0 {
		t.Errorf("cancellation must be silent, got %v", h.notifier.messages)
	}
	if h.svc.Executor().Sink().Len() != 0 {
		t.Error("nothing should run after cancellation")
	}
}

func TestServiceSessionCache(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, nil)
	ctx := context.Background()

	first, err := h.svc.Locate(ctx, Location{Dir: f.projectDir, EngineRoot: f.engineRoot}, true)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if first.EngineSource != engine.SourceConfigured {
		t.Errorf("first source = %q", first.EngineSource)
	}

	second, err := h.svc.Locate(ctx, Location{Dir: t.TempDir(), Scope: unreal.ScopeEngine}, false)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if second.EngineSource != engine.SourceCache || second.EngineRoot != first.EngineRoot {
		t.Errorf("second = %q from %q, want cached %q", second.EngineRoot, second.EngineSource, first.EngineRoot)
	}
}

func TestServiceWriteClangd(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, "0", nil, nil)

	path, err := h.svc.WriteClangd(filepath.Join(f.projectDir, "Source"))
	if err != nil {
		t.Fatalf("WriteClangd: %v", err)
	}
	if path != filepath.Join(f.projectDir, diagnostics.ClangdFile) {
		t.Errorf("path = %q", path)
	}
	opts, err := diagnostics.ReadClangd(f.projectDir)
	if err != nil {
		t.Fatalf("ReadClangd: %v", err)
	}
	if len(opts.Remove) == 0 {
		t.Error("expected configured Remove flags")
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.MarkerFile = ".engine"
	cfg.Engine.InstallRoots = []string{"/opt/epic"}
	cfg.Engine.SearchDepth = 5

	opts := EngineOptions(cfg, "linux")
	if opts.Marker.FileName != ".engine" || opts.Marker.Key != "ENGINE_PATH" {
		t.Errorf("Marker = %+v", opts.Marker)
	}
	if len(opts.InstallRoots) != 1 || opts.InstallRoots[0] != "/opt/epic" {
		t.Errorf("InstallRoots = %v", opts.InstallRoots)
	}
	if opts.SearchDepth != 5 || opts.EnvVar != "UNREAL_ENGINE_PATH" {
		t.Errorf("SearchDepth/EnvVar = %d/%q", opts.SearchDepth, opts.EnvVar)
	}
}
