package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/uebuild/internal/config"
	"github.com/dshills/uebuild/internal/diagnostics"
	"github.com/dshills/uebuild/internal/integration/task"
	"github.com/dshills/uebuild/internal/logging"
	"github.com/dshills/uebuild/internal/unreal"
	"github.com/dshills/uebuild/internal/unreal/command"
	"github.com/dshills/uebuild/internal/unreal/engine"
	"github.com/dshills/uebuild/internal/unreal/project"
	"github.com/dshills/uebuild/internal/unreal/target"
)

// Prompter asks the user for an engine path and picks from lists.
// Dismissal is reported as unreal.ErrCancelled.
type Prompter interface {
	engine.Prompter
	Select(ctx context.Context, title string, options []string, def string) (string, error)
}

// Options configures a Service. Zero values get working defaults.
type Options struct {
	Config    *config.Config
	Executor  *task.Executor
	Session   *engine.Session
	Prompter  Prompter
	Notifier  Notifier
	Refresher diagnostics.Refresher
	Logger    logrus.FieldLogger

	// LookupEnv replaces os.LookupEnv for the engine environment variable.
	LookupEnv func(string) (string, bool)

	// HostOS is a GOOS value; empty means runtime.GOOS.
	HostOS string
}

// Service runs build invocations end to end: project and engine
// discovery, target selection, command construction, execution and the
// post-build steps. It is safe for concurrent use; the executor decides
// whether invocations overlap.
type Service struct {
	cfg       *config.Config
	executor  *task.Executor
	session   *engine.Session
	prompter  Prompter
	notifier  Notifier
	refresher diagnostics.Refresher
	lookupEnv func(string) (string, bool)
	hostOS    string
	logger    logrus.FieldLogger
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		cfg:       opts.Config,
		executor:  opts.Executor,
		session:   opts.Session,
		prompter:  opts.Prompter,
		notifier:  opts.Notifier,
		refresher: opts.Refresher,
		lookupEnv: opts.LookupEnv,
		hostOS:    opts.HostOS,
		logger:    logging.WithComponent(opts.Logger, "app"),
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.hostOS == "" {
		s.hostOS = runtime.GOOS
	}
	if s.executor == nil {
		s.executor = task.NewExecutor(task.DefaultExecutorConfig(), task.WithLogger(opts.Logger))
	}
	if s.session == nil {
		s.session = engine.NewSession()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.refresher == nil {
		s.refresher = diagnostics.NopRefresher{}
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Executor returns the executor that runs build processes.
func (s *Service) Executor() *task.Executor { return s.executor }

// Session returns the engine session cache.
func (s *Service) Session() *engine.Session { return s.session }

// Notifier returns the notifier.
func (s *Service) Notifier() Notifier { return s.notifier }

// EngineOptions converts the engine configuration into locator options.
func EngineOptions(cfg *config.Config, hostOS string) engine.Options {
	opts := engine.DefaultOptions()
	ec := cfg.Engine
	opts.ConfiguredPath = ec.Path
	if ec.MarkerFile != "" {
		opts.Marker.FileName = ec.MarkerFile
	}
	if ec.MarkerKey != "" {
		opts.Marker.Key = ec.MarkerKey
	}
	opts.EnvVar = ec.EnvVar
	opts.InstallRoots = engine.DefaultInstallRoots(hostOS)
	if len(ec.InstallRoots) > 0 {
		opts.InstallRoots = ec.InstallRoots
	}
	opts.SearchDepth = ec.SearchDepth
	opts.Persist = ec.Persist
	return opts
}

func (s *Service) locator(override string) *engine.Locator {
	opts := EngineOptions(s.cfg, s.hostOS)
	if override != "" {
		opts.ConfiguredPath = override
	}

	options := []engine.LocatorOption{engine.WithLogger(s.logger)}
	if s.prompter != nil {
		options = append(options, engine.WithPrompter(s.prompter))
	}
	if s.lookupEnv != nil {
		options = append(options, engine.WithLookupEnv(s.lookupEnv))
	}
	return engine.NewLocator(opts, options...)
}

// Location identifies where an invocation runs.
type Location struct {
	// Dir is the directory the invocation starts from; empty means the
	// working directory.
	Dir string

	// Scope selects project or engine operation.
	Scope unreal.Scope

	// EngineRoot overrides the configured engine path.
	EngineRoot string
}

// Workspace is the resolved environment of an invocation.
type Workspace struct {
	Dir          string
	Scope        unreal.Scope
	Project      *project.Descriptor
	EngineRoot   string
	EngineSource engine.Source
}

// Locate finds the project (project scope only) and resolves the engine
// root. With requireProject a project-scope invocation outside any
// project fails with ErrNoProject.
func (s *Service) Locate(ctx context.Context, loc Location, requireProject bool) (*Workspace, error) {
	dir, err := absDir(loc.Dir)
	if err != nil {
		return nil, NewOperationError("resolve directory", loc.Dir, err)
	}
	out := &Workspace{Dir: dir, Scope: loc.Scope}

	if loc.Scope == unreal.ScopeProject {
		proj, err := project.Find(dir)
		switch {
		case err == nil:
			out.Project = proj
		case errors.Is(err, unreal.ErrNotFound) && !requireProject:
		case errors.Is(err, unreal.ErrNotFound):
			return nil, NewOperationError("find project", dir, ErrNoProject)
		default:
			return nil, NewOperationError("find project", dir, err)
		}
	}

	res, err := s.locator(loc.EngineRoot).Resolve(ctx, s.session, engine.Request{
		StartDir: dir,
		Project:  out.Project,
		Scope:    loc.Scope,
	})
	if err != nil {
		return nil, NewOperationError("resolve engine", dir, err)
	}

	for _, r := range res.Rejected {
		s.notifier.Notify(LevelWarn, fmt.Sprintf("Ignoring engine path %s from %s: %s", r.Path, r.Source, r.Reason))
	}

	switch res.Outcome {
	case engine.OutcomeFound:
	case engine.OutcomeCancelled:
		return nil, res.Err()
	default:
		opErr := NewOperationError("resolve engine", dir, ErrEngineNotFound)
		if len(res.Rejected) > 0 {
			opErr = opErr.WithContext("rejected " + describeRejected(res.Rejected))
		}
		return nil, opErr
	}

	if res.Persisted {
		s.notifier.Notify(LevelInfo, fmt.Sprintf("Saved engine path %s to %s", res.Root,
			EngineOptions(s.cfg, s.hostOS).Marker.Path(out.Project.Dir)))
	}
	s.logger.WithFields(logrus.Fields{"root": res.Root, "source": res.Source}).Info("using engine")

	out.EngineRoot = res.Root
	out.EngineSource = res.Source
	return out, nil
}

func describeRejected(rejected []engine.Rejection) string {
	parts := make([]string, 0, len(rejected))
	for _, r := range rejected {
		parts = append(parts, fmt.Sprintf("%s %s", r.Source, r.Path))
	}
	return strings.Join(parts, ", ")
}

// Targets discovers build targets for a located invocation and warns
// when the list is a guess.
func (s *Service) Targets(ws *Workspace) target.Result {
	searchDir, name := targetSearch(ws)
	result := target.Discover(searchDir, ws.Scope, name)
	if result.Guessed {
		s.notifier.Notify(LevelWarn, fmt.Sprintf("No %s files in %s; guessing target %q",
			"*"+target.FileSuffix, searchDir, result.Targets[0]))
	}
	return result
}

// DiscoverTargets lists targets for loc. A project in scope is enough;
// the engine is resolved only for engine-scope discovery.
func (s *Service) DiscoverTargets(ctx context.Context, loc Location) (target.Result, error) {
	if loc.Scope == unreal.ScopeEngine {
		ws, err := s.Locate(ctx, loc, false)
		if err != nil {
			return target.Result{}, err
		}
		return s.Targets(ws), nil
	}

	dir, err := absDir(loc.Dir)
	if err != nil {
		return target.Result{}, NewOperationError("resolve directory", loc.Dir, err)
	}
	proj, err := project.Find(dir)
	if err != nil {
		return target.Result{}, NewOperationError("find project", dir, ErrNoProject)
	}
	return s.Targets(&Workspace{Dir: dir, Scope: loc.Scope, Project: proj}), nil
}

func targetSearch(ws *Workspace) (dir, name string) {
	if ws.Project != nil {
		return ws.Project.SourceDir(), ws.Project.Name
	}
	return filepath.Join(ws.EngineRoot, "Engine", "Source"), filepath.Base(ws.Dir)
}

// Request describes one build invocation.
type Request struct {
	Location

	Mode command.Mode

	// Target, Platform and Configuration override configuration and
	// prompts when set.
	Target        string
	Platform      string
	Configuration string

	// OutputDir overrides the compile database directory.
	OutputDir string

	ExtraArgs []string
}

// Invocation is a fully resolved build invocation.
type Invocation struct {
	*Workspace

	Mode           command.Mode
	Target         string
	TargetsGuessed bool
	Platform       string
	Configuration  string
	OutputDir      string
	Command        command.Command
}

// WorkDir is the directory the build process runs in.
func (inv *Invocation) WorkDir() string {
	if inv.Project != nil {
		return inv.Project.Dir
	}
	return inv.EngineRoot
}

// Task converts the invocation into an executor task.
func (inv *Invocation) Task(problemMatcher string) *task.Task {
	t := &task.Task{
		Name:           fmt.Sprintf("%s %s", inv.Mode, inv.Target),
		Type:           task.TaskTypeShell,
		Command:        inv.Command.Line,
		Cwd:            inv.WorkDir(),
		ProblemMatcher: problemMatcher,
		Echo:           "> " + inv.Command.Line,
	}
	if inv.Command.HostOS == "windows" {
		t.Type = task.TaskTypeProcess
		t.Command = inv.Command.Script
		t.Args = inv.Command.Args
	}
	return t
}

// Prepare resolves everything a build needs and constructs the command.
// Nothing is executed.
func (s *Service) Prepare(ctx context.Context, req Request) (*Invocation, error) {
	ws, err := s.Locate(ctx, req.Location, true)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{Workspace: ws, Mode: req.Mode}

	inv.Target = firstNonEmpty(req.Target, s.cfg.Build.Target)
	if inv.Target == "" {
		found := s.Targets(ws)
		inv.TargetsGuessed = found.Guessed
		inv.Target, err = s.choose(ctx, "Select build target", found.Targets, found.Default())
		if err != nil {
			return nil, err
		}
	}

	inv.Configuration = req.Configuration
	if inv.Configuration == "" {
		inv.Configuration, err = s.choose(ctx, "Select build configuration", command.Configurations, s.cfg.Build.Configuration)
		if err != nil {
			return nil, err
		}
	}

	inv.Platform = firstNonEmpty(req.Platform, s.cfg.Build.Platform, command.HostPlatform(s.hostOS))

	if req.Mode == command.ModeCompileDB {
		inv.OutputDir = firstNonEmpty(req.OutputDir, inv.WorkDir())
	}

	creq := command.Request{
		Mode:          req.Mode,
		Target:        inv.Target,
		Platform:      inv.Platform,
		Configuration: inv.Configuration,
		EngineRoot:    ws.EngineRoot,
		OutputDir:     inv.OutputDir,
		HostOS:        s.hostOS,
		WaitMutex:     s.cfg.Build.WaitMutex,
		ExtraArgs:     append(append([]string(nil), s.cfg.Build.ExtraArgs...), req.ExtraArgs...),
	}
	if ws.Project != nil {
		creq.ProjectFile = ws.Project.File
	}

	inv.Command, err = command.Build(creq)
	if err != nil {
		return nil, NewOperationError("build command", req.Mode.String(), err)
	}
	return inv, nil
}

// choose picks one of options. Without a prompter, or with a single
// option, no question is asked.
func (s *Service) choose(ctx context.Context, title string, options []string, def string) (string, error) {
	if len(options) == 1 {
		return options[0], nil
	}
	if s.prompter == nil {
		return AutoSelect(title, options, def)
	}
	choice, err := s.prompter.Select(ctx, title, options, def)
	if err != nil {
		return "", err
	}
	if choice == "" {
		return "", fmt.Errorf("%s: %w", title, unreal.ErrCancelled)
	}
	return choice, nil
}

// AutoSelect answers a selection without asking: def when it is one of
// options, otherwise the first option.
func AutoSelect(title string, options []string, def string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("%w: no options for %q", unreal.ErrNotFound, title)
	}
	for _, o := range options {
		if o == def {
			return def, nil
		}
	}
	return options[0], nil
}

// Start queues the invocation. The command line is echoed to the output
// sink when the build leaves the queue.
func (s *Service) Start(ctx context.Context, inv *Invocation) (*task.Execution, error) {
	exec, err := s.executor.Execute(ctx, inv.Task(s.cfg.Build.ProblemMatcher))
	if err != nil {
		return nil, NewOperationError("start", inv.Mode.String(), err)
	}
	s.logger.WithFields(logrus.Fields{
		"execution": exec.ID,
		"mode":      inv.Mode,
		"target":    inv.Target,
	}).Info("build started")
	return exec, nil
}

// Result is the outcome of a finished invocation.
type Result struct {
	Invocation *Invocation
	Execution  *task.Execution

	// CompileDB is set after a successful compiledb run.
	CompileDB *diagnostics.CompileDBResult

	// ClangdPath is the .clangd file written, if any.
	ClangdPath string
}

// Finish waits for exec and runs the post-build steps. Diagnostics are
// refreshed on every exit code 0; a failed post-build step only warns.
func (s *Service) Finish(ctx context.Context, inv *Invocation, exec *task.Execution) (*Result, error) {
	result := &Result{Invocation: inv, Execution: exec}

	if err := exec.Wait(ctx); err != nil {
		if exec.CurrentState() == task.ExecutionStateCanceled || errors.Is(err, context.Canceled) {
			return result, fmt.Errorf("%s: %w", inv.Mode, unreal.ErrCancelled)
		}
		return result, NewOperationError(inv.Mode.String(), inv.Target, err)
	}

	if inv.Mode == command.ModeCompileDB {
		if err := s.postCompileDB(inv, result); err != nil {
			s.notifier.Notify(LevelWarn, fmt.Sprintf("Compile database not processed: %v", err))
		}
	}

	if err := s.refresher.Refresh(ctx); err != nil {
		s.notifier.Notify(LevelWarn, fmt.Sprintf("Diagnostics refresh failed: %v", err))
	}

	s.notifier.Notify(LevelInfo, fmt.Sprintf("%s %s succeeded in %s", inv.Mode, inv.Target, exec.Duration().Round(time.Millisecond)))
	return result, nil
}

func (s *Service) postCompileDB(inv *Invocation, result *Result) error {
	cc := s.cfg.Clangd
	opts := diagnostics.CompileDBOptions{OutputDir: inv.OutputDir}
	if cc.CopyToProject && inv.Project != nil {
		opts.ProjectDir = inv.Project.Dir
		opts.FilterToProject = cc.FilterToProject
	}

	db, err := diagnostics.ProcessCompileDB(opts)
	if err != nil {
		return NewOperationError("process compile database", inv.OutputDir, err)
	}
	result.CompileDB = &db
	s.logger.WithFields(logrus.Fields{"path": db.Path, "entries": db.Entries, "kept": db.Kept}).Info("compile database ready")

	if !cc.WriteConfig {
		return nil
	}
	path, err := diagnostics.WriteClangd(inv.WorkDir(), s.clangdOptions(filepath.Dir(db.Path), inv.WorkDir()))
	switch {
	case err == nil:
		result.ClangdPath = path
	case errors.Is(err, diagnostics.ErrUserFile):
		s.logger.WithField("dir", inv.WorkDir()).Debug("keeping user .clangd")
	default:
		s.notifier.Notify(LevelWarn, fmt.Sprintf("Cannot write .clangd: %v", err))
	}
	return nil
}

func (s *Service) clangdOptions(dbDir, dir string) diagnostics.ClangdOptions {
	cc := s.cfg.Clangd
	opts := diagnostics.ClangdOptions{Add: cc.Add, Remove: cc.Remove, Suppress: cc.Suppress}
	if filepath.Clean(dbDir) != filepath.Clean(dir) {
		opts.CompilationDatabase = dbDir
	}
	return opts
}

// Run prepares, starts and finishes an invocation. Failures other than
// cancellation are also reported through the notifier.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	inv, err := s.Prepare(ctx, req)
	if err != nil {
		Report(s.notifier, err)
		return nil, err
	}
	exec, err := s.Start(ctx, inv)
	if err != nil {
		Report(s.notifier, err)
		return &Result{Invocation: inv}, err
	}
	result, err := s.Finish(ctx, inv, exec)
	Report(s.notifier, err)
	return result, err
}

// WriteClangd writes the .clangd companion file for the project in scope.
func (s *Service) WriteClangd(dir string) (string, error) {
	abs, err := absDir(dir)
	if err != nil {
		return "", NewOperationError("resolve directory", dir, err)
	}
	proj, err := project.Find(abs)
	if err != nil {
		return "", NewOperationError("find project", abs, ErrNoProject)
	}
	path, err := diagnostics.WriteClangd(proj.Dir, s.clangdOptions(proj.Dir, proj.Dir))
	if err != nil {
		return "", NewOperationError("write .clangd", proj.Dir, err)
	}
	return path, nil
}

func absDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(dir)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
