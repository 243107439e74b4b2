package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/uebuild/internal/app"
	"github.com/dshills/uebuild/internal/config"
	"github.com/dshills/uebuild/internal/diagnostics"
	"github.com/dshills/uebuild/internal/integration/task"
	"github.com/dshills/uebuild/internal/logging"
	"github.com/dshills/uebuild/internal/ui"
	"github.com/dshills/uebuild/internal/unreal"
	"github.com/dshills/uebuild/internal/unreal/command"
	"github.com/dshills/uebuild/internal/unreal/project"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	dir           string
	engine        string
	configFile    string
	logLevel      string
	target        string
	platform      string
	configuration string
	engineScope   bool
	dryRun        bool
	tui           bool
	yes           bool
}

// cli holds the state of one command line invocation.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	flags    globalFlags
	cfg      *config.Config
	logger   logrus.FieldLogger
	notifier *consoleNotifier
	svc      *app.Service
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{
		in:       in,
		out:      out,
		errOut:   errOut,
		notifier: &consoleNotifier{out: errOut},
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "uebuild",
		Short:             "Build Unreal Engine projects and generate clangd files",
		Version:           fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.dir, "dir", "C", "", "directory to resolve the project from (default: working directory)")
	pf.StringVar(&c.flags.engine, "engine", "", "engine root, overriding every other source")
	pf.StringVar(&c.flags.configFile, "config", "", "extra configuration file applied last")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVarP(&c.flags.target, "target", "t", "", "build target")
	pf.StringVarP(&c.flags.platform, "platform", "p", "", "target platform (default: host platform)")
	pf.StringVarP(&c.flags.configuration, "configuration", "c", "", "build configuration")
	pf.BoolVar(&c.flags.engineScope, "engine-scope", false, "operate on the engine source tree instead of a project")
	pf.BoolVarP(&c.flags.dryRun, "dry-run", "n", false, "print the command instead of running it")
	pf.BoolVar(&c.flags.tui, "tui", false, "show build output in a full screen view")
	pf.BoolVarP(&c.flags.yes, "yes", "y", false, "never prompt; use configured defaults (implied when stdin is not a terminal)")

	root.AddCommand(
		c.buildCommand("build", command.ModeBuild, "Build a target"),
		c.buildCommand("headers", command.ModeHeaders, "Run header generation for a target"),
		c.buildCommand("compiledb", command.ModeCompileDB, "Generate compile_commands.json"),
		c.engineCommand(),
		c.targetsCommand(),
		c.commandCommand(),
		c.clangdCommand(),
		c.watchCommand(),
		c.luaCommand(),
	)
	return root
}

// setup loads configuration and builds the service.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	opts := config.LoadOptions{UserFile: config.UserConfigPath()}
	if proj, err := project.Find(firstNonEmpty(c.flags.dir, ".")); err == nil {
		opts.ProjectDir = proj.Dir
	}
	if c.flags.configFile != "" {
		opts.ExtraFiles = []string{c.flags.configFile}
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, err := logging.New(logging.Config{
		Level:  firstNonEmpty(c.flags.logLevel, cfg.Log.Level),
		Output: c.errOut,
		Prefix: "uebuild",
	})
	if err != nil {
		return err
	}
	c.logger = logger

	executor := task.NewExecutor(task.DefaultExecutorConfig(), task.WithLogger(logger))
	if !c.flags.tui {
		executor.AddListener(&streamListener{out: c.out})
	}

	var prompter app.Prompter = ui.NewPrompter(ui.WithIO(c.in, c.errOut))
	if c.flags.yes || !isTerminal(c.in) {
		prompter = ui.AutoPrompter{}
	}

	var refresher diagnostics.Refresher = diagnostics.NopRefresher{}
	if cfg.Clangd.RefreshCommand != "" {
		refresher = &diagnostics.CommandRefresher{
			Executor: executor,
			Command:  cfg.Clangd.RefreshCommand,
			Dir:      firstNonEmpty(c.flags.dir, "."),
		}
	}

	c.svc = app.New(app.Options{
		Config:    cfg,
		Executor:  executor,
		Prompter:  prompter,
		Notifier:  c.notifier,
		Refresher: refresher,
		Logger:    logger,
	})
	return nil
}

// location returns the engine lookup location selected by the flags.
func (c *cli) location() app.Location {
	loc := app.Location{
		Dir:        c.flags.dir,
		Scope:      unreal.ScopeProject,
		EngineRoot: c.flags.engine,
	}
	if c.flags.engineScope {
		loc.Scope = unreal.ScopeEngine
	}
	return loc
}

// request returns a build request for mode.
func (c *cli) request(mode command.Mode, extra []string) app.Request {
	return app.Request{
		Location:      c.location(),
		Mode:          mode,
		Target:        c.flags.target,
		Platform:      c.flags.platform,
		Configuration: c.flags.configuration,
		ExtraArgs:     extra,
	}
}

// consoleNotifier prints notifications to stderr. While held, messages
// are buffered so they do not draw over a full screen view.
type consoleNotifier struct {
	mu      sync.Mutex
	out     io.Writer
	held    bool
	pending []string
}

// Notify implements app.Notifier.
func (n *consoleNotifier) Notify(level app.Level, msg string) {
	line := msg
	if level != app.LevelInfo {
		line = level.String() + ": " + msg
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.held {
		n.pending = append(n.pending, line)
		return
	}
	fmt.Fprintln(n.out, line)
}

func (n *consoleNotifier) hold() {
	n.mu.Lock()
	n.held = true
	n.mu.Unlock()
}

func (n *consoleNotifier) release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.held = false
	for _, line := range n.pending {
		fmt.Fprintln(n.out, line)
	}
	n.pending = nil
}

// streamListener copies build output to the terminal as it arrives.
type streamListener struct {
	mu  sync.Mutex
	out io.Writer
}

func (l *streamListener) OnExecutionStarted(*task.Execution) {}

func (l *streamListener) OnExecutionOutput(_ *task.Execution, line task.OutputLine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, line.Content)
}

func (l *streamListener) OnExecutionProblem(*task.Execution, task.Problem) {}

func (l *streamListener) OnExecutionCompleted(*task.Execution) {}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
