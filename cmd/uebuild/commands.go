package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/uebuild/internal/app"
	"github.com/dshills/uebuild/internal/integration/task"
	uelua "github.com/dshills/uebuild/internal/plugin/lua"
	"github.com/dshills/uebuild/internal/ui"
	"github.com/dshills/uebuild/internal/unreal/command"
	"github.com/dshills/uebuild/internal/unreal/project"
	"github.com/dshills/uebuild/internal/watch"
)

// buildCommand creates build, headers or compiledb. Arguments after --
// are passed to the build tool.
func (c *cli) buildCommand(name string, mode command.Mode, short string) *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   name + " [-- extra args]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := c.request(mode, args)
			req.OutputDir = outputDir
			return c.runBuild(cmd.Context(), req)
		},
	}
	if mode == command.ModeCompileDB {
		cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for compile_commands.json (default: project directory)")
	}
	return cmd
}

// runBuild prepares and runs one invocation, streaming output or showing
// the full screen view.
func (c *cli) runBuild(ctx context.Context, req app.Request) error {
	inv, err := c.svc.Prepare(ctx, req)
	if err != nil {
		app.Report(c.notifier, err)
		return reported(err)
	}
	if c.flags.dryRun {
		fmt.Fprintln(c.out, inv.Command.Line)
		return nil
	}
	if c.flags.tui {
		return c.runTUI(ctx, inv)
	}

	fmt.Fprintln(c.out, "> "+inv.Command.Line)
	exec, err := c.svc.Start(ctx, inv)
	if err != nil {
		app.Report(c.notifier, err)
		return reported(err)
	}
	result, err := c.svc.Finish(ctx, inv, exec)
	c.printProblems(result)
	app.Report(c.notifier, err)
	return reported(err)
}

// runTUI shows build output in a full screen view. Closing the view
// cancels a build that is still running.
func (c *cli) runTUI(ctx context.Context, inv *app.Invocation) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}

	c.notifier.hold()
	defer c.notifier.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec, err := c.svc.Start(ctx, inv)
	if err != nil {
		screen.Fini()
		app.Report(c.notifier, err)
		return reported(err)
	}

	view := ui.NewOutputView(screen, c.svc.Executor().Sink(), fmt.Sprintf("%s %s", inv.Mode, inv.Target))
	view.SetStatus("running")

	type outcome struct {
		result *app.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := c.svc.Finish(ctx, inv, exec)
		switch app.Classify(err) {
		case app.KindNone:
			view.SetStatus("succeeded, press q to close")
		case app.KindCancelled:
			view.SetStatus("cancelled")
		default:
			view.SetStatus(fmt.Sprintf("failed: %v", err))
		}
		done <- outcome{result, err}
	}()

	view.Run(ctx, 100*time.Millisecond)
	cancel()
	out := <-done
	screen.Fini()

	c.printProblems(out.result)
	app.Report(c.notifier, out.err)
	return reported(out.err)
}

// printProblems lists the problems matched in the build output.
func (c *cli) printProblems(result *app.Result) {
	if result == nil || result.Execution == nil {
		return
	}
	problems := result.Execution.ProblemList()
	if len(problems) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n%d problem(s):\n", len(problems))
	for _, p := range problems {
		fmt.Fprintln(c.out, "  "+p.String())
	}
}

func (c *cli) engineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "engine",
		Short: "Print the engine root for the project in scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := c.svc.Locate(cmd.Context(), c.location(), false)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, ws.EngineRoot)
			c.logger.WithField("source", ws.EngineSource).Debug("engine root resolved")
			return nil
		},
	}
}

func (c *cli) targetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the build targets in scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := c.svc.DiscoverTargets(cmd.Context(), c.location())
			if err != nil {
				return err
			}
			for _, t := range result.Targets {
				fmt.Fprintln(c.out, t)
			}
			return nil
		},
	}
}

func (c *cli) commandCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "command [build|headers|compiledb] [-- extra args]",
		Short: "Print the build tool command line without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := command.ModeBuild
			if n := cmd.ArgsLenAtDash(); len(args) > 0 && n != 0 {
				var err error
				if mode, err = command.ParseMode(args[0]); err != nil {
					return err
				}
				args = args[1:]
			}
			inv, err := c.svc.Prepare(cmd.Context(), c.request(mode, args))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, inv.Command.Line)
			return nil
		},
	}
}

func (c *cli) clangdCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clangd",
		Short: "Write the .clangd file for the project in scope",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := c.svc.WriteClangd(c.flags.dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, path)
			return nil
		},
	}
}

// watchCommand regenerates the compile database whenever target or
// module rules change.
func (c *cli) watchCommand() *cobra.Command {
	var initial bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate compile_commands.json when build rules change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			proj, err := project.Find(firstNonEmpty(c.flags.dir, "."))
			if err != nil {
				return app.NewOperationError("find project", c.flags.dir, app.ErrNoProject)
			}

			regenerate := func() {
				if _, err := c.svc.Run(ctx, c.request(command.ModeCompileDB, nil)); err != nil {
					c.logger.WithError(err).Debug("compile database not regenerated")
				}
			}

			opts := watch.DefaultOptions()
			if len(c.cfg.Watch.Patterns) > 0 {
				opts.Patterns = c.cfg.Watch.Patterns
			}
			opts.Debounce = time.Duration(c.cfg.Watch.DebounceMS) * time.Millisecond
			opts.Logger = c.logger
			w, err := watch.New(opts, func(paths []string) {
				c.logger.WithField("paths", paths).Info("build rules changed")
				regenerate()
			})
			if err != nil {
				return err
			}
			if err := w.AddTree(proj.Dir); err != nil {
				return err
			}

			if initial {
				regenerate()
			}
			c.logger.WithField("dirs", len(w.Dirs())).Infof("watching %s", proj.Dir)
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", false, "generate once before watching")
	return cmd
}

// luaCommand runs a script against the ue module and delivers its
// callbacks until no build is running.
func (c *cli) luaCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "lua <script>",
		Short: "Run a Lua script with the ue module loaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := uelua.NewPlugin(ctx, uelua.Options{
				Config:           c.cfg,
				Executor:         task.NewExecutor(task.DefaultExecutorConfig(), task.WithLogger(c.logger)),
				Logger:           c.logger,
				ExecutionTimeout: timeout,
			})
			defer p.Close()

			script, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := p.DoFile(script); err != nil {
				return err
			}
			return pumpUntilIdle(ctx, p, c.logger.WithField("script", script).Warn)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "limit for each script run (0 disables it)")
	return cmd
}

// pumpUntilIdle delivers plugin callbacks until no build is running and
// nothing is queued.
func pumpUntilIdle(ctx context.Context, p *uelua.Plugin, warn func(...any)) error {
	for !p.Idle() {
		wctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		_, err := p.Wait(wctx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			warn(err)
		}
	}
	return nil
}
