package diagnostics

import (
	"context"
	"fmt"

	"github.com/dshills/uebuild/internal/integration/task"
)

// Refresher reloads the editor's diagnostics client.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

// Refresh calls f.
func (f RefreshFunc) Refresh(ctx context.Context) error {
	return f(ctx)
}

// NopRefresher does nothing.
type NopRefresher struct{}

// Refresh implements Refresher.
func (NopRefresher) Refresh(context.Context) error { return nil }

// CommandRefresher runs a shell command, for example one that restarts
// clangd through the editor's remote API.
type CommandRefresher struct {
	Executor *task.Executor
	Command  string
	Dir      string
}

// Refresh runs the command and waits for it.
func (r *CommandRefresher) Refresh(ctx context.Context) error {
	if r.Command == "" {
		return nil
	}
	exec, err := r.Executor.Execute(ctx, &task.Task{
		Name:    "refresh-diagnostics",
		Type:    task.TaskTypeShell,
		Command: r.Command,
		Cwd:     r.Dir,
	})
	if err != nil {
		return fmt.Errorf("refresh diagnostics: %w", err)
	}
	if err := exec.Wait(ctx); err != nil {
		return fmt.Errorf("refresh diagnostics: %w", err)
	}
	return nil
}
