// Command uebuild builds Unreal Engine projects and generates clangd
// support files from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/uebuild/internal/app"
)

// Version information (set by build flags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newCLI(stdin, stdout, stderr).rootCommand()
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

// exitCode maps a command error to an exit code. Cancellation is not a
// failure.
func exitCode(err error, stderr io.Writer) int {
	switch app.Classify(err) {
	case app.KindNone, app.KindCancelled:
		return 0
	}
	var reported *reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

// reportedError marks an error the notifier has already shown.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}
