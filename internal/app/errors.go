package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/uebuild/internal/integration/task"
	"github.com/dshills/uebuild/internal/unreal"
)

// Orchestration errors.
var (
	// ErrNoProject indicates a project-scope invocation outside any project.
	ErrNoProject = fmt.Errorf("%w: no .uproject in scope", unreal.ErrNotFound)

	// ErrEngineNotFound indicates every link of the engine chain failed.
	ErrEngineNotFound = fmt.Errorf("%w: Unreal Engine root", unreal.ErrNotFound)
)

// OperationError represents a failure of one invocation step.
type OperationError struct {
	Op      string // Step name (e.g., "resolve engine", "discover targets")
	Target  string // What the step operated on (e.g., a directory)
	Context string // Additional context
	Err     error  // Underlying error
}

// NewOperationError creates a new OperationError.
func NewOperationError(op, target string, err error) *OperationError {
	return &OperationError{
		Op:     op,
		Target: target,
		Err:    err,
	}
}

// WithContext adds context to the error.
// Safe to call on nil receiver - returns nil.
func (e *OperationError) WithContext(ctx string) *OperationError {
	if e == nil {
		return nil
	}
	e.Context = ctx
	return e
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Op
	if e.Target != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Target)
	}
	if e.Context != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Context)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind is the class of an invocation failure.
type Kind int

const (
	KindNone Kind = iota
	KindCancelled
	KindNotFound
	KindInvalidInput
	KindSubprocess
	KindInternal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCancelled:
		return "cancelled"
	case KindNotFound:
		return "not-found"
	case KindInvalidInput:
		return "invalid-input"
	case KindSubprocess:
		return "subprocess-failure"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) Kind {
	var exitErr *task.ExitError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, unreal.ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.As(err, &exitErr):
		return KindSubprocess
	case errors.Is(err, unreal.ErrNotFound):
		return KindNotFound
	case errors.Is(err, unreal.ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// ExitCode returns the subprocess exit code carried by err, or -1.
func ExitCode(err error) int {
	var exitErr *task.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
