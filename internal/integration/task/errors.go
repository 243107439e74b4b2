package task

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCommand is returned for a task without a command.
	ErrEmptyCommand = errors.New("task: empty command")

	// ErrExecutionNotFound is returned for an unknown execution ID.
	ErrExecutionNotFound = errors.New("task: execution not found")
)

// ExitError reports a process that exited with a non-zero code.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// Unwrap returns the underlying wait error.
func (e *ExitError) Unwrap() error {
	return e.Err
}
