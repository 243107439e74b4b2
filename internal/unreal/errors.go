package unreal

import "errors"

// Error taxonomy shared by every invocation step.
var (
	// ErrNotFound reports a missing project file, engine root or target.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput reports a user-supplied value that failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled reports that the user dismissed a prompt.
	ErrCancelled = errors.New("cancelled by user")
)
