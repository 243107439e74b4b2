package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrQueueClosed is returned when posting to a closed event queue.
	ErrQueueClosed = errors.New("lua event queue is closed")
)
