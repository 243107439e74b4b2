package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Event is a Lua operation posted from another goroutine.
type Event func(L *lua.LState) error

// EventQueue marshals events onto the goroutine that owns the LState.
// Any goroutine may Post; only the owner calls Pump or Wait.
//
// Usage:
//
//	q := NewEventQueue()
//	go func() { q.Post(func(L *lua.LState) error { ... }) }()
//	n, err := q.Wait(ctx, L) // on the Lua goroutine
type EventQueue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool

	// ready has capacity one and signals that pending is non-empty.
	ready chan struct{}
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{ready: make(chan struct{}, 1)}
}

// Post queues an event. It never blocks.
func (q *EventQueue) Post(ev Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pump runs every pending event in posting order and returns how many
// ran. Event errors are joined; a failing event does not stop the rest.
func (q *EventQueue) Pump(L *lua.LState) (int, error) {
	q.mu.Lock()
	events := q.pending
	q.pending = nil
	q.mu.Unlock()

	var errs []error
	for _, ev := range events {
		if err := runEvent(L, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return len(events), errors.Join(errs...)
}

// Await blocks until at least one event is pending or ctx is done.
func (q *EventQueue) Await(ctx context.Context) error {
	for {
		if q.Len() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.ready:
		}
	}
}

// Wait blocks until at least one event is pending or ctx is done, then
// pumps.
func (q *EventQueue) Wait(ctx context.Context, L *lua.LState) (int, error) {
	if err := q.Await(ctx); err != nil {
		return 0, err
	}
	return q.Pump(L)
}

// runEvent executes a single event with panic recovery.
func runEvent(L *lua.LState, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("lua panic: %v", v)
			}
		}
	}()
	return ev(L)
}

// Close rejects further posts. Pending events can still be pumped.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// IsClosed returns true if the queue has been closed.
func (q *EventQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
