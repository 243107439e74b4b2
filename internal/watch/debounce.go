package watch

import (
	"sync"
	"time"
)

// Debouncer groups rapid successive calls into a single call after a
// quiet period. The callback never runs concurrently with itself from the
// same debouncer.
type Debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	pending  bool
	seq      uint64 // sequence number to detect stale callbacks
	callback func()
	running  sync.Mutex
}

// NewDebouncer creates a debouncer that invokes callback once no call
// has been made for delay.
func NewDebouncer(delay time.Duration, callback func()) *Debouncer {
	return &Debouncer{
		delay:    delay,
		callback: callback,
	}
}

// Call schedules the callback after the debounce delay, restarting the
// delay when one is already pending.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.seq++
	currentSeq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.pending && d.seq == currentSeq && d.callback != nil {
			d.pending = false
			d.mu.Unlock()
			d.invoke()
		} else {
			d.mu.Unlock()
		}
	})
}

// Flush runs a pending callback now.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++

	if d.pending && d.callback != nil {
		d.pending = false
		d.mu.Unlock()
		d.invoke()
	} else {
		d.mu.Unlock()
	}
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// IsPending returns true if there's a pending debounced call.
func (d *Debouncer) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) invoke() {
	d.running.Lock()
	defer d.running.Unlock()
	d.callback()
}
