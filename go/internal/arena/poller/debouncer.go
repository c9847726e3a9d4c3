package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer rate-limits calls to fn to one per window.
//
// A call made after the window has elapsed since the last run executes immediately. Calls
// made inside the window are coalesced into one deferred run scheduled for the window
// boundary, so the latest intent is never lost. A forced call always executes immediately,
// cancels the pending deferred run and restarts the window.
type Debouncer struct {
	base   context.Context
	clock  clockwork.Clock
	window time.Duration
	fn     func(ctx context.Context)

	mu      sync.Mutex
	last    time.Time
	ran     bool
	pending clockwork.Timer
	epoch   uint64
}

// NewDebouncer creates a debouncer. Deferred runs receive base as their context.
func NewDebouncer(base context.Context, clock clockwork.Clock, window time.Duration, fn func(ctx context.Context)) *Debouncer {
	if base == nil {
		base = context.Background()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{
		base:   base,
		clock:  clock,
		window: window,
		fn:     fn,
	}
}

// Trigger requests a run. Immediate runs happen on the caller's goroutine with ctx.
// Returns true when fn ran before Trigger returned.
func (d *Debouncer) Trigger(ctx context.Context, force bool) bool {
	d.mu.Lock()
	now := d.clock.Now()

	if force || !d.ran || now.Sub(d.last) >= d.window {
		d.cancelLocked()
		d.last = now
		d.ran = true
		d.mu.Unlock()

		d.fn(ctx)
		return true
	}

	if d.pending == nil {
		delay := d.window - now.Sub(d.last)
		epoch := d.epoch
		d.pending = d.clock.AfterFunc(delay, func() { d.fire(epoch) })
	}
	d.mu.Unlock()
	return false
}

// Pending reports whether a deferred run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels the pending deferred run, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	d.epoch++
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}

func (d *Debouncer) fire(epoch uint64) {
	d.mu.Lock()
	if epoch != d.epoch {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.last = d.clock.Now()
	d.ran = true
	d.mu.Unlock()

	if d.base.Err() != nil {
		return
	}
	d.fn(d.base)
}
