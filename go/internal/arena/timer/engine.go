package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDriftTolerance is how far (in seconds) the server value may differ from the local
// countdown before the engine snaps to it.
const DefaultDriftTolerance = 2

// State is a read-only copy of the engine for display.
type State struct {
	Value    int       `json:"value"`
	LastSync time.Time `json:"last_sync"`
	Running  bool      `json:"running"`
}

// Engine produces a smooth per-second countdown independent of network latency.
//
// The displayed value is derived from the clock: base - whole seconds since origin,
// clamped at zero. A one-shot timer re-armed every second only drives the tick callback,
// so a late or skipped callback never changes what Value returns.
type Engine struct {
	clock     clockwork.Clock
	tolerance int
	onTick    func(value int)

	mu       sync.Mutex
	running  bool
	base     int
	origin   time.Time
	lastSync time.Time
	frozen   int
	epoch    uint64
	tick     clockwork.Timer
}

// New creates an engine. onTick may be nil; it is called outside the engine lock.
func New(clock clockwork.Clock, driftTolerance int, onTick func(value int)) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if driftTolerance < 0 {
		driftTolerance = DefaultDriftTolerance
	}
	return &Engine{
		clock:     clock,
		tolerance: driftTolerance,
		onTick:    onTick,
	}
}

// Start cancels any running countdown and counts down from initialSeconds.
func (e *Engine) Start(initialSeconds int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restartLocked(initialSeconds, e.clock.Now())
}

// Reconcile compares the server's remaining seconds with the local countdown. On drift
// larger than the tolerance the local value snaps to the server value and the countdown
// restarts from there; otherwise only the sync anchor moves. Returns true on a snap.
func (e *Engine) Reconcile(serverSeconds int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if serverSeconds < 0 {
		serverSeconds = 0
	}
	now := e.clock.Now()
	expected := e.valueLocked(now)
	if abs(serverSeconds-expected) > e.tolerance {
		e.restartLocked(serverSeconds, now)
		return true
	}
	e.lastSync = now
	return false
}

// Stop halts the countdown and freezes the current value.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.frozen = e.valueLocked(e.clock.Now())
	}
	e.running = false
	e.cancelLocked()
}

// Value returns the current countdown value, never negative.
func (e *Engine) Value() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valueLocked(e.clock.Now())
}

// State returns a copy of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	return State{
		Value:    e.valueLocked(now),
		LastSync: e.lastSync,
		Running:  e.running && e.valueLocked(now) > 0,
	}
}

func (e *Engine) restartLocked(seconds int, now time.Time) {
	e.cancelLocked()
	if seconds < 0 {
		seconds = 0
	}
	e.base = seconds
	e.frozen = seconds
	e.origin = now
	e.lastSync = now
	e.running = seconds > 0
	if e.running {
		e.scheduleLocked(now)
	}
}

func (e *Engine) valueLocked(now time.Time) int {
	if !e.running {
		return e.frozen
	}
	v := e.base - int(now.Sub(e.origin)/time.Second)
	if v < 0 {
		return 0
	}
	return v
}

// scheduleLocked arms the timer for the next whole second after origin.
func (e *Engine) scheduleLocked(now time.Time) {
	elapsed := now.Sub(e.origin)
	next := (elapsed/time.Second + 1) * time.Second
	epoch := e.epoch
	e.tick = e.clock.AfterFunc(next-elapsed, func() { e.fire(epoch) })
}

// cancelLocked stops the pending tick and invalidates any callback already in flight.
func (e *Engine) cancelLocked() {
	e.epoch++
	if e.tick != nil {
		e.tick.Stop()
		e.tick = nil
	}
}

func (e *Engine) fire(epoch uint64) {
	e.mu.Lock()
	if epoch != e.epoch || !e.running {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	v := e.valueLocked(now)
	if v == 0 {
		e.running = false
		e.frozen = 0
		e.tick = nil
	} else {
		e.scheduleLocked(now)
	}
	cb := e.onTick
	e.mu.Unlock()

	if cb != nil {
		cb(v)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
