// Package scheduler provides the "replace pending timer" primitive used to
// coalesce bursts of work into a single run.
package scheduler

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/liusync/internal/clock"
)

// Debouncer runs fn once after the window has elapsed since the last Trigger.
// Each Trigger replaces the pending timer. Fire runs fn immediately and
// cancels anything pending.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration
	fn     func()

	mu      sync.Mutex
	pending clock.Timer
	gen     uint64
}

func NewDebouncer(c clock.Clock, window time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: c, window: window, fn: fn}
}

// Trigger (re)starts the window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = d.clock.AfterFunc(d.window, func() { d.run(gen) })
}

// TriggerAfter schedules a run after delay unless an earlier run is already
// pending. Used for retries, which must not push an imminent flush back.
func (d *Debouncer) TriggerAfter(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		return
	}
	d.gen++
	gen := d.gen
	d.pending = d.clock.AfterFunc(delay, func() { d.run(gen) })
}

// Fire cancels the pending timer and runs fn now.
func (d *Debouncer) Fire() {
	d.mu.Lock()
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.gen++
	d.mu.Unlock()

	d.fn()
}

// Stop cancels the pending run, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.gen++
}

func (d *Debouncer) run(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	d.fn()
}
