// Package debounce coalesces bursts of calls into one trailing call.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer runs the most recently triggered function once the interval has
// elapsed without another trigger. At most one call is pending at a time.
type Debouncer struct {
	clock    clockwork.Clock
	interval time.Duration

	mu      sync.Mutex
	timer   clockwork.Timer
	pending uint64
}

// New returns a Debouncer. A nil clock means the real clock.
func New(clock clockwork.Clock, interval time.Duration) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{clock: clock, interval: interval}
}

// Trigger schedules fn, replacing any call still waiting.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending++
	seq := d.pending
	d.timer = d.clock.AfterFunc(d.interval, func() {
		d.mu.Lock()
		if seq != d.pending || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending++
}

// Pending reports whether a call is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
