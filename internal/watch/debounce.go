package watch

import (
	"sync"
	"time"
)

// DefaultQuietWindow is the minimum spacing between two emitted change events.
const DefaultQuietWindow = 1500 * time.Millisecond

// Debouncer is a leading-edge filter: the first raw event emits immediately and
// every following event is suppressed until more than Window has passed since
// the last emission.
//
// With Trailing set, a suppressed event schedules one catch-up emission at the
// end of the current window so the last change of a burst is never lost.
type Debouncer struct {
	Window   time.Duration
	Trailing bool

	mu       sync.Mutex
	lastEmit time.Time
	emitted  bool
	pending  *time.Timer
	now      func() time.Time
}

// NewDebouncer returns a Debouncer with the given quiet window. A non-positive
// window selects DefaultQuietWindow.
func NewDebouncer(window time.Duration, trailing bool) *Debouncer {
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Debouncer{Window: window, Trailing: trailing}
}

func (d *Debouncer) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// Observe records a raw event at time at and reports whether it should be
// emitted. When it returns false and Trailing is set, flush is scheduled to run
// once at the end of the window (at most one flush is pending at a time).
func (d *Debouncer) Observe(at time.Time, flush func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.emitted || at.Sub(d.lastEmit) > d.Window {
		d.emitted = true
		d.lastEmit = at
		d.stopPendingLocked()
		return true
	}
	if d.Trailing && flush != nil && d.pending == nil {
		wait := d.lastEmit.Add(d.Window).Sub(at)
		if wait < 0 {
			wait = 0
		}
		d.pending = time.AfterFunc(wait+time.Millisecond, func() {
			d.mu.Lock()
			d.pending = nil
			d.emitted = true
			d.lastEmit = d.clock()
			d.mu.Unlock()
			flush()
		})
	}
	return false
}

// Stop cancels a pending trailing flush.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopPendingLocked()
	d.mu.Unlock()
}

func (d *Debouncer) stopPendingLocked() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
