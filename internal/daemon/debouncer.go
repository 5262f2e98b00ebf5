package daemon

import (
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
)

// Debouncer delays a per-key action until a quiet window has elapsed since
// the last request for that key, collapsing bursts of filesystem events
// into a single rebuild trigger.
//
// Each key owns at most one pending timer; a new Schedule call before the
// window elapses replaces it, so the action fires exactly once per burst.
// There is no cross-key ordering guarantee.
type Debouncer struct {
	window time.Duration
	fire   func(key string)

	mu      sync.Mutex
	timers  map[string]*timerEntry
	stopped bool
}

// timerEntry carries a generation so an expired timer that lost the race
// against a concurrent Schedule can tell it has been superseded.
type timerEntry struct {
	gen   uint64
	timer *time.Timer
}

func NewDebouncer(window time.Duration, fire func(key string)) (*Debouncer, error) {
	if window <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if fire == nil {
		return nil, ferrors.ValidationError("fire callback is required").Build()
	}
	return &Debouncer{
		window: window,
		fire:   fire,
		timers: make(map[string]*timerEntry),
	}, nil
}

// Schedule arms the timer for key, replacing any pending one.
func (d *Debouncer) Schedule(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	gen := uint64(1)
	if e, ok := d.timers[key]; ok {
		e.timer.Stop()
		gen = e.gen + 1
	}

	entry := &timerEntry{gen: gen}
	entry.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		// An expired timer may have been superseded while it waited for
		// the lock; only the current generation fires.
		cur, ok := d.timers[key]
		if d.stopped || !ok || cur.gen != gen {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()

		d.fire(key)
	})
	d.timers[key] = entry
}

// Stop cancels every pending timer. Actions not yet fired never fire;
// further Schedule calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, e := range d.timers {
		e.timer.Stop()
		delete(d.timers, key)
	}
}

// PendingCount reports how many keys currently have an armed timer.
// Intended for tests and diagnostics.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
