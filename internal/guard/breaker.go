package guard

import (
	"sync"
	"time"
)

// DefaultBreakerMaxEvents and DefaultBreakerWindow are the breaker
// defaults: more than three hard-fired events within five minutes trips
// the breaker.
const (
	DefaultBreakerMaxEvents = 3
	DefaultBreakerWindow    = 5 * time.Minute
)

// Breaker rate-limits automatic hard-fired prunes. It is a plain sliding
// window counter; no example repo in the pack implements a circuit
// breaker, so this is a standard-library-only type (see DESIGN.md).
type Breaker struct {
	mu        sync.Mutex
	maxEvents int
	window    time.Duration
	events    []time.Time
	tripped   bool
}

// NewBreaker constructs a Breaker with the given limits. A non-positive
// maxEvents or window falls back to the package defaults.
func NewBreaker(maxEvents int, window time.Duration) *Breaker {
	if maxEvents <= 0 {
		maxEvents = DefaultBreakerMaxEvents
	}
	if window <= 0 {
		window = DefaultBreakerWindow
	}
	return &Breaker{maxEvents: maxEvents, window: window}
}

// RecordEvent logs one HARD_FIRED event at now, evicting events older than
// the window, and reports whether the breaker is now tripped (more than
// maxEvents remain within the window). Once tripped, the breaker stays
// tripped until Reset is called — it does not self-heal mid-window, it
// only stops on an explicit operator action or a fresh guard invocation.
func (b *Breaker) RecordEvent(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, now)
	b.events = evictOlderThan(b.events, now, b.window)

	if len(b.events) > b.maxEvents {
		b.tripped = true
	}
	return b.tripped
}

// Tripped reports the breaker's current state without recording an event.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Reset clears the breaker's tripped state and event history. Used when a
// fresh `guard` invocation starts after a prior process exited — the
// breaker's window is per-process, not persisted.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	b.tripped = false
}

// EventCount reports how many events are currently counted within the
// window as of now, without mutating state.
func (b *Breaker) EventCount(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(evictOlderThan(append([]time.Time{}, b.events...), now, b.window))
}

func evictOlderThan(events []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
