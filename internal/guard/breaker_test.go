package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterMaxEventsWithinWindow(t *testing.T) {
	b := NewBreaker(3, 5*time.Minute)
	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	require.False(t, b.RecordEvent(base))
	require.False(t, b.RecordEvent(base.Add(1*time.Minute)))
	require.False(t, b.RecordEvent(base.Add(2*time.Minute)))
	require.True(t, b.RecordEvent(base.Add(3*time.Minute)), "4th event within the window should trip the breaker")
	require.True(t, b.Tripped())
}

func TestBreaker_EventsOutsideWindowDoNotCount(t *testing.T) {
	b := NewBreaker(3, 5*time.Minute)
	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	require.False(t, b.RecordEvent(base))
	require.False(t, b.RecordEvent(base.Add(1*time.Minute)))
	require.False(t, b.RecordEvent(base.Add(2*time.Minute)))
	// At minute 10 the events at minutes 0, 1, and 2 have all aged out of
	// the 5-minute window, so only this one is live — not tripped.
	require.False(t, b.RecordEvent(base.Add(10*time.Minute)))
	require.False(t, b.Tripped())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	require.False(t, b.RecordEvent(base))
	require.True(t, b.RecordEvent(base.Add(time.Second)))
	require.True(t, b.Tripped())

	b.Reset()
	require.False(t, b.Tripped())
	require.Equal(t, 0, b.EventCount(base.Add(time.Second)))
}

func TestNewBreaker_DefaultsOnInvalidInput(t *testing.T) {
	b := NewBreaker(0, 0)
	require.Equal(t, DefaultBreakerMaxEvents, b.maxEvents)
	require.Equal(t, DefaultBreakerWindow, b.window)
}
