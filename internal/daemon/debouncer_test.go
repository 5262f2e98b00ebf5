package daemon

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collectFires(t *testing.T, ch <-chan string, wait time.Duration) []string {
	t.Helper()
	deadline := time.After(wait)
	var fired []string
	for {
		select {
		case key := <-ch:
			fired = append(fired, key)
		case <-deadline:
			return fired
		}
	}
}

func TestNewDebouncerValidation(t *testing.T) {
	_, err := NewDebouncer(0, func(string) {})
	require.Error(t, err)

	_, err = NewDebouncer(time.Millisecond, nil)
	require.Error(t, err)
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	fired := make(chan string, 16)
	deb, err := NewDebouncer(30*time.Millisecond, func(key string) { fired <- key })
	require.NoError(t, err)
	defer deb.Stop()

	for range 10 {
		deb.Schedule("docs")
	}

	got := collectFires(t, fired, 300*time.Millisecond)
	require.Equal(t, []string{"docs"}, got)
}

func TestDebouncerReschedulePushesWindowOut(t *testing.T) {
	fired := make(chan string, 16)
	deb, err := NewDebouncer(60*time.Millisecond, func(key string) { fired <- key })
	require.NoError(t, err)
	defer deb.Stop()

	deb.Schedule("docs")
	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	deb.Schedule("docs")

	select {
	case <-fired:
		// The second Schedule must have replaced the first timer, so the
		// fire cannot land before a full window from that point.
		require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("debounced action never fired")
	}
	require.Empty(t, collectFires(t, fired, 100*time.Millisecond))
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	fired := make(chan string, 16)
	deb, err := NewDebouncer(30*time.Millisecond, func(key string) { fired <- key })
	require.NoError(t, err)
	defer deb.Stop()

	deb.Schedule("alpha")
	deb.Schedule("beta")
	deb.Schedule("alpha")

	got := collectFires(t, fired, 300*time.Millisecond)
	require.ElementsMatch(t, []string{"alpha", "beta"}, got)
}

func TestDebouncerSupersededTimerNeverFires(t *testing.T) {
	fired := make(chan string, 16)
	deb, err := NewDebouncer(50*time.Millisecond, func(key string) { fired <- key })
	require.NoError(t, err)
	defer deb.Stop()

	deb.Schedule("docs")

	// Hold the lock past expiry so the timer callback parks on it, then
	// replace the entry the way a racing Schedule would. The stale
	// callback must see the newer generation and give up.
	deb.mu.Lock()
	old := deb.timers["docs"]
	require.NotNil(t, old)
	time.Sleep(100 * time.Millisecond)
	old.timer.Stop()
	deb.timers["docs"] = &timerEntry{
		gen:   old.gen + 1,
		timer: time.AfterFunc(time.Hour, func() { fired <- "late" }),
	}
	deb.mu.Unlock()

	require.Empty(t, collectFires(t, fired, 100*time.Millisecond))
	require.Equal(t, 1, deb.PendingCount(), "replacement entry must survive the stale callback")
}

func TestDebouncerConcurrentScheduleStress(t *testing.T) {
	var fires atomic.Int64
	deb, err := NewDebouncer(time.Millisecond, func(string) { fires.Add(1) })
	require.NoError(t, err)

	const workers, rounds = 4, 100
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				deb.Schedule("docs")
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, deb.PendingCount())

	total := fires.Load()
	require.Positive(t, total)
	require.LessOrEqual(t, total, int64(workers*rounds))
	deb.Stop()
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	fired := make(chan string, 16)
	deb, err := NewDebouncer(50*time.Millisecond, func(key string) { fired <- key })
	require.NoError(t, err)

	deb.Schedule("docs")
	require.Equal(t, 1, deb.PendingCount())

	deb.Stop()
	require.Equal(t, 0, deb.PendingCount())

	deb.Schedule("docs")
	require.Equal(t, 0, deb.PendingCount())
	require.Empty(t, collectFires(t, fired, 150*time.Millisecond))
}
