package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mdkit/internal/builder"
	"git.home.luguber.info/inful/mdkit/internal/config"
	"git.home.luguber.info/inful/mdkit/internal/events"
	"git.home.luguber.info/inful/mdkit/internal/registry"
)

func testRegistry(t *testing.T, names ...string) *registry.Registry {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}
	reg, err := registry.FromConfig(&config.Config{PackagesRoot: root})
	require.NoError(t, err)
	return reg
}

// gatedExecutor blocks each build between started and release so tests can
// observe the scheduler mid-build.
type gatedExecutor struct {
	started chan string
	release chan struct{}
	calls   atomic.Int32
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{
		started: make(chan string, 16),
		release: make(chan struct{}, 16),
	}
}

func (g *gatedExecutor) Build(_ context.Context, pkg registry.Package) error {
	g.calls.Add(1)
	g.started <- pkg.Name
	<-g.release
	return nil
}

func (g *gatedExecutor) awaitStart(t *testing.T) string {
	t.Helper()
	select {
	case name := <-g.started:
		return name
	case <-time.After(2 * time.Second):
		t.Fatal("no build started")
		return ""
	}
}

func drain(t *testing.T, sched *BuildScheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sched.Drain(ctx))
}

func TestSchedulerRunsRequestedBuild(t *testing.T) {
	reg := testRegistry(t, "docs")
	var built atomic.Int32
	exec := builder.Func(func(_ context.Context, pkg registry.Package) error {
		require.Equal(t, "docs", pkg.Name)
		built.Add(1)
		return nil
	})
	sched := NewBuildScheduler(exec, reg, nil, nil, nil, nil)

	sched.Request(t.Context(), "docs", "change")
	drain(t, sched)

	require.EqualValues(t, 1, built.Load())
	require.False(t, sched.Building("docs"))
}

func TestSchedulerIgnoresUnknownPackage(t *testing.T) {
	reg := testRegistry(t, "docs")
	exec := builder.Func(func(context.Context, registry.Package) error {
		t.Fatal("no build should run")
		return nil
	})
	sched := NewBuildScheduler(exec, reg, nil, nil, nil, nil)

	sched.Request(t.Context(), "nope", "change")
	drain(t, sched)
	require.Zero(t, sched.InFlightCount())
}

func TestSchedulerNeverRunsSamePackageConcurrently(t *testing.T) {
	reg := testRegistry(t, "docs")
	exec := newGatedExecutor()
	sched := NewBuildScheduler(exec, reg, nil, nil, nil, nil)
	ctx := t.Context()

	sched.Request(ctx, "docs", "change")
	exec.awaitStart(t)
	require.True(t, sched.Building("docs"))

	// A burst of requests during the running build must not start a
	// second one.
	for range 5 {
		sched.Request(ctx, "docs", "change")
	}
	require.Equal(t, 1, sched.InFlightCount())
	require.EqualValues(t, 1, exec.calls.Load())

	exec.release <- struct{}{}
	exec.awaitStart(t)
	exec.release <- struct{}{}
	drain(t, sched)

	// The whole burst coalesced into exactly one follow-up build.
	require.EqualValues(t, 2, exec.calls.Load())
}

func TestSchedulerQueuedRerunUsesRerunCause(t *testing.T) {
	reg := testRegistry(t, "docs")
	exec := newGatedExecutor()
	bus := events.NewBus()
	defer bus.Close()
	startedEvents, cancel := events.Subscribe[events.BuildStarted](bus, 16)
	defer cancel()

	sched := NewBuildScheduler(exec, reg, bus, nil, nil, nil)
	ctx := t.Context()

	sched.Request(ctx, "docs", "initial")
	exec.awaitStart(t)
	sched.Request(ctx, "docs", "change")
	exec.release <- struct{}{}
	exec.awaitStart(t)
	exec.release <- struct{}{}
	drain(t, sched)

	first := <-startedEvents
	second := <-startedEvents
	require.Equal(t, "initial", first.Cause)
	require.Equal(t, "rerun", second.Cause)
	require.NotEqual(t, first.JobID, second.JobID)
}

func TestSchedulerPackagesBuildIndependently(t *testing.T) {
	reg := testRegistry(t, "alpha", "beta")
	exec := newGatedExecutor()
	sched := NewBuildScheduler(exec, reg, nil, nil, nil, nil)
	ctx := t.Context()

	sched.Request(ctx, "alpha", "change")
	sched.Request(ctx, "beta", "change")

	// Both builds must be in flight at the same time.
	got := map[string]bool{exec.awaitStart(t): true, exec.awaitStart(t): true}
	require.True(t, got["alpha"] && got["beta"])
	require.Equal(t, 2, sched.InFlightCount())

	exec.release <- struct{}{}
	exec.release <- struct{}{}
	drain(t, sched)
}

func TestSchedulerContainsBuildFailures(t *testing.T) {
	reg := testRegistry(t, "alpha", "beta")
	var betaBuilt atomic.Bool
	exec := builder.Func(func(_ context.Context, pkg registry.Package) error {
		if pkg.Name == "alpha" {
			return errors.New("compile error")
		}
		betaBuilt.Store(true)
		return nil
	})
	bus := events.NewBus()
	defer bus.Close()
	finished, cancel := events.Subscribe[events.BuildFinished](bus, 16)
	defer cancel()

	sched := NewBuildScheduler(exec, reg, bus, nil, nil, nil)
	ctx := t.Context()

	sched.Request(ctx, "alpha", "change")
	drain(t, sched)
	sched.Request(ctx, "beta", "change")
	drain(t, sched)

	require.True(t, betaBuilt.Load())

	evt := <-finished
	require.Equal(t, "alpha", evt.Package)
	require.Contains(t, evt.Err, "compile error")
	evt = <-finished
	require.Equal(t, "beta", evt.Package)
	require.Empty(t, evt.Err)
}

func TestSchedulerFailedBuildStillRunsQueuedRerun(t *testing.T) {
	reg := testRegistry(t, "docs")
	exec := newGatedExecutor()
	failing := builder.Func(func(ctx context.Context, pkg registry.Package) error {
		_ = exec.Build(ctx, pkg)
		return errors.New("compile error")
	})
	sched := NewBuildScheduler(failing, reg, nil, nil, nil, nil)
	ctx := t.Context()

	sched.Request(ctx, "docs", "change")
	exec.awaitStart(t)
	sched.Request(ctx, "docs", "change")
	exec.release <- struct{}{}

	// The rerun runs even though the build it queued behind failed.
	exec.awaitStart(t)
	exec.release <- struct{}{}
	drain(t, sched)
	require.EqualValues(t, 2, exec.calls.Load())
}

func TestSchedulerDrainTimesOutOnHungBuild(t *testing.T) {
	reg := testRegistry(t, "docs")
	exec := newGatedExecutor()
	sched := NewBuildScheduler(exec, reg, nil, nil, nil, nil)

	sched.Request(t.Context(), "docs", "change")
	exec.awaitStart(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sched.Drain(ctx), context.DeadlineExceeded)

	exec.release <- struct{}{}
	drain(t, sched)
}
