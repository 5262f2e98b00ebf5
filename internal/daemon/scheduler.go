package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/mdkit/internal/builder"
	"git.home.luguber.info/inful/mdkit/internal/events"
	"git.home.luguber.info/inful/mdkit/internal/eventstore"
	"git.home.luguber.info/inful/mdkit/internal/logfields"
	"git.home.luguber.info/inful/mdkit/internal/metrics"
	"git.home.luguber.info/inful/mdkit/internal/registry"
)

// BuildScheduler drives the executor while guaranteeing that at most one
// build runs per package at any instant. A request arriving while that
// package is already building queues exactly one follow-up build; any
// further requests during the same busy window coalesce into it.
//
// Per package the scheduler cycles through three states: idle, building,
// and building with a rerun queued. Reruns restart the build loop directly
// without passing through idle, so the follow-up cannot be lost to a race.
type BuildScheduler struct {
	exec   builder.Executor
	reg    *registry.Registry
	bus    *events.Bus
	rec    metrics.Recorder
	store  eventstore.Store
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	pending  map[string]struct{}
	wg       sync.WaitGroup
}

// NewBuildScheduler wires the scheduler. bus and store may be nil; rec
// defaults to the noop recorder.
func NewBuildScheduler(exec builder.Executor, reg *registry.Registry, bus *events.Bus, rec metrics.Recorder, store eventstore.Store, logger *slog.Logger) *BuildScheduler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildScheduler{
		exec:     exec,
		reg:      reg,
		bus:      bus,
		rec:      rec,
		store:    store,
		logger:   logger.With("component", "scheduler"),
		inFlight: make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}
}

// Request asks for a build of the named package. It never blocks and never
// reports an error to the caller; build failures are logged and recorded,
// nothing more. Unknown package names are dropped with a warning.
func (s *BuildScheduler) Request(ctx context.Context, name, cause string) {
	pkg, ok := s.reg.Lookup(name)
	if !ok {
		s.logger.Warn("Build requested for unknown package", logfields.Package(name))
		return
	}

	s.mu.Lock()
	if _, busy := s.inFlight[name]; busy {
		if _, queued := s.pending[name]; !queued {
			s.pending[name] = struct{}{}
			s.rec.IncRerunQueued(name)
			s.logger.Info("Build queued behind running build", logfields.Package(name))
			if s.bus != nil {
				_ = s.bus.Publish(ctx, events.RerunQueued{Package: name, QueuedAt: time.Now()})
			}
		}
		s.mu.Unlock()
		return
	}
	s.inFlight[name] = struct{}{}
	s.rec.SetInFlight(len(s.inFlight))
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, pkg, cause)
}

// run executes builds for one package until no rerun is queued. The rerun
// check is an iterative loop, not recursion, so rapid-fire edits cannot
// grow the stack.
func (s *BuildScheduler) run(ctx context.Context, pkg registry.Package, cause string) {
	defer s.wg.Done()

	for {
		s.runOnce(ctx, pkg, cause)

		s.mu.Lock()
		if _, queued := s.pending[pkg.Name]; queued {
			delete(s.pending, pkg.Name)
			s.mu.Unlock()
			cause = "rerun"
			continue
		}
		delete(s.inFlight, pkg.Name)
		s.rec.SetInFlight(len(s.inFlight))
		s.mu.Unlock()
		return
	}
}

func (s *BuildScheduler) runOnce(ctx context.Context, pkg registry.Package, cause string) {
	jobID := uuid.NewString()
	started := time.Now()

	s.logger.Info("Build started",
		logfields.Package(pkg.Name), logfields.JobID(jobID), logfields.Cause(cause))
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.BuildStarted{
			JobID: jobID, Package: pkg.Name, Cause: cause, StartedAt: started,
		})
	}

	err := s.exec.Build(ctx, pkg)
	duration := time.Since(started)

	outcome := metrics.OutcomeSuccess
	errText := ""
	if err != nil {
		outcome = metrics.OutcomeFailure
		errText = err.Error()
		s.logger.Error("Build failed",
			logfields.Package(pkg.Name), logfields.JobID(jobID),
			logfields.DurationMS(float64(duration.Milliseconds())), logfields.Error(err))
	} else {
		s.logger.Info("Build succeeded",
			logfields.Package(pkg.Name), logfields.JobID(jobID),
			logfields.DurationMS(float64(duration.Milliseconds())))
	}

	s.rec.ObserveBuildDuration(pkg.Name, duration)
	s.rec.IncBuildOutcome(pkg.Name, outcome)

	if s.store != nil {
		rec := eventstore.Record{
			JobID: jobID, Package: pkg.Name, Cause: cause,
			Outcome: string(outcome), Error: errText,
			StartedAt: started, Duration: duration,
		}
		if err := s.store.Append(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn("Failed to persist build record",
				logfields.Package(pkg.Name), logfields.Error(err))
		}
	}

	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.BuildFinished{
			JobID: jobID, Package: pkg.Name, Cause: cause,
			Err: errText, Duration: duration, FinishedAt: time.Now(),
		})
	}
}

// Building reports whether a build for the named package is in flight.
func (s *BuildScheduler) Building(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[name]
	return ok
}

// InFlightCount returns the number of currently executing builds.
func (s *BuildScheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Drain waits for all in-flight builds (including queued reruns) to
// finish, or for ctx to expire. A hung build command makes this time out;
// nothing cancels a running build.
func (s *BuildScheduler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
