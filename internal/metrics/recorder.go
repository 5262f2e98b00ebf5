package metrics

import "time"

// OutcomeLabel enumerates build outcome categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess OutcomeLabel = "success"
	OutcomeFailure OutcomeLabel = "failure"
)

// Recorder defines observability hooks for the watch loop. Implementations
// may forward to Prometheus or stay silent; all methods must be safe on the
// NoopRecorder so injection is optional.
type Recorder interface {
	ObserveBuildDuration(pkg string, d time.Duration)
	IncBuildOutcome(pkg string, outcome OutcomeLabel)
	IncWatchEvent(op string)
	IncRerunQueued(pkg string)
	SetInFlight(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string, OutcomeLabel)       {}
func (NoopRecorder) IncWatchEvent(string)                       {}
func (NoopRecorder) IncRerunQueued(string)                      {}
func (NoopRecorder) SetInFlight(int)                            {}
