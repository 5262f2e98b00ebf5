package events

import "time"

// ChangeDetected is emitted by the watcher adapter once a filesystem event
// has been resolved to a tracked package, before debouncing.
type ChangeDetected struct {
	Package    string
	Path       string
	Op         string // "create", "write", "remove", "rename"
	DetectedAt time.Time
}

// BuildStarted is emitted when the scheduler hands a package to the executor.
type BuildStarted struct {
	JobID     string
	Package   string
	Cause     string // "initial", "change", "rerun", "scheduled", "manual"
	StartedAt time.Time
}

// BuildFinished is emitted when an executor attempt completes, success or
// failure. Err is empty on success.
type BuildFinished struct {
	JobID      string
	Package    string
	Cause      string
	Err        string
	Duration   time.Duration
	FinishedAt time.Time
}

// RerunQueued is emitted when a request arrives for a package that is
// already building and a follow-up build is queued.
type RerunQueued struct {
	Package  string
	QueuedAt time.Time
}
