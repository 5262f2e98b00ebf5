package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPackage    = "package"
	KeyJobID      = "job_id"
	KeyPath       = "path"
	KeyOp         = "op"
	KeyOutcome    = "outcome"
	KeyCause      = "cause"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Granular helpers returning slog.Attr so callers can compose freely.
func Package(name string) slog.Attr   { return slog.String(KeyPackage, name) }
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Op(op string) slog.Attr          { return slog.String(KeyOp, op) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Cause(c string) slog.Attr        { return slog.String(KeyCause, c) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
