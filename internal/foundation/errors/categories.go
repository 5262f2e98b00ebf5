package errors

import "maps"

// ErrorCategory is the broad classification used for routing and reporting.
type ErrorCategory string

const (
	// User-facing configuration and input problems.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// Build and processing problems.
	CategoryBuild      ErrorCategory = "build"
	CategoryPreview    ErrorCategory = "preview"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryEventStore ErrorCategory = "eventstore"

	// Runtime and infrastructure problems.
	CategoryWatch    ErrorCategory = "watch"
	CategoryNotify   ErrorCategory = "notify"
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how much of the process an error takes down.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // setup failure, process must exit
	SeverityError   ErrorSeverity = "error"   // fails the current operation only
	SeverityWarning ErrorSeverity = "warning" // degraded, keep going
)

// ErrorContext carries structured key/value context alongside an error.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c[key]
	return v, ok
}

// Merge combines two contexts, with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	out := make(ErrorContext, len(c)+len(other))
	maps.Copy(out, c)
	maps.Copy(out, other)
	return out
}
