package errors

import "fmt"

// ClassifiedError is a structured error carrying category, severity and
// key/value context. All errors crossing package boundaries in mdkit are
// either a ClassifiedError or wrap one.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	message  string
	cause    error
	context  ErrorContext
}

func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity { return e.severity }
func (e *ClassifiedError) Message() string         { return e.message }
func (e *ClassifiedError) Context() ErrorContext   { return e.context }

// WithContext returns a copy of the error with an extra context value.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	out := *e
	out.context = e.context.Merge(ErrorContext{key: value})
	return &out
}

// Is matches two classified errors on category and message.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return e.category == other.category && e.message == other.message
}

// IsFatal reports whether the error should terminate the process.
func (e *ClassifiedError) IsFatal() bool { return e.severity == SeverityFatal }

// AsClassified extracts a ClassifiedError from err, if it is one.
func AsClassified(err error) (*ClassifiedError, bool) {
	ce, ok := err.(*ClassifiedError)
	return ce, ok
}

// GetCategory returns the category of err, or CategoryInternal for
// unclassified errors.
func GetCategory(err error) ErrorCategory {
	if ce, ok := AsClassified(err); ok {
		return ce.category
	}
	return CategoryInternal
}

// GetSeverity returns the severity of err, or SeverityError for
// unclassified errors.
func GetSeverity(err error) ErrorSeverity {
	if ce, ok := AsClassified(err); ok {
		return ce.severity
	}
	return SeverityError
}

// IsFatalError reports whether err (classified or not) is fatal.
func IsFatalError(err error) bool {
	return GetSeverity(err) == SeverityFatal
}
