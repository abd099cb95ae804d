package testcase

import (
	"errors"
	"fmt"
)

// ErrDependency is the sentinel wrapped by every DependencyError.
var ErrDependency = errors.New("dependency error")

// DependencyError reports an unresolvable or cyclic dependency. It is fatal
// to graph construction and never retried.
type DependencyError struct {
	Msg string
}

func (e *DependencyError) Error() string {
	return e.Msg
}

func (e *DependencyError) Unwrap() error {
	return ErrDependency
}

func newDependencyError(format string, args ...any) *DependencyError {
	return &DependencyError{Msg: fmt.Sprintf(format, args...)}
}

// NewDependencyError builds a DependencyError with a formatted message.
func NewDependencyError(format string, args ...any) error {
	return newDependencyError(format, args...)
}

// PerformanceWarning is a performance miss that only fails a case when the
// scheduler runs in strict mode.
type PerformanceWarning struct {
	Msg string
}

func (w *PerformanceWarning) Error() string {
	return "performance warning: " + w.Msg
}
