package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/checkgrid/internal/testcase"
)

// ErrInterrupted is the cancellation cause of a run interrupted by the user.
// It wraps context.Canceled.
var ErrInterrupted = fmt.Errorf("run interrupted: %w", context.Canceled)

// ForceExitError aborts the whole run after a termination signal. It is
// never retried.
type ForceExitError struct {
	Signal string
}

func (e *ForceExitError) Error() string {
	return fmt.Sprintf("received %s signal", e.Signal)
}

// TaskDependencyError fails a task whose dependencies failed or can never
// complete.
type TaskDependencyError struct {
	Deps   []testcase.Key
	Reason string
}

func (e *TaskDependencyError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "dependencies failed"
	}
	if len(e.Deps) == 0 {
		return reason
	}
	names := make([]string, len(e.Deps))
	for i, k := range e.Deps {
		names[i] = k.String()
	}
	return fmt.Sprintf("%s: %s", reason, strings.Join(names, ", "))
}

// AbortError is recorded on tasks that were still active when the run was
// aborted.
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("task aborted: %v", e.Cause)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// AbruptExitError is a panic raised from a stage body, recovered and turned
// into an ordinary task failure.
type AbruptExitError struct {
	Stage Stage
	Value any
}

func (e *AbruptExitError) Error() string {
	return fmt.Sprintf("abrupt exit in %s stage: %v", e.Stage, e.Value)
}

// abortCause returns the run-fatal cause behind a stage error, or nil when
// err only concerns its task.
func abortCause(ctx context.Context, err error) error {
	var fe *ForceExitError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, ErrInterrupted) {
		return ErrInterrupted
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}
