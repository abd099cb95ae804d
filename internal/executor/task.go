package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/testcase"
)

// Task tracks one test case through the pipeline during one run. A Task is
// mutated only by the policy that created it.
type Task struct {
	tc  *testcase.TestCase
	run int

	stage       Stage
	failed      bool
	failedStage string
	err         error

	// refCount is the number of dependents that have not reached a final
	// outcome yet. Cleanup of a passed task waits for it to reach zero.
	refCount int

	listeners []TaskEventListener

	// submitted is set once the run stage was entered, jobDone once the
	// policy saw the job finish.
	submitted bool
	jobDone   bool
	// exitPending is set between the run and exit events.
	exitPending bool

	started  time.Time
	finished time.Time
}

func newTask(tc *testcase.TestCase, run int, listeners []TaskEventListener) *Task {
	return &Task{
		tc:        tc,
		run:       run,
		stage:     StageInit,
		refCount:  tc.NumDependents(),
		listeners: listeners,
	}
}

func (t *Task) TestCase() *testcase.TestCase { return t.tc }
func (t *Task) Check() testcase.Check { return t.tc.Check() }

// Run returns the index of the run the task belongs to.
func (t *Task) Run() int { return t.run }

func (t *Task) Stage() Stage { return t.stage }
func (t *Task) Failed() bool { return t.failed }

// FailedStage names the stage that was active when the task failed, or
// StartupStage for tasks failed because of their dependencies.
func (t *Task) FailedStage() string { return t.failedStage }

// Err returns the failure of the task.
func (t *Task) Err() error { return t.err }

func (t *Task) RefCount() int { return t.refCount }

// Succeeded reports whether the task passed every stage up to cleanup.
func (t *Task) Succeeded() bool {
	return !t.failed && t.stage >= StageCleanup
}

// Completed reports whether the task reached a final outcome.
func (t *Task) Completed() bool {
	return t.failed || t.stage >= StageCleanup
}

// Duration returns the time between setup and the final outcome.
func (t *Task) Duration() time.Duration {
	if t.started.IsZero() || t.finished.IsZero() {
		return 0
	}
	return t.finished.Sub(t.started)
}

func (t *Task) String() string {
	return fmt.Sprintf("%s (run %d)", t.tc, t.run)
}

func (t *Task) notify(event func(TaskEventListener, *Task)) {
	for _, l := range t.listeners {
		event(l, t)
	}
}

// call runs a stage body, turning a panic into an AbruptExitError.
func (t *Task) call(ctx context.Context, body func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &AbruptExitError{Stage: t.stage, Value: r}
		}
	}()
	if body == nil {
		return nil
	}
	return body(ctx)
}

// advance moves the task to stage to and runs body in it.
func (t *Task) advance(ctx context.Context, to Stage, body func(context.Context) error) error {
	next, ok := nextStage(t.stage)
	if !ok || next != to {
		return fmt.Errorf("invalid stage transition %s -> %s for %s", t.stage, to, t.tc)
	}
	t.stage = to
	return t.call(ctx, body)
}

func (t *Task) setup(ctx context.Context, forceLocal bool) error {
	t.started = time.Now()
	if forceLocal {
		t.Check().SetLocal(true)
	}
	err := t.advance(ctx, StageSetup, func(ctx context.Context) error {
		return t.Check().Setup(ctx, t.tc)
	})
	if err != nil {
		return err
	}
	t.notify(TaskEventListener.OnTaskSetup)
	return nil
}

func (t *Task) compile(ctx context.Context) error {
	return t.advance(ctx, StageCompile, t.Check().Compile)
}

func (t *Task) runJob(ctx context.Context) error {
	err := t.advance(ctx, StageRun, func(ctx context.Context) error {
		t.submitted = true
		return t.Check().Run(ctx)
	})
	if err != nil {
		return err
	}
	t.exitPending = true
	t.notify(TaskEventListener.OnTaskRun)
	return nil
}

func (t *Task) poll(ctx context.Context) (bool, error) {
	var done bool
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		done, err = t.Check().Poll(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	t.jobDone = done
	return done, nil
}

func (t *Task) wait(ctx context.Context) error {
	if err := t.call(ctx, t.Check().Wait); err != nil {
		return err
	}
	t.jobDone = true
	return nil
}

func (t *Task) sanity(ctx context.Context, skip bool) error {
	body := t.Check().Sanity
	if skip {
		body = nil
	}
	return t.advance(ctx, StageSanity, body)
}

func (t *Task) performance(ctx context.Context, skip, strict bool) error {
	return t.advance(ctx, StagePerformance, func(ctx context.Context) error {
		if skip {
			return nil
		}
		err := t.Check().Performance(ctx)
		var warn *testcase.PerformanceWarning
		if errors.As(err, &warn) && !strict {
			ctxlog.FromContext(ctx).Warn("Performance check outside reference.", "case", t.tc.String(), "warning", warn.Msg)
			return nil
		}
		return err
	})
}

// succeed enters the cleanup stage and reports the task as passed.
func (t *Task) succeed() {
	t.stage = StageCleanup
	t.finished = time.Now()
	t.notify(TaskEventListener.OnTaskSuccess)
	t.exit()
}

// cleanup runs the cleanup body of a passed task.
func (t *Task) cleanup(ctx context.Context, removeFiles bool) error {
	if t.stage != StageCleanup || t.failed {
		return nil
	}
	err := t.call(ctx, func(ctx context.Context) error {
		return t.Check().Cleanup(ctx, removeFiles)
	})
	if err != nil {
		return err
	}
	t.stage, _ = nextStage(t.stage)
	return nil
}

func (t *Task) fail(err error) {
	t.failAt(t.stage.String(), err)
}

func (t *Task) failAt(stage string, err error) {
	if t.failed {
		return
	}
	t.failed = true
	t.failedStage = stage
	t.err = err
	t.finished = time.Now()
	t.notify(TaskEventListener.OnTaskFailure)
	t.exit()
}

func (t *Task) exit() {
	if !t.exitPending {
		return
	}
	t.exitPending = false
	t.notify(TaskEventListener.OnTaskExit)
}

// abort cancels the task's job, waits for it to finish and fails the task.
func (t *Task) abort(ctx context.Context, cause error) {
	if t.Completed() {
		return
	}
	if t.submitted && !t.jobDone {
		logger := ctxlog.FromContext(ctx)
		// The run context is already cancelled; the job still has to be
		// confirmed dead.
		jctx := context.WithoutCancel(ctx)
		if err := t.call(jctx, t.Check().Cancel); err != nil {
			logger.Error("Failed to cancel job.", "case", t.tc.String(), "error", err)
		}
		if err := t.wait(jctx); err != nil {
			logger.Error("Failed to wait for cancelled job.", "case", t.tc.String(), "error", err)
		}
	}
	t.fail(&AbortError{Cause: cause})
}
