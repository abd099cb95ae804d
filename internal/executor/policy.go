package executor

import (
	"context"
	"time"

	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/testcase"
)

// Policy executes one run over a sequence of test cases.
type Policy interface {
	// Execute runs cases, recording every task it creates in stats. It
	// returns a non-nil error only when the run was aborted.
	Execute(ctx context.Context, cases []*testcase.TestCase, stats *Stats) error
	// AddListener registers a listener for the events of every task the
	// policy creates.
	AddListener(l TaskEventListener)
}

// Options are the settings shared by all policies.
type Options struct {
	// SkipSanityCheck lets the sanity stage pass without running it.
	SkipSanityCheck bool
	// SkipPerformanceCheck lets the performance stage pass without running it.
	SkipPerformanceCheck bool
	// StrictCheck turns performance warnings into failures.
	StrictCheck bool
	// ForceLocal marks every check local, so that its job is waited for
	// in-process instead of being polled.
	ForceLocal bool
	// KeepStageFiles keeps stage directories after cleanup.
	KeepStageFiles bool

	// PollInterval is the first delay between two polls of in-flight jobs.
	// The delay doubles while nothing progresses, up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

const (
	defaultPollInterval    = 20 * time.Millisecond
	defaultMaxPollInterval = 2 * time.Second
)

// pollRate is a geometric backoff between polls.
type pollRate struct {
	min, max, cur time.Duration
}

func newPollRate(opts Options) *pollRate {
	r := &pollRate{min: opts.PollInterval, max: opts.MaxPollInterval}
	if r.min <= 0 {
		r.min = defaultPollInterval
	}
	if r.max < r.min {
		r.max = max(defaultMaxPollInterval, r.min)
	}
	r.cur = r.min
	return r
}

func (r *pollRate) next() time.Duration {
	d := r.cur
	r.cur = min(2*r.cur, r.max)
	return d
}

func (r *pollRate) reset() {
	r.cur = r.min
}

// policyBase holds the state and the task transitions common to all
// policies.
type policyBase struct {
	opts      Options
	listeners []TaskEventListener

	stats *Stats
	// retired holds passed tasks waiting for cleanup.
	retired []*Task
}

func (p *policyBase) AddListener(l TaskEventListener) {
	p.listeners = append(p.listeners, l)
}

// Options returns the settings of the policy.
func (p *policyBase) Options() Options {
	return p.opts
}

func (p *policyBase) begin(stats *Stats) {
	p.stats = stats
	p.retired = nil
}

func (p *policyBase) newTask(tc *testcase.TestCase) *Task {
	t := newTask(tc, p.stats.CurrentRun(), p.listeners)
	p.stats.addTask(t)
	return t
}

// depState inspects the dependencies of tc. failed lists dependencies whose
// latest task failed; ready is false while a dependency is pending in this
// run or has not passed yet. Dependencies never scheduled are satisfied.
func (p *policyBase) depState(tc *testcase.TestCase, pending map[testcase.Key]bool) (failed []testcase.Key, ready bool) {
	ready = true
	for _, d := range tc.Deps() {
		k := d.Key()
		if pending[k] {
			ready = false
			continue
		}
		t, ok := p.stats.Task(k)
		if !ok {
			continue
		}
		switch {
		case t.Failed():
			failed = append(failed, k)
		case !t.Succeeded():
			ready = false
		}
	}
	return failed, ready
}

// release drops the references of the passed task t on its dependencies.
// A failed dependent keeps its references: it may be retried and read the
// files of its dependencies again.
func (p *policyBase) release(t *Task) {
	for _, d := range t.tc.Deps() {
		dt, ok := p.stats.Task(d.Key())
		if !ok || dt.run != t.run {
			continue
		}
		if dt.refCount > 0 {
			dt.refCount--
		}
	}
}

func (p *policyBase) failTask(ctx context.Context, t *Task, err error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Task failed.", "case", t.tc.String(), "stage", t.stage.String(), "error", err)
	if t.submitted && !t.jobDone {
		// Do not leave the job of a failed task running.
		jctx := context.WithoutCancel(ctx)
		if cerr := t.call(jctx, t.Check().Cancel); cerr != nil {
			logger.Error("Failed to cancel job of failed task.", "case", t.tc.String(), "error", cerr)
		}
		if werr := t.wait(jctx); werr != nil {
			logger.Error("Failed to wait for job of failed task.", "case", t.tc.String(), "error", werr)
		}
	}
	t.fail(err)
}

func (p *policyBase) failDependency(ctx context.Context, t *Task, err *TaskDependencyError) {
	ctxlog.FromContext(ctx).Debug("Task skipped.", "case", t.tc.String(), "error", err)
	t.failAt(StartupStage, err)
}

// stageFailed handles an error returned by a stage of t. It returns the
// abort cause when the error is run-fatal; otherwise it fails t and returns
// nil.
func (p *policyBase) stageFailed(ctx context.Context, t *Task, err error) error {
	if cause := abortCause(ctx, err); cause != nil {
		return cause
	}
	p.failTask(ctx, t, err)
	return nil
}

// start advances t from setup into the run stage. It reports whether the
// job was submitted.
func (p *policyBase) start(ctx context.Context, t *Task) (bool, error) {
	if err := t.setup(ctx, p.opts.ForceLocal); err != nil {
		return false, p.stageFailed(ctx, t, err)
	}
	if err := t.compile(ctx); err != nil {
		return false, p.stageFailed(ctx, t, err)
	}
	if err := t.runJob(ctx); err != nil {
		return false, p.stageFailed(ctx, t, err)
	}
	return true, nil
}

// finish runs the post-run stages of t once its job is done.
func (p *policyBase) finish(ctx context.Context, t *Task) error {
	if err := t.sanity(ctx, p.opts.SkipSanityCheck); err != nil {
		return p.stageFailed(ctx, t, err)
	}
	if err := t.performance(ctx, p.opts.SkipPerformanceCheck, p.opts.StrictCheck); err != nil {
		return p.stageFailed(ctx, t, err)
	}
	t.succeed()
	p.retired = append(p.retired, t)
	p.release(t)
	return nil
}

// cleanupRetired cleans up passed tasks that no dependent needs anymore. With
// all set, every passed task is cleaned up, but the stage files of tasks
// still referenced by a failed dependent are kept for its retry.
func (p *policyBase) cleanupRetired(ctx context.Context, all bool) {
	var kept []*Task
	for _, t := range p.retired {
		if !all && t.refCount > 0 {
			kept = append(kept, t)
			continue
		}
		removeFiles := !p.opts.KeepStageFiles && t.refCount == 0
		if err := t.cleanup(ctx, removeFiles); err != nil {
			ctxlog.FromContext(ctx).Debug("Cleanup failed.", "case", t.tc.String(), "error", err)
			t.fail(err)
		}
	}
	p.retired = kept
}

// abort fails every task in tasks that has no final outcome yet, after its
// job was cancelled and waited for. Passed tasks are still cleaned up, so
// that their output is kept.
func (p *policyBase) abort(ctx context.Context, cause error, tasks []*Task) {
	ctxlog.FromContext(ctx).Warn("Aborting run.", "cause", cause, "active_tasks", len(tasks))
	for _, t := range tasks {
		t.abort(ctx, cause)
	}
	p.cleanupRetired(context.WithoutCancel(ctx), true)
}

func keySet(cases []*testcase.TestCase) map[testcase.Key]bool {
	set := make(map[testcase.Key]bool, len(cases))
	for _, c := range cases {
		set[c.Key()] = true
	}
	return set
}
