package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/testcase"
)

// Runner executes test cases with a policy and retries the failed ones.
type Runner struct {
	policy     Policy
	maxRetries int

	stats     *Stats
	sessionID string

	// fixedSession, when set, replaces the generated session id.
	fixedSession string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxRetries sets how many times failed cases are run again.
func WithMaxRetries(n int) RunnerOption {
	return func(r *Runner) {
		r.maxRetries = max(n, 0)
	}
}

// WithSessionID makes every RunAll call use id instead of a fresh UUID.
func WithSessionID(id string) RunnerOption {
	return func(r *Runner) {
		r.fixedSession = id
	}
}

// NewRunner creates a Runner that executes cases with policy.
func NewRunner(policy Policy, opts ...RunnerOption) *Runner {
	r := &Runner{
		policy: policy,
		stats:  NewStats(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Policy() Policy { return r.policy }
func (r *Runner) Stats() *Stats { return r.stats }
func (r *Runner) MaxRetries() int { return r.maxRetries }

// CurrentRun returns the index of the run in progress, or of the last run.
func (r *Runner) CurrentRun() int { return r.stats.CurrentRun() }

// SessionID identifies the latest RunAll call.
func (r *Runner) SessionID() string { return r.sessionID }

// RunAll executes cases, which should be in topological order, and then
// retries failed cases together with their dependents until they pass or
// the retry limit is reached. It returns an error only when the run was
// aborted; task failures are reported through Stats.
func (r *Runner) RunAll(ctx context.Context, cases []*testcase.TestCase) error {
	r.sessionID = r.fixedSession
	if r.sessionID == "" {
		r.sessionID = uuid.NewString()
	}
	r.stats = NewStats()
	ctx = ctxlog.With(ctx, "session", r.sessionID)
	logger := ctxlog.FromContext(ctx)

	logger.Info("🚀 Running test cases.", "cases", len(cases), "max_retries", r.maxRetries)
	if err := r.policy.Execute(ctx, cases, r.stats); err != nil {
		return err
	}

	for r.stats.CurrentRun() < r.maxRetries {
		failures := r.stats.Failures(r.stats.CurrentRun())
		if len(failures) == 0 {
			break
		}
		retry := r.retryCases(cases)
		r.stats.nextRun()
		logger.Info("🔁 Retrying failed test cases.", "run", r.stats.CurrentRun(), "cases", len(retry))
		if err := r.policy.Execute(ctx, retry, r.stats); err != nil {
			return err
		}
	}

	logger.Info("🏁 Run finished.",
		"runs", r.stats.NumRuns(),
		"cases", r.stats.NumCases(AllRuns),
		"failures", len(r.stats.Failures(AllRuns)),
	)
	return nil
}

// retryCases returns fresh copies of the cases whose latest task failed and
// of every case depending on them, in the order of cases. Their dependencies
// are relinked to the latest copy of each case.
func (r *Runner) retryCases(cases []*testcase.TestCase) []*testcase.TestCase {
	retry := make(map[testcase.Key]bool)
	for _, c := range cases {
		if t, ok := r.stats.Task(c.Key()); ok && t.Failed() {
			retry[c.Key()] = true
		}
	}

	// Propagate to dependents until nothing changes, so that the input
	// order does not matter.
	for changed := true; changed; {
		changed = false
		for _, c := range cases {
			k := c.Key()
			if retry[k] {
				continue
			}
			if t, ok := r.stats.Task(k); ok && t.Succeeded() {
				continue
			}
			for _, d := range c.Deps() {
				if retry[d.Key()] {
					retry[k] = true
					changed = true
					break
				}
			}
		}
	}

	clones := make(map[testcase.Key]*testcase.TestCase)
	var out []*testcase.TestCase
	for _, c := range cases {
		if retry[c.Key()] {
			cl := c.Clone()
			clones[c.Key()] = cl
			out = append(out, cl)
		}
	}
	latest := func(k testcase.Key) *testcase.TestCase {
		if c, ok := clones[k]; ok {
			return c
		}
		if t, ok := r.stats.Task(k); ok {
			return t.TestCase()
		}
		return nil
	}
	for _, c := range out {
		c.RelinkDeps(latest)
	}
	return out
}
