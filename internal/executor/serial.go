package executor

import (
	"context"
	"time"

	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/testcase"
)

// SerialPolicy runs one case at a time, each to completion before the next
// one starts.
type SerialPolicy struct {
	policyBase
}

// NewSerialPolicy returns a serial policy with the given options.
func NewSerialPolicy(opts Options) *SerialPolicy {
	return &SerialPolicy{policyBase{opts: opts}}
}

// Execute runs cases in the given order, which should be a topological
// order of their dependencies.
func (p *SerialPolicy) Execute(ctx context.Context, cases []*testcase.TestCase, stats *Stats) error {
	p.begin(stats)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Serial policy started.", "run", stats.CurrentRun(), "cases", len(cases))

	pending := keySet(cases)
	for _, tc := range cases {
		if ctx.Err() != nil {
			cause := context.Cause(ctx)
			p.abort(ctx, cause, nil)
			return cause
		}
		delete(pending, tc.Key())

		t := p.newTask(tc)
		failed, ready := p.depState(tc, pending)
		if len(failed) > 0 {
			p.failDependency(ctx, t, &TaskDependencyError{Deps: failed})
			continue
		}
		if !ready {
			p.failDependency(ctx, t, &TaskDependencyError{Deps: pendingDeps(tc, pending), Reason: "dependencies were not executed before"})
			continue
		}

		if cause := p.runTask(ctx, t); cause != nil {
			p.abort(ctx, cause, []*Task{t})
			return cause
		}
		p.cleanupRetired(ctx, false)
	}

	p.cleanupRetired(ctx, true)
	logger.Debug("Serial policy finished.", "run", stats.CurrentRun())
	return nil
}

// runTask drives t through the whole pipeline. It returns the abort cause of
// a run-fatal error.
func (p *SerialPolicy) runTask(ctx context.Context, t *Task) error {
	submitted, err := p.start(ctx, t)
	if err != nil || !submitted {
		return err
	}
	if err := p.waitJob(ctx, t); err != nil {
		return p.stageFailed(ctx, t, err)
	}
	return p.finish(ctx, t)
}

func (p *SerialPolicy) waitJob(ctx context.Context, t *Task) error {
	if t.Check().IsLocal() {
		return t.wait(ctx)
	}
	rate := newPollRate(p.opts)
	for {
		done, err := t.poll(ctx)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(rate.next()):
		}
	}
}

func pendingDeps(tc *testcase.TestCase, pending map[testcase.Key]bool) []testcase.Key {
	var keys []testcase.Key
	for _, d := range tc.Deps() {
		if pending[d.Key()] {
			keys = append(keys, d.Key())
		}
	}
	return keys
}
