package executor

import (
	"context"
	"time"

	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/testcase"
)

// AsyncPolicy keeps several jobs in flight at once. A single loop submits
// every ready case whose partition has a free slot and then polls all
// in-flight jobs without blocking, until nothing is left to run.
type AsyncPolicy struct {
	policyBase
}

// NewAsyncPolicy returns an asynchronous policy with the given options.
func NewAsyncPolicy(opts Options) *AsyncPolicy {
	return &AsyncPolicy{policyBase{opts: opts}}
}

// asyncRun is the state of one Execute call.
type asyncRun struct {
	pending     []*testcase.TestCase
	pendingKeys map[testcase.Key]bool
	inflight    []*Task
	// slots counts the in-flight jobs per partition.
	slots map[string]int
}

func (r *asyncRun) hasSlot(p *testcase.Partition) bool {
	return p.MaxJobs <= 0 || r.slots[p.FullName()] < p.MaxJobs
}

// Execute runs cases concurrently, honouring their dependencies and the
// max_jobs limit of their partitions.
func (p *AsyncPolicy) Execute(ctx context.Context, cases []*testcase.TestCase, stats *Stats) error {
	p.begin(stats)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Async policy started.", "run", stats.CurrentRun(), "cases", len(cases))

	r := &asyncRun{
		pending:     append([]*testcase.TestCase(nil), cases...),
		pendingKeys: keySet(cases),
		slots:       make(map[string]int),
	}
	rate := newPollRate(p.opts)

	for len(r.pending) > 0 || len(r.inflight) > 0 {
		if ctx.Err() != nil {
			return p.abortRun(ctx, r, context.Cause(ctx))
		}

		submitted, err := p.submitReady(ctx, r)
		if err != nil {
			return err
		}
		completed, err := p.pollInflight(ctx, r)
		if err != nil {
			return err
		}
		p.cleanupRetired(ctx, false)

		progressed := submitted || completed
		if !progressed && len(r.inflight) == 0 && len(r.pending) > 0 {
			p.failStuck(ctx, r)
			continue
		}
		if progressed {
			rate.reset()
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(rate.next()):
		}
	}

	p.cleanupRetired(ctx, true)
	logger.Debug("Async policy finished.", "run", stats.CurrentRun())
	return nil
}

// submitReady starts every pending case that can start. It reports whether
// any case left the pending set.
func (p *AsyncPolicy) submitReady(ctx context.Context, r *asyncRun) (bool, error) {
	progressed := false
	var waiting []*testcase.TestCase
	for i, tc := range r.pending {
		if ctx.Err() != nil {
			r.pending = append(waiting, r.pending[i:]...)
			return progressed, p.abortRun(ctx, r, context.Cause(ctx))
		}

		failed, ready := p.depState(tc, r.pendingKeys)
		if len(failed) > 0 {
			delete(r.pendingKeys, tc.Key())
			p.failDependency(ctx, p.newTask(tc), &TaskDependencyError{Deps: failed})
			progressed = true
			continue
		}
		if !ready || !r.hasSlot(tc.Partition()) {
			waiting = append(waiting, tc)
			continue
		}

		delete(r.pendingKeys, tc.Key())
		progressed = true
		t := p.newTask(tc)
		if cause := p.submit(ctx, r, t); cause != nil {
			r.pending = append(waiting, r.pending[i+1:]...)
			return progressed, p.abortRun(ctx, r, cause, t)
		}
	}
	r.pending = waiting
	return progressed, nil
}

// submit starts t. Jobs of local checks are waited for in place; other jobs
// join the in-flight set.
func (p *AsyncPolicy) submit(ctx context.Context, r *asyncRun, t *Task) error {
	submitted, err := p.start(ctx, t)
	if err != nil || !submitted {
		return err
	}
	if t.Check().IsLocal() {
		if err := t.wait(ctx); err != nil {
			return p.stageFailed(ctx, t, err)
		}
		return p.finish(ctx, t)
	}
	r.inflight = append(r.inflight, t)
	r.slots[t.tc.Partition().FullName()]++
	return nil
}

// pollInflight polls every in-flight job once. A job that finished frees its
// slot and its task runs the remaining stages. It reports whether any job
// finished.
func (p *AsyncPolicy) pollInflight(ctx context.Context, r *asyncRun) (bool, error) {
	progressed := false
	var running []*Task
	for i, t := range r.inflight {
		done, err := t.poll(ctx)
		if err == nil && !done {
			running = append(running, t)
			continue
		}

		progressed = true
		r.slots[t.tc.Partition().FullName()]--
		if err != nil {
			err = p.stageFailed(ctx, t, err)
		} else {
			err = p.finish(ctx, t)
		}
		if err != nil {
			r.inflight = append(running, r.inflight[i+1:]...)
			return progressed, p.abortRun(ctx, r, err, t)
		}
	}
	r.inflight = running
	return progressed, nil
}

// failStuck fails the pending cases when nothing is in flight and none of
// them can start anymore.
func (p *AsyncPolicy) failStuck(ctx context.Context, r *asyncRun) {
	ctxlog.FromContext(ctx).Warn("No pending case can start; failing them.", "cases", len(r.pending))
	for _, tc := range r.pending {
		delete(r.pendingKeys, tc.Key())
		p.failDependency(ctx, p.newTask(tc), &TaskDependencyError{
			Deps:   pendingDeps(tc, keySet(r.pending)),
			Reason: "dependencies can never be satisfied",
		})
	}
	r.pending = nil
}

// abortRun aborts every in-flight task plus extra and returns cause.
func (p *AsyncPolicy) abortRun(ctx context.Context, r *asyncRun, cause error, extra ...*Task) error {
	tasks := append(append([]*Task(nil), r.inflight...), extra...)
	p.abort(ctx, cause, tasks)
	r.inflight = nil
	return cause
}
