package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vk/checkgrid/internal/check"
	"github.com/vk/checkgrid/internal/testcase"
)

// Journal records what fake checks did. It is shared by a check and all of
// its clones.
type Journal struct {
	mu       sync.Mutex
	stages   map[testcase.Key][]string
	begins   []time.Time
	ends     []time.Time
	runs     map[string]int
	setups   map[string]int
	cleanups map[testcase.Key]int
	// removals counts the cleanups that removed the stage files.
	removals map[testcase.Key]int
	cancels  int
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{
		stages:   make(map[testcase.Key][]string),
		runs:     make(map[string]int),
		setups:   make(map[string]int),
		cleanups: make(map[testcase.Key]int),
		removals: make(map[testcase.Key]int),
	}
}

// Stages returns the stage bodies invoked for case k, in order.
func (j *Journal) Stages(k testcase.Key) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.stages[k])
}

// Begins returns the sorted job start times.
func (j *Journal) Begins() []time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return sortedTimes(j.begins)
}

// Ends returns the sorted job completion times.
func (j *Journal) Ends() []time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return sortedTimes(j.ends)
}

// Runs returns how many jobs the check named name submitted.
func (j *Journal) Runs(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs[name]
}

// Cleanups returns how many times case k was cleaned up.
func (j *Journal) Cleanups(k testcase.Key) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cleanups[k]
}

// Removals returns how many cleanups of case k removed its stage files.
func (j *Journal) Removals(k testcase.Key) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.removals[k]
}

// Cancels returns the number of cancelled jobs.
func (j *Journal) Cancels() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancels
}

func (j *Journal) record(k testcase.Key, stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stages[k] = append(j.stages[k], stage)
}

func (j *Journal) setup(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setups[name]++
	return j.setups[name]
}

func (j *Journal) begin(name string, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs[name]++
	j.begins = append(j.begins, at)
}

func (j *Journal) end(at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ends = append(j.ends, at)
}

func (j *Journal) cleanup(k testcase.Key, removeFiles bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cleanups[k]++
	if removeFiles {
		j.removals[k]++
	}
}

func (j *Journal) cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancels++
}

func sortedTimes(ts []time.Time) []time.Time {
	out := slices.Clone(ts)
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// StageHook is called at the start of every stage body of a Fake. A non-nil
// error fails the stage.
type StageHook func(ctx context.Context, stage string) error

// Fake is a configurable check whose job is simulated in-process.
type Fake struct {
	check.Base

	journal *Journal
	// failAt names the stage that returns an error. "poll" fails the first
	// poll after the job's duration elapsed.
	failAt  string
	panicAt string
	// failSetups fails the setup stage this many times across all clones.
	failSetups  int
	perfWarning bool
	duration    time.Duration
	hook        StageHook

	submitted bool
	finished  bool
	cancelled bool
	deadline  time.Time
}

// FakeOption configures a Fake.
type FakeOption func(*Fake)

// FailAt makes the given stage fail.
func FailAt(stage string) FakeOption { return func(f *Fake) { f.failAt = stage } }

// PanicAt makes the given stage panic.
func PanicAt(stage string) FakeOption { return func(f *Fake) { f.panicAt = stage } }

// FailSetups makes the first n setups of the check fail.
func FailSetups(n int) FakeOption { return func(f *Fake) { f.failSetups = n } }

// WarnPerformance makes the performance stage return a soft warning.
func WarnPerformance() FakeOption { return func(f *Fake) { f.perfWarning = true } }

// Sleep makes the job run for d.
func Sleep(d time.Duration) FakeOption { return func(f *Fake) { f.duration = d } }

// Hook installs a stage hook.
func Hook(h StageHook) FakeOption { return func(f *Fake) { f.hook = h } }

// Local marks the check local.
func Local() FakeOption { return func(f *Fake) { f.SetLocal(true) } }

// Environs restricts the valid environments.
func Environs(names ...string) FakeOption {
	return func(f *Fake) { f.SetValidEnvirons(names...) }
}

// DependsOn declares a dependency.
func DependsOn(target string, kind testcase.DependencyKind, envs map[string][]string) FakeOption {
	return func(f *Fake) { f.Base.DependsOn(target, kind, envs) }
}

// NewFake creates a fake check named name that records into j.
func NewFake(j *Journal, name string, opts ...FakeOption) *Fake {
	f := &Fake{Base: check.NewBase(name), journal: j}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Clone implements testcase.Check.
func (f *Fake) Clone() testcase.Check {
	return &Fake{
		Base:        f.CloneBase(),
		journal:     f.journal,
		failAt:      f.failAt,
		panicAt:     f.panicAt,
		failSetups:  f.failSetups,
		perfWarning: f.perfWarning,
		duration:    f.duration,
		hook:        f.hook,
	}
}

func (f *Fake) key() testcase.Key {
	if c := f.Current(); c != nil {
		return c.Key()
	}
	return testcase.Key{Check: f.Name()}
}

func (f *Fake) stage(ctx context.Context, name string) error {
	f.journal.record(f.key(), name)
	if f.hook != nil {
		if err := f.hook(ctx, name); err != nil {
			return err
		}
	}
	if f.panicAt == name {
		panic(fmt.Sprintf("%s exited abruptly in %s", f.Name(), name))
	}
	if f.failAt == name {
		return fmt.Errorf("%s failed in %s", f.Name(), name)
	}
	return nil
}

func (f *Fake) Setup(ctx context.Context, tc *testcase.TestCase) error {
	if err := f.Base.Setup(ctx, tc); err != nil {
		return err
	}
	if n := f.journal.setup(f.Name()); n <= f.failSetups {
		return fmt.Errorf("%s failed setup attempt %d", f.Name(), n)
	}
	return f.stage(ctx, "setup")
}

func (f *Fake) Compile(ctx context.Context) error {
	return f.stage(ctx, "compile")
}

func (f *Fake) Run(ctx context.Context) error {
	if err := f.stage(ctx, "run"); err != nil {
		return err
	}
	now := time.Now()
	f.submitted = true
	f.deadline = now.Add(f.duration)
	f.journal.begin(f.Name(), now)
	return nil
}

// Poll never reports a job that was not submitted as running.
func (f *Fake) Poll(ctx context.Context) (bool, error) {
	if !f.submitted || f.finished {
		return true, nil
	}
	if f.cancelled {
		f.markFinished()
		return true, nil
	}
	if f.hook != nil {
		if err := f.hook(ctx, "poll"); err != nil {
			return false, err
		}
	}
	if time.Now().Before(f.deadline) {
		return false, nil
	}
	if f.failAt == "poll" {
		return false, fmt.Errorf("%s failed to poll its job", f.Name())
	}
	f.markFinished()
	return true, nil
}

func (f *Fake) Wait(ctx context.Context) error {
	if !f.submitted || f.finished {
		return nil
	}
	if !f.cancelled {
		timer := time.NewTimer(time.Until(f.deadline))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-timer.C:
		}
	}
	f.markFinished()
	return nil
}

func (f *Fake) Cancel(context.Context) error {
	if f.submitted && !f.finished {
		f.cancelled = true
		f.journal.cancel()
	}
	return nil
}

func (f *Fake) markFinished() {
	f.finished = true
	f.journal.end(time.Now())
}

func (f *Fake) Sanity(ctx context.Context) error {
	return f.stage(ctx, "sanity")
}

func (f *Fake) Performance(ctx context.Context) error {
	if err := f.stage(ctx, "performance"); err != nil {
		return err
	}
	if f.perfWarning {
		return &testcase.PerformanceWarning{Msg: f.Name() + " is slower than its reference"}
	}
	return nil
}

func (f *Fake) Cleanup(ctx context.Context, removeFiles bool) error {
	if err := f.stage(ctx, "cleanup"); err != nil {
		return err
	}
	f.journal.cleanup(f.key(), removeFiles)
	return nil
}

// Running reports whether the fake job is still running.
func (f *Fake) Running() bool {
	return f.submitted && !f.finished && !f.cancelled
}
