package testutil

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/checkgrid/internal/executor"
	"github.com/vk/checkgrid/internal/testcase"
)

// Monitor is a task listener that tracks how many tasks are between their
// run and exit events.
type Monitor struct {
	mu sync.Mutex
	// NumTasks holds the number of running tasks after every event, starting
	// with 0.
	NumTasks []int
	Events   []string
}

var _ executor.TaskEventListener = (*Monitor)(nil)

// NewMonitor returns a monitor with no running task.
func NewMonitor() *Monitor {
	return &Monitor{NumTasks: []int{0}}
}

func (m *Monitor) add(event string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	if delta != 0 {
		m.NumTasks = append(m.NumTasks, m.NumTasks[len(m.NumTasks)-1]+delta)
	}
}

func (m *Monitor) OnTaskSetup(*executor.Task) { m.add("setup", 0) }
func (m *Monitor) OnTaskRun(*executor.Task) { m.add("run", 1) }
func (m *Monitor) OnTaskSuccess(*executor.Task) { m.add("success", 0) }
func (m *Monitor) OnTaskFailure(*executor.Task) { m.add("failure", 0) }
func (m *Monitor) OnTaskExit(*executor.Task) { m.add("exit", -1) }

// Max returns the highest number of simultaneously running tasks.
func (m *Monitor) Max() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Max(m.NumTasks)
}

// Running returns the number of tasks currently running.
func (m *Monitor) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NumTasks[len(m.NumTasks)-1]
}

// AssertAllDead fails the test if any recorded task still reports a running
// job.
func AssertAllDead(t *testing.T, stats *executor.Stats) {
	t.Helper()
	for run := 0; run < stats.NumRuns(); run++ {
		for _, task := range stats.Tasks(run) {
			done, err := task.Check().Poll(context.Background())
			assert.NoError(t, err, "polling %s", task)
			assert.True(t, done, "job of %s is still running", task)
		}
	}
}

// MakeCases generates the cases of checks on sys without any filtering.
func MakeCases(sys *testcase.System, checks ...testcase.Check) []*testcase.TestCase {
	return testcase.Generate(checks, sys, testcase.GenerateOptions{})
}
