package executor

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vk/checkgrid/internal/testcase"
)

// AllRuns selects, for every case, the task of the latest run it took part
// in.
const AllRuns = -1

const reportWidth = 78

// Stats records the tasks of every run of a Runner.
type Stats struct {
	runs   [][]*Task
	latest map[testcase.Key]*Task
	// keys lists case keys in the order they were first scheduled.
	keys []testcase.Key
}

// NewStats returns an empty record positioned at run 0.
func NewStats() *Stats {
	return &Stats{
		runs:   [][]*Task{nil},
		latest: make(map[testcase.Key]*Task),
	}
}

func (s *Stats) addTask(t *Task) {
	k := t.tc.Key()
	if _, ok := s.latest[k]; !ok {
		s.keys = append(s.keys, k)
	}
	s.latest[k] = t
	cur := len(s.runs) - 1
	s.runs[cur] = append(s.runs[cur], t)
}

func (s *Stats) nextRun() {
	s.runs = append(s.runs, nil)
}

// CurrentRun returns the index of the latest run.
func (s *Stats) CurrentRun() int {
	return len(s.runs) - 1
}

// NumRuns returns the number of runs started so far.
func (s *Stats) NumRuns() int {
	return len(s.runs)
}

// Task returns the latest task of the case with key k.
func (s *Stats) Task(k testcase.Key) (*Task, bool) {
	t, ok := s.latest[k]
	return t, ok
}

// Tasks returns the tasks of run, or the latest task of every case for
// AllRuns. Unknown runs have no tasks.
func (s *Stats) Tasks(run int) []*Task {
	if run == AllRuns {
		out := make([]*Task, 0, len(s.keys))
		for _, k := range s.keys {
			out = append(out, s.latest[k])
		}
		return out
	}
	if run < 0 || run >= len(s.runs) {
		return nil
	}
	return slices.Clone(s.runs[run])
}

// NumCases returns the number of cases scheduled in run.
func (s *Stats) NumCases(run int) int {
	return len(s.Tasks(run))
}

// Failures returns the failed tasks of run.
func (s *Stats) Failures(run int) []*Task {
	var out []*Task
	for _, t := range s.Tasks(run) {
		if t.Failed() {
			out = append(out, t)
		}
	}
	return out
}

// FailuresByStage groups the failed tasks of run by failed stage.
func (s *Stats) FailuresByStage(run int) map[string][]*Task {
	out := make(map[string][]*Task)
	for _, t := range s.Failures(run) {
		out[t.FailedStage()] = append(out[t.FailedStage()], t)
	}
	return out
}

// RetryReport summarizes the final outcome of every retried case. It is
// empty when no retry took place.
func (s *Stats) RetryReport() string {
	if s.CurrentRun() == 0 {
		return ""
	}
	messages := make(map[string]string)
	for run := 1; run < len(s.runs); run++ {
		for _, t := range s.runs[run] {
			outcome := "passed"
			if t.Failed() {
				outcome = "failed"
			}
			k := t.tc.Key()
			messages[k.String()] = fmt.Sprintf("  * Test %s on %s using %s was retried %d time(s) and %s.",
				k.Check, k.Partition, k.Environ, run, outcome)
		}
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("=", reportWidth) + "\n")
	b.WriteString("SUMMARY OF RETRIES\n")
	b.WriteString(strings.Repeat("-", reportWidth) + "\n")
	for _, k := range slices.Sorted(maps.Keys(messages)) {
		b.WriteString(messages[k] + "\n")
	}
	return b.String()
}

// FailureReport describes every failure, grouped by run and failed stage.
func (s *Stats) FailureReport() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", reportWidth) + "\n")
	b.WriteString("SUMMARY OF FAILURES\n")
	for run := range s.runs {
		byStage := s.FailuresByStage(run)
		if len(byStage) == 0 {
			continue
		}
		for _, stage := range slices.Sorted(maps.Keys(byStage)) {
			b.WriteString(strings.Repeat("-", reportWidth) + "\n")
			fmt.Fprintf(&b, "Run %d, %s stage: %d failure(s)\n", run, stage, len(byStage[stage]))
			for _, t := range byStage[stage] {
				k := t.tc.Key()
				fmt.Fprintf(&b, "  * Test %s on %s using %s\n", k.Check, k.Partition, k.Environ)
				if dir := t.Check().StageDir(); dir != "" {
					fmt.Fprintf(&b, "    Stage directory: %s\n", dir)
				}
				fmt.Fprintf(&b, "    Reason: %v\n", t.Err())
			}
		}
	}
	b.WriteString(strings.Repeat("-", reportWidth) + "\n")
	return b.String()
}
