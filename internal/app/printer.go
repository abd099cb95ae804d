package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/vk/checkgrid/internal/executor"
)

// printer is a task listener that reports progress to the user.
type printer struct {
	mu sync.Mutex
	w  io.Writer

	run, ok, fail lipgloss.Style
	dim           lipgloss.Style
}

var _ executor.TaskEventListener = (*printer)(nil)

// newPrinter styles its output for w; colors are dropped when w is not a
// terminal.
func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:    w,
		run:  r.NewStyle().Foreground(lipgloss.Color("75")),
		ok:   r.NewStyle().Foreground(lipgloss.Color("42")),
		fail: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		dim:  r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (p *printer) printf(tag lipgloss.Style, label, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", tag.Render(label), fmt.Sprintf(format, args...))
}

func (p *printer) OnTaskSetup(t *executor.Task) {
	p.printf(p.run, "[ RUN      ]", "%s", t.TestCase())
}

func (p *printer) OnTaskRun(*executor.Task) {}

func (p *printer) OnTaskSuccess(t *executor.Task) {
	p.printf(p.ok, "[       OK ]", "%s %s", t.TestCase(), p.dim.Render(fmt.Sprintf("[%.3fs]", t.Duration().Seconds())))
}

func (p *printer) OnTaskFailure(t *executor.Task) {
	p.printf(p.fail, "[     FAIL ]", "%s %s", t.TestCase(), p.dim.Render(fmt.Sprintf("(%s: %v)", t.FailedStage(), t.Err())))
}

func (p *printer) OnTaskExit(*executor.Task) {}

// summary prints the final verdict over the latest outcome of every case.
func (p *printer) summary(stats *executor.Stats) {
	total := stats.NumCases(executor.AllRuns)
	failures := len(stats.Failures(executor.AllRuns))
	if failures == 0 {
		p.printf(p.ok, "[  PASSED  ]", "Ran %d test case(s) in %d run(s)", total, stats.NumRuns())
		return
	}
	p.printf(p.fail, "[  FAILED  ]", "Ran %d test case(s) in %d run(s) (%d failure(s))", total, stats.NumRuns(), failures)
}
