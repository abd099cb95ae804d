package hclcheck

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/checkgrid/internal/check"
	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/fsutil"
	"github.com/vk/checkgrid/internal/localjob"
	"github.com/vk/checkgrid/internal/testcase"
)

// definition is the parsed, case-independent part of a check. It is shared
// by all clones.
type definition struct {
	name        string
	description string
	sourceDir   string

	buildCommand hcl.Expression
	command      hcl.Expression
	sanity       hcl.Expression
	keepFiles    []string
	perf         []perfReference
}

type perfReference struct {
	name      string
	pattern   *regexp.Regexp
	reference float64
	lower     float64
	upper     float64
	unit      string
	warnOnly  bool
}

// bounds returns the absolute limits of the reference, with ok flags for
// the sides that are bounded.
func (r perfReference) bounds() (lo, hi float64, hasLo, hasHi bool) {
	if r.lower != 0 {
		lo, hasLo = r.reference*(1+r.lower), true
	}
	if r.upper != 0 {
		hi, hasHi = r.reference*(1+r.upper), true
	}
	return lo, hi, hasLo, hasHi
}

// Check is a check defined in an HCL file.
type Check struct {
	check.Base
	def *definition

	command  string
	patterns []string
	job      *localjob.Job
}

var _ testcase.Check = (*Check)(nil)

func (c *Check) Description() string { return c.def.description }

// Clone implements testcase.Check.
func (c *Check) Clone() testcase.Check {
	return &Check{Base: c.CloneBase(), def: c.def}
}

// Job returns the job of the run stage, or nil before it was created.
func (c *Check) Job() *localjob.Job { return c.job }

func (c *Check) jobEnv() []string {
	vars := c.Current().Environ().Variables
	env := make([]string, 0, len(vars))
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// Setup prepares the stage directory and evaluates the expressions of the
// check for tc.
func (c *Check) Setup(ctx context.Context, tc *testcase.TestCase) error {
	if err := c.Base.Setup(ctx, tc); err != nil {
		return err
	}
	if err := os.MkdirAll(c.StageDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create stage directory: %w", err)
	}

	ectx := c.evalContext()
	cmd, err := evalString(c.def.command, ectx)
	if err != nil {
		return fmt.Errorf("failed to evaluate command of %s: %w", c.Name(), err)
	}
	if cmd == "" {
		return fmt.Errorf("check %s has an empty command", c.Name())
	}
	c.command = cmd

	if c.def.sanity != nil {
		if c.patterns, err = evalStrings(c.def.sanity, ectx); err != nil {
			return fmt.Errorf("failed to evaluate sanity patterns of %s: %w", c.Name(), err)
		}
	}

	c.job = localjob.New(c.Name(), c.StageDir(), c.command, c.jobEnv())
	ctxlog.FromContext(ctx).Debug("Check set up.", "case", tc.String(), "stagedir", c.StageDir())
	return nil
}

// Compile runs the build command, if any, to completion.
func (c *Check) Compile(ctx context.Context) error {
	if c.def.buildCommand == nil {
		return nil
	}
	cmd, err := evalString(c.def.buildCommand, c.evalContext())
	if err != nil {
		return fmt.Errorf("failed to evaluate build command of %s: %w", c.Name(), err)
	}

	build := localjob.New(c.Name()+"-build", c.StageDir(), cmd, c.jobEnv())
	if err := build.Submit(ctx); err != nil {
		return err
	}
	if err := build.Wait(ctx); err != nil {
		_ = build.Cancel()
		return err
	}
	if code := build.ExitCode(); code != 0 {
		return fmt.Errorf("build of %s failed with exit code %d", c.Name(), code)
	}
	return nil
}

func (c *Check) Run(ctx context.Context) error {
	return c.job.Submit(ctx)
}

func (c *Check) Poll(context.Context) (bool, error) {
	if c.job == nil {
		return true, nil
	}
	done, err := c.job.Poll()
	if errors.Is(err, localjob.ErrNotStarted) {
		return true, nil
	}
	return done, err
}

func (c *Check) Wait(ctx context.Context) error {
	if c.job == nil {
		return nil
	}
	if err := c.job.Wait(ctx); err != nil && !errors.Is(err, localjob.ErrNotStarted) {
		return err
	}
	return nil
}

func (c *Check) Cancel(context.Context) error {
	if c.job == nil {
		return nil
	}
	if err := c.job.Cancel(); err != nil && !errors.Is(err, localjob.ErrNotStarted) {
		return err
	}
	return nil
}

// Sanity requires a zero exit code and every sanity pattern to match the
// standard output.
func (c *Check) Sanity(context.Context) error {
	if code := c.job.ExitCode(); code != 0 {
		return fmt.Errorf("job exited with code %d", code)
	}
	out, err := os.ReadFile(c.job.StdoutPath())
	if err != nil {
		return fmt.Errorf("failed to read job output: %w", err)
	}
	for _, p := range c.patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid sanity pattern %q: %w", p, err)
		}
		if !re.Match(out) {
			return fmt.Errorf("pattern %q not found in %s", p, filepath.Base(c.job.StdoutPath()))
		}
	}
	return nil
}

// Performance extracts every performance value from the standard output and
// compares it with its reference. A miss on a warn_only reference is a
// testcase.PerformanceWarning; a miss on any other reference is an error and
// takes precedence.
func (c *Check) Performance(ctx context.Context) error {
	if len(c.def.perf) == 0 {
		return nil
	}
	out, err := os.ReadFile(c.job.StdoutPath())
	if err != nil {
		return fmt.Errorf("failed to read job output: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	var warning error
	for _, ref := range c.def.perf {
		m := ref.pattern.FindSubmatch(out)
		if m == nil {
			return fmt.Errorf("performance variable %s not found", ref.name)
		}
		raw := m[0]
		if len(m) > 1 {
			raw = m[1]
		}
		value, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return fmt.Errorf("performance variable %s: %w", ref.name, err)
		}
		logger.Debug("Performance value extracted.", "check", c.Name(), "variable", ref.name, "value", value, "unit", ref.unit)

		lo, hi, hasLo, hasHi := ref.bounds()
		if (!hasLo || value >= lo) && (!hasHi || value <= hi) {
			continue
		}
		msg := fmt.Sprintf("%s=%g%s is outside the reference %g (%+g/%+g)", ref.name, value, ref.unit, ref.reference, ref.lower, ref.upper)
		if !ref.warnOnly {
			return errors.New(msg)
		}
		if warning == nil {
			warning = &testcase.PerformanceWarning{Msg: msg}
		}
	}
	return warning
}

// Cleanup copies the job output and the files to keep into the output
// directory, then removes the stage directory when removeFiles is set.
func (c *Check) Cleanup(ctx context.Context, removeFiles bool) error {
	if err := os.MkdirAll(c.OutputDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	files := slices.Clone(c.def.keepFiles)
	if c.job != nil {
		files = append(files, filepath.Base(c.job.StdoutPath()), filepath.Base(c.job.StderrPath()))
	}
	for _, f := range files {
		if err := fsutil.CopyFile(filepath.Join(c.OutputDir(), f), filepath.Join(c.StageDir(), f)); err != nil {
			return fmt.Errorf("failed to keep %s: %w", f, err)
		}
	}

	if removeFiles {
		if err := os.RemoveAll(c.StageDir()); err != nil {
			return fmt.Errorf("failed to remove stage directory: %w", err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Check cleaned up.", "check", c.Name(), "outputdir", c.OutputDir(), "removed_stage", removeFiles)
	return nil
}
