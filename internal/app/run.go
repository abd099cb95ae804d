package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/dag"
	"github.com/vk/checkgrid/internal/eventstream"
	"github.com/vk/checkgrid/internal/executor"
	"github.com/vk/checkgrid/internal/resultstore"
	"github.com/vk/checkgrid/internal/testcase"
)

// Run generates the test cases of the loaded checks on the selected system,
// executes them and reports the outcome. It returns ErrChecksFailed when a
// case failed in its latest run, or the abort error when the session was
// cut short.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	cfg := a.config

	if cfg.StatusPort > 0 {
		if err := a.startStatusServer(ctx, cfg.StatusPort); err != nil {
			return err
		}
		defer func() {
			if cerr := a.closeStatusServer(ctx); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}

	sys, err := a.site.System(cfg.System)
	if err != nil {
		return err
	}
	cases := testcase.Generate(a.checks, sys, testcase.GenerateOptions{
		SkipSystemCheck:  cfg.SkipSystemCheck,
		SkipEnvironCheck: cfg.SkipEnvironCheck,
	})
	if len(cases) == 0 {
		a.logger.Warn("No test cases to run.", "system", sys.Name, "checks", len(a.checks))
		return nil
	}
	a.logger.Info("▶️ Generated test cases.", "system", sys.Name, "cases", len(cases))

	ordered, err := a.plan(ctx, cases)
	if err != nil {
		return err
	}

	policy, err := a.newPolicy()
	if err != nil {
		return err
	}
	pr := newPrinter(a.outW)
	policy.AddListener(pr)
	policy.AddListener(a.tracker)

	session := uuid.NewString()
	if cfg.EventsURL != "" {
		pub, err := eventstream.Dial(ctx, cfg.EventsURL, cfg.EventsNamespace, false)
		if err != nil {
			return err
		}
		defer pub.Close()
		pub.SetSession(session)
		policy.AddListener(pub)
	}

	runner := executor.NewRunner(policy,
		executor.WithMaxRetries(cfg.MaxRetries),
		executor.WithSessionID(session),
	)
	a.tracker.begin(session)
	runErr := runner.RunAll(ctx, ordered)
	a.tracker.finish()
	a.stats = runner.Stats()

	pr.summary(a.stats)
	if len(a.stats.Failures(executor.AllRuns)) > 0 {
		fmt.Fprint(a.outW, a.stats.FailureReport())
	}
	fmt.Fprint(a.outW, a.stats.RetryReport())

	if cfg.ResultsDB != "" {
		// Results of an interrupted session are still worth keeping.
		if err := a.saveResults(context.WithoutCancel(ctx), session); err != nil {
			return err
		}
	}

	if runErr != nil {
		a.logger.Error("Run aborted.", "session", session, "error", runErr)
		return fmt.Errorf("session %s aborted: %w", session, runErr)
	}
	if n := len(a.stats.Failures(executor.AllRuns)); n > 0 {
		return fmt.Errorf("%w: %d of %d test case(s)", ErrChecksFailed, n, a.stats.NumCases(executor.AllRuns))
	}
	a.logger.Info("✅ All test cases passed.", "session", session)
	return nil
}

// plan resolves the dependencies of cases and orders them so that every
// case comes after the cases it depends on.
func (a *App) plan(ctx context.Context, cases []*testcase.TestCase) ([]*testcase.TestCase, error) {
	g, err := dag.BuildDeps(ctx, cases, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies: %w", err)
	}
	if err := dag.ValidateDeps(g); err != nil {
		return nil, err
	}
	ordered, err := dag.Toposort(g, false)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Dependency graph built.", "cases", g.Len(), "edges", g.NumEdges())
	return ordered, nil
}

func (a *App) newPolicy() (executor.Policy, error) {
	cfg := a.config
	opts := executor.Options{
		SkipSanityCheck:      cfg.SkipSanityCheck,
		SkipPerformanceCheck: cfg.SkipPerformanceCheck,
		StrictCheck:          cfg.Strict,
		ForceLocal:           cfg.ForceLocal,
		KeepStageFiles:       cfg.KeepStageFiles,
		PollInterval:         cfg.PollInterval,
	}
	switch cfg.Policy {
	case PolicySerial:
		return executor.NewSerialPolicy(opts), nil
	case PolicyAsync:
		return executor.NewAsyncPolicy(opts), nil
	}
	return nil, fmt.Errorf("unknown execution policy %q", cfg.Policy)
}

func (a *App) saveResults(ctx context.Context, session string) error {
	store, err := resultstore.Open(a.config.ResultsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveSession(ctx, session, a.stats); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	a.logger.Debug("Results saved.", "db", a.config.ResultsDB, "session", session)
	return nil
}
