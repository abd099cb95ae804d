package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/executor"
	"github.com/vk/checkgrid/internal/hclcheck"
	"github.com/vk/checkgrid/internal/site"
	"github.com/vk/checkgrid/internal/testcase"
)

// ErrChecksFailed is returned by Run when at least one case failed.
var ErrChecksFailed = errors.New("some checks failed")

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	site   *site.Site
	checks []testcase.Check

	tracker    *statusTracker
	httpServer *http.Server

	// stats holds the outcome of the last Run.
	stats *executor.Stats
}

// NewApp is the constructor for the main application. It configures an
// isolated logger writing to outW, then loads the site and the check files.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	s := site.Default()
	if cfg.SitePath != "" {
		var err error
		if s, err = site.Load(cfg.SitePath); err != nil {
			return nil, err
		}
		logger.Debug("Site loaded.", "path", cfg.SitePath, "systems", len(s.Systems()))
	}

	checks, err := hclcheck.NewLoader(cfg.Prefix).Load(ctx, cfg.CheckPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load checks: %w", err)
	}
	logger.Debug("Checks loaded.", "count", len(checks))

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		site:    s,
		checks:  checks,
		tracker: newStatusTracker(),
	}, nil
}

// Checks returns the loaded checks. This is primarily for testing.
func (a *App) Checks() []testcase.Check {
	return a.checks
}

// Stats returns the statistics of the last run, or nil.
func (a *App) Stats() *executor.Stats {
	return a.stats
}
