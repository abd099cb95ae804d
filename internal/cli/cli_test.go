package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/checkgrid/internal/app"
)

func TestParseDefaults(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"checks/"}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, []string{"checks/"}, cfg.CheckPaths)
	assert.Equal(t, app.PolicyAsync, cfg.Policy)
	assert.Equal(t, ".", cfg.Prefix)
	assert.Equal(t, "/", cfg.EventsNamespace)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.StatusPort)
	assert.Empty(t, out.String())
}

func TestParseFlags(t *testing.T) {
	cfg, exit, err := Parse([]string{
		"-c", "a.hcl", "--checks", "dir",
		"-site", "site.yaml", "-system", "cluster",
		"-policy", "SERIAL", "-max-retries", "3", "-poll-interval", "50ms",
		"-skip-system-check", "-skip-environ-check", "-skip-sanity-check", "-skip-performance-check",
		"-strict", "-force-local", "-keep-stage-files",
		"-prefix", "/scratch", "-results-db", "results.db",
		"-events-url", "http://localhost:3000", "-events-namespace", "/checks",
		"-status-port", "8080", "-log-format", "JSON", "-log-level", "debug",
		"more.hcl",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, &app.Config{
		CheckPaths:           []string{"a.hcl", "dir", "more.hcl"},
		SitePath:             "site.yaml",
		System:               "cluster",
		Policy:               app.PolicySerial,
		MaxRetries:           3,
		PollInterval:         50 * time.Millisecond,
		SkipSystemCheck:      true,
		SkipEnvironCheck:     true,
		SkipSanityCheck:      true,
		SkipPerformanceCheck: true,
		Strict:               true,
		ForceLocal:           true,
		KeepStageFiles:       true,
		Prefix:               "/scratch",
		ResultsDB:            "results.db",
		EventsURL:            "http://localhost:3000",
		EventsNamespace:      "/checks",
		StatusPort:           8080,
		LogFormat:            "json",
		LogLevel:             "debug",
	}, cfg)
}

func TestParseExits(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {}} {
		var out bytes.Buffer
		cfg, exit, err := Parse(args, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"-nope"}, "flag provided but not defined: -nope"},
		{"log format", []string{"-log-format", "xml", "c"}, "invalid log-format"},
		{"log level", []string{"-log-level", "loud", "c"}, "invalid log-level"},
		{"policy", []string{"-policy", "parallel", "c"}, "unknown execution policy"},
		{"retries", []string{"-max-retries", "-1", "c"}, "max retries must not be negative"},
		{"port", []string{"-status-port", "99999", "c"}, "invalid status port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tt.want)
		})
	}
}
