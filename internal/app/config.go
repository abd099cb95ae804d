package app

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Policy names accepted by Config.Policy.
const (
	PolicySerial = "serial"
	PolicyAsync  = "async"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	CheckPaths []string // hcl files or directories
	SitePath   string   // empty selects the built-in generic site
	System     string   // empty selects the first system of the site

	Policy       string
	MaxRetries   int
	PollInterval time.Duration // zero keeps the policy default

	SkipSystemCheck      bool
	SkipEnvironCheck     bool
	SkipSanityCheck      bool
	SkipPerformanceCheck bool
	Strict               bool
	ForceLocal           bool
	KeepStageFiles       bool

	// Prefix is the root of the stage and output directories.
	Prefix string

	ResultsDB       string
	EventsURL       string
	EventsNamespace string
	StatusPort      int

	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.CheckPaths) == 0 {
		return nil, errors.New("at least one check path is required")
	}
	switch cfg.Policy {
	case "":
		cfg.Policy = PolicyAsync
	case PolicySerial, PolicyAsync:
	default:
		return nil, fmt.Errorf("unknown execution policy %q: must be %q or %q", cfg.Policy, PolicySerial, PolicyAsync)
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New("max retries must not be negative")
	}
	if cfg.PollInterval < 0 {
		return nil, errors.New("poll interval must not be negative")
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}
	if cfg.EventsURL != "" {
		u, err := url.Parse(cfg.EventsURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid events URL %q", cfg.EventsURL)
		}
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "."
	}
	return &cfg, nil
}
