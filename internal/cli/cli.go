package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/checkgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// pathList collects a repeatable path flag.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("checkgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
checkgrid - Runs regression checks across the partitions and environments of a system.

Usage:
  checkgrid [options] [CHECK_PATH...]

Arguments:
  CHECK_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	var checkPaths pathList
	flagSet.Var(&checkPaths, "checks", "Path to a check file or directory. May be repeated.")
	flagSet.Var(&checkPaths, "c", "Path to a check file or directory (shorthand).")
	siteFlag := flagSet.String("site", "", "Path to the site configuration file. Empty uses the built-in generic system.")
	systemFlag := flagSet.String("system", "", "System to run on. Empty selects the first system of the site.")
	policyFlag := flagSet.String("policy", app.PolicyAsync, "Execution policy. Options: 'serial' or 'async'.")
	retriesFlag := flagSet.Int("max-retries", 0, "How many times failed checks are run again.")
	pollFlag := flagSet.Duration("poll-interval", 0, "First delay between two polls of running jobs. 0 keeps the default.")
	skipSystemFlag := flagSet.Bool("skip-system-check", false, "Run checks on every partition regardless of their valid systems.")
	skipEnvironFlag := flagSet.Bool("skip-environ-check", false, "Run checks with every environment regardless of their valid environments.")
	skipSanityFlag := flagSet.Bool("skip-sanity-check", false, "Skip the sanity stage.")
	skipPerfFlag := flagSet.Bool("skip-performance-check", false, "Skip the performance stage.")
	strictFlag := flagSet.Bool("strict", false, "Treat performance warnings as failures.")
	forceLocalFlag := flagSet.Bool("force-local", false, "Wait for every job in-process instead of polling it.")
	keepFlag := flagSet.Bool("keep-stage-files", false, "Keep stage directories after cleanup.")
	prefixFlag := flagSet.String("prefix", ".", "Root of the stage and output directories.")
	resultsFlag := flagSet.String("results-db", "", "SQLite database to store results in. Empty disables it.")
	eventsURLFlag := flagSet.String("events-url", "", "Socket.IO server to publish task events to. Empty disables it.")
	eventsNSFlag := flagSet.String("events-namespace", "/", "Socket.IO namespace for task events.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := append([]string(checkPaths), flagSet.Args()...)
	if len(paths) == 0 {
		slog.Debug("No check path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		CheckPaths:           paths,
		SitePath:             *siteFlag,
		System:               *systemFlag,
		Policy:               strings.ToLower(*policyFlag),
		MaxRetries:           *retriesFlag,
		PollInterval:         *pollFlag,
		SkipSystemCheck:      *skipSystemFlag,
		SkipEnvironCheck:     *skipEnvironFlag,
		SkipSanityCheck:      *skipSanityFlag,
		SkipPerformanceCheck: *skipPerfFlag,
		Strict:               *strictFlag,
		ForceLocal:           *forceLocalFlag,
		KeepStageFiles:       *keepFlag,
		Prefix:               *prefixFlag,
		ResultsDB:            *resultsFlag,
		EventsURL:            *eventsURLFlag,
		EventsNamespace:      *eventsNSFlag,
		StatusPort:           *statusPortFlag,
		LogFormat:            logFormat,
		LogLevel:             logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
