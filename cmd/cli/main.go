package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/vk/checkgrid/internal/app"
	"github.com/vk/checkgrid/internal/cli"
	"github.com/vk/checkgrid/internal/executor"
	"golang.org/x/sys/unix"
)

// main is the entrypoint for the checkgrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signalContext(context.Background())
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err == nil {
		return
	}

	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.Message)
		os.Exit(exitErr.Code)
	}
	// Failed checks were already reported on stdout.
	if !errors.Is(err, app.ErrChecksFailed) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

// signalContext cancels the returned context on SIGINT with
// executor.ErrInterrupted and on SIGTERM with a ForceExitError.
func signalContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, unix.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			if sig == unix.SIGTERM {
				cancel(&executor.ForceExitError{Signal: "TERM"})
				return
			}
			cancel(executor.ErrInterrupted)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		close(done)
		cancel(nil)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Loading runs third-party parsers; a panic there is reported as an
	// error instead of a crash.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	checkgrid, err := app.NewApp(outW, appConfig)
	if err != nil {
		return err
	}
	return checkgrid.Run(ctx)
}
