package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/executor"
)

// Status is the body of GET /status.
type Status struct {
	Session  string `json:"session"`
	Finished bool   `json:"finished"`
	Started  int    `json:"started"`
	Running  int    `json:"running"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
}

// statusTracker is a task listener keeping live counters for the status
// endpoint.
type statusTracker struct {
	mu sync.Mutex
	st Status
}

var _ executor.TaskEventListener = (*statusTracker)(nil)

func newStatusTracker() *statusTracker {
	return &statusTracker{}
}

func (s *statusTracker) update(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

func (s *statusTracker) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *statusTracker) begin(session string) {
	s.update(func(st *Status) { *st = Status{Session: session} })
}

func (s *statusTracker) finish() {
	s.update(func(st *Status) { st.Finished = true })
}

func (s *statusTracker) OnTaskSetup(*executor.Task) {
	s.update(func(st *Status) { st.Started++ })
}

func (s *statusTracker) OnTaskRun(*executor.Task) {
	s.update(func(st *Status) { st.Running++ })
}

func (s *statusTracker) OnTaskSuccess(*executor.Task) {
	s.update(func(st *Status) { st.Passed++ })
}

func (s *statusTracker) OnTaskFailure(t *executor.Task) {
	s.update(func(st *Status) {
		st.Failed++
		// A failed cleanup follows the success event of the same task.
		if t.FailedStage() == executor.StageCleanup.String() {
			st.Passed--
		}
	})
}

func (s *statusTracker) OnTaskExit(*executor.Task) {
	s.update(func(st *Status) { st.Running-- })
}

// statusRouter serves the health and status endpoints.
func (a *App) statusRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		a.logger.Debug("Health check endpoint hit.", "remote_addr", req.RemoteAddr, "path", req.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.tracker.snapshot()); err != nil {
			a.logger.Error("Failed to encode status.", "error", err)
		}
	})
	return r
}

// startStatusServer starts the status server in the background. The
// listener is bound before returning, so that requests succeed right away.
func (a *App) startStatusServer(ctx context.Context, port int) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring status server.")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	a.httpServer = &http.Server{
		Handler:           a.statusRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://%s/status", ln.Addr()))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeStatusServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		logger.Debug("Status server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down status server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	a.httpServer = nil
	logger.Debug("Status server shut down gracefully.")
	return nil
}
