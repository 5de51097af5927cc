// Package trigger exposes the sync cycle on an HTTP server and a cron schedule.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/yhlac/wallsyncd/internal/config"
	wsync "github.com/yhlac/wallsyncd/internal/sync"
)

// Trigger sources recorded in logs
const (
	SourceHTTP     = "http"
	SourceSchedule = "schedule"
	SourceStartup  = "startup"
)

// Runner runs one sync cycle
type Runner interface {
	RunCycle(ctx context.Context) (*wsync.Report, error)
}

// Server serves the trigger endpoints and runs the schedule
type Server struct {
	runner Runner
	cfg    config.ServeConfig
	logger *slog.Logger

	mu   sync.Mutex
	last *wsync.Report
}

// NewServer creates a new trigger server
func NewServer(runner Runner, cfg config.ServeConfig, logger *slog.Logger) *Server {
	return &Server{
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Post("/run", s.handleRun)
	r.Get("/status", s.handleStatus)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start schedules cycles, optionally runs one immediately, and serves HTTP
// on ln until ctx is cancelled.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.cfg.Schedule, func() {
		_, _ = s.runCycle(context.WithoutCancel(ctx), SourceSchedule)
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Schedule, err)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()
	s.logger.Info("cycle schedule active", "schedule", s.cfg.Schedule)

	if s.cfg.RunOnStart {
		go func() {
			_, _ = s.runCycle(context.WithoutCancel(ctx), SourceStartup)
		}()
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// a manual cycle answers only once every target was written
		WriteTimeout:   5 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("trigger server starting", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down trigger server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// LastReport returns the report of the most recent cycle, if any
func (s *Server) LastReport() *wsync.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// runCycle runs one cycle. Cycles from different sources may overlap; the
// archive's ref update is the only conflict detection.
func (s *Server) runCycle(ctx context.Context, source string) (*wsync.Report, error) {
	s.logger.Info("cycle triggered", "source", source)

	report, err := s.runner.RunCycle(ctx)
	if err != nil {
		s.logger.Error("cycle produced nothing", "source", source, "error", err)
	}

	if report != nil {
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
	}
	return report, err
}

// handleRun runs a cycle detached from the request, so a client disconnect
// does not abort backend writes
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.runCycle(context.WithoutCancel(r.Context()), SourceHTTP)

	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	if report == nil {
		http.Error(w, "cycle returned no report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report := s.LastReport()
	if report == nil {
		http.Error(w, "no cycle has run yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
