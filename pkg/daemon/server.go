// Package daemon exposes loomd's HTTP and websocket surface: pairing,
// assignment operations, the realtime channel, and per-ancillary event
// streams.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loom/pkg/assignment"
	"loom/pkg/beads"
	"loom/pkg/security"
	"loom/pkg/segments"
	"loom/pkg/workspace"
)

// Server is the loomd API server.
type Server struct {
	manager    *assignment.Manager
	sec        *security.Manager
	segments   *segments.Store
	workspaces *workspace.Provisioner
	runner     beads.CommandRunner
	metrics    *Metrics

	http *http.Server
}

// Config for the API server.
type Config struct {
	Listen     string
	Manager    *assignment.Manager
	Security   *security.Manager
	Segments   *segments.Store
	Workspaces *workspace.Provisioner

	// Runner executes client command and vcs requests; defaults to
	// beads.ExecRunner.
	Runner beads.CommandRunner

	// Registry defaults to a fresh prometheus registry.
	Registry *prometheus.Registry

	// Metrics, when set, must already be registered with Registry. When nil
	// the server registers its own collectors.
	Metrics *Metrics
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = beads.ExecRunner{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(reg)
	}
	s := &Server{
		manager:    cfg.Manager,
		sec:        cfg.Security,
		segments:   cfg.Segments,
		workspaces: cfg.Workspaces,
		runner:     runner,
		metrics:    metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /pair", s.handlePair)
	mux.HandleFunc("GET /api/segments/list", s.handleSegmentsList)
	mux.HandleFunc("POST /api/segments/create", s.handleSegmentsCreate)
	mux.HandleFunc("GET /api/ancillaries/list", s.handleAncillariesList)
	mux.HandleFunc("POST /api/ancillaries/{id}/start", s.handleAncillaryStart)
	mux.HandleFunc("POST /api/ancillaries/{id}/stop", s.handleAncillaryStop)
	mux.HandleFunc("GET /api/assignments", s.handleAssignmentsList)
	mux.HandleFunc("POST /api/assignments", s.handleAssignmentsCreate)
	mux.HandleFunc("GET /api/assignments/{id}", s.handleAssignmentGet)
	mux.HandleFunc("DELETE /api/assignments/{id}", s.handleAssignmentComplete)
	mux.HandleFunc("GET /api/workspaces/list/{segment}", s.handleWorkspacesList)
	mux.HandleFunc("GET /ws", s.handleRealtime)
	mux.HandleFunc("GET /ws/ancillaries/{id}", s.handleAncillaryStream)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, for tests driving httptest.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is canceled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	log.Printf("daemon: listening on %s", s.http.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
