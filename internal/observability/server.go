// Package observability provides the metrics and health HTTP server and gRPC
// interceptors.
package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// readinessReport is the /readyz body.
type readinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server serves /metrics, /healthz and /readyz.
type Server struct {
	server  *http.Server
	addr    string
	checks  map[string]ReadinessCheck
	timeout time.Duration
}

// NewServer builds the server; checks may be nil.
func NewServer(addr string, checks map[string]ReadinessCheck) *Server {
	s := &Server{addr: addr, checks: checks, timeout: 2 * time.Second}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", s.handleReady)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the server mux.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Ready runs every check in name order and reports each outcome.
func (s *Server) Ready(ctx context.Context) (bool, map[string]string) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			log.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}
	return ready, results
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	ready, results := s.Ready(ctx)
	report := readinessReport{Status: "ready", Checks: results}
	code := http.StatusOK
	if !ready {
		report.Status = "not ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Start listens in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting observability HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Observability HTTP server error")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down observability HTTP server")
	return s.server.Shutdown(ctx)
}
