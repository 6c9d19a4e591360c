// Package server exposes a running load test over HTTP: Prometheus
// metrics, a health probe and a live statistics snapshot.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wesleyorama2/infraload/internal/loadtest"
	"github.com/wesleyorama2/infraload/internal/loadtest/metrics"
)

// Status is the body of /health.
type Status struct {
	Status    string    `json:"status"`
	RunID     string    `json:"runId,omitempty"`
	State     string    `json:"state"`
	Users     int       `json:"users"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
}

// Server serves the observability endpoints of one environment.
type Server struct {
	env      *loadtest.Environment
	gatherer prometheus.Gatherer
	runID    func() string
	log      zerolog.Logger
	router   *mux.Router
}

// New creates a server. runID may be nil.
func New(env *loadtest.Environment, gatherer prometheus.Gatherer, runID func() string, log zerolog.Logger) *Server {
	s := &Server{
		env:      env,
		gatherer: gatherer,
		runID:    runID,
		log:      log.With().Str("component", "server").Logger(),
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", lis.Addr().String()).Msg("metrics server listening")
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Status:    "healthy",
		State:     loadtest.StateReady.String(),
		Target:    s.env.Host,
		Timestamp: time.Now().UTC(),
	}
	if s.runID != nil {
		st.RunID = s.runID()
	}
	if runner := s.env.Runner(); runner != nil {
		st.State = runner.State().String()
		st.Users = runner.UserCount()
	}
	s.writeJSON(w, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name     string               `json:"name"`
		Method   string               `json:"method"`
		Requests int64                `json:"requests"`
		Failures int64                `json:"failures"`
		Latency  metrics.LatencyStats `json:"latency"`
	}
	body := struct {
		Total   *metrics.Snapshot    `json:"total"`
		Entries []entry              `json:"entries"`
		Errors  []metrics.ErrorEntry `json:"errors"`
	}{
		Total:   s.env.Stats.Snapshot(),
		Entries: []entry{},
		Errors:  s.env.Stats.Errors(),
	}
	for _, e := range s.env.Stats.Entries() {
		body.Entries = append(body.Entries, entry{
			Name:     e.Name,
			Method:   e.Method,
			Requests: e.NumRequests(),
			Failures: e.NumFailures(),
			Latency:  e.Latency(),
		})
	}
	s.writeJSON(w, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}
