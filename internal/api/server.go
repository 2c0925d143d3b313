// Package api serves the read-only dashboard: cycle summaries, recent
// snapshots and alerts, Prometheus metrics and a websocket alert feed.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/store"
	"github.com/monlabs/monwatch/internal/telemetry"
)

// Server is the dashboard HTTP server. It holds the latest cycle in
// memory and reads history from the store; it never mutates anything.
type Server struct {
	cfg     *config.Config
	store   store.Store
	metrics *telemetry.MetricsRegistry
	hub     *Hub

	mu     sync.RWMutex
	latest *models.CycleOutput

	httpSrv *http.Server
}

func NewServer(cfg *config.Config, st store.Store, metrics *telemetry.MetricsRegistry) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		metrics: metrics,
		hub:     NewHub(),
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshots", s.handleSnapshots).Methods(http.MethodGet)
	r.HandleFunc("/api/baselines", s.handleBaselines).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.HandleFunc("/ws/alerts", s.hub.HandleWS)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// OnCycle is the runner listener: it caches the cycle and broadcasts
// its alerts to websocket subscribers.
func (s *Server) OnCycle(out *models.CycleOutput) {
	s.mu.Lock()
	s.latest = out
	s.mu.Unlock()

	for _, a := range out.Alerts {
		s.hub.Broadcast(a)
	}
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("dashboard listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.GetRuntimeState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "runtime state unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"last_cycle_ts":     states["last_cycle_ts"],
		"last_cycle_status": states["last_cycle_status"],
		"cycle_count":       states["cycle_count"],
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	venue := r.URL.Query().Get("venue")
	if venue == "" {
		writeError(w, http.StatusBadRequest, "venue parameter is required")
		return
	}
	days := queryInt(r, "days", 1)

	rows, err := s.store.HistoricalSnapshots(r.Context(), venue, days)
	if err != nil {
		log.Error().Err(err).Str("venue", venue).Msg("snapshot query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, latest.Baselines)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	rows, err := s.store.RecentAlerts(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("alert query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 1 {
		return def
	}
	return n
}
