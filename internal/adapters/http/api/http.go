// Package api serves the operational HTTP surface: liveness, readiness,
// runtime statistics and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sm64br/runwatch/pkg/metrics"
)

// Dependencies are the service facts the handlers read.
type Dependencies interface {
	StatsProvider

	// Ready reports whether startup reconciliation finished and the
	// pipeline is running.
	Ready() bool
}

// GatewayChecker reports whether the chat gateway connection is open.
type GatewayChecker interface {
	Open() bool
}

// Server wires HTTP routes for the operational API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers. gateway may be nil
// when no chat connection is configured.
func NewServer(deps Dependencies, gateway GatewayChecker) *Server {
	return &Server{
		healthHandler: NewHealthHandler(deps, gateway),
		statsHandler:  NewStatsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("/readyz", instrument("readyz", s.healthHandler.HandleReady))
	mux.HandleFunc("/stats", instrument("stats", s.statsHandler.HandleStats))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
