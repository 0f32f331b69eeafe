package api

import (
	"net/http"
)

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	deps    Dependencies
	gateway GatewayChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps Dependencies, gateway GatewayChecker) *HealthHandler {
	return &HealthHandler{deps: deps, gateway: gateway}
}

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealth handles GET /healthz. It succeeds while the process serves
// requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// HandleReady handles GET /readyz. The feed is not required: a bot with
// a dropped feed still serves presence notices.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	if !h.deps.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", ErrNotReady)
		return
	}
	if h.gateway != nil && !h.gateway.Open() {
		writeError(w, http.StatusServiceUnavailable, "gateway_closed", ErrGatewayClosed)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}
