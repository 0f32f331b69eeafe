package api

import "net/http"

// StatsProvider exposes a point-in-time snapshot of the engine: feed state,
// open stream sessions, announced runners, queue depth and janitor timers.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves the engine snapshot.
type StatsHandler struct {
	stats StatsProvider
}

// NewStatsHandler creates a StatsHandler reading from p.
func NewStatsHandler(p StatsProvider) *StatsHandler {
	return &StatsHandler{stats: p}
}

// HandleStats handles GET /stats. Snapshots are never cached.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.stats.GetStats())
}
