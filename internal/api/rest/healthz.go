package rest

import (
	"context"
	"net/http"
	"time"
)

// Pinger is the connectivity probe both store implementations provide.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthzHandler serves the liveness and readiness probes.
type HealthzHandler struct {
	db Pinger
}

// NewHealthzHandler creates the probe handler; db may be nil in tests.
func NewHealthzHandler(db Pinger) *HealthzHandler {
	return &HealthzHandler{db: db}
}

// Live handles GET /healthz/live: the process is up.
func (h *HealthzHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /healthz/ready: dependencies answer.
func (h *HealthzHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": "database_unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
