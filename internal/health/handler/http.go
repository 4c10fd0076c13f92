// Package handler provides liveness and readiness endpoints.
package handler

import (
	"context"
	"net/http"

	"mobile-pairing/backend/internal/server/response"
)

// Pinger checks database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the pairing policy compiles and evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves /healthz and /readyz. Nil dependencies are skipped, so a
// server without a database still reports ready.
type Handler struct {
	db     Pinger
	policy PolicyChecker
}

// New returns a health Handler.
func New(db Pinger, policy PolicyChecker) *Handler {
	return &Handler{db: db, policy: policy}
}

// HandleLiveness reports that the process is up.
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadiness reports whether dependencies are reachable.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "database unreachable",
			})
			return
		}
	}
	if h.policy != nil {
		if err := h.policy.HealthCheck(r.Context()); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "policy evaluation failing",
			})
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
