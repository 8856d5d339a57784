package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/store"
	"github.com/ashureev/pneuma-terminal/internal/terminal"
	"github.com/go-chi/chi/v5"
)

// HealthHandler reports database reachability and live session count.
type HealthHandler struct {
	repo store.Repository
	sm   *terminal.SessionManager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, sm *terminal.SessionManager) *HealthHandler {
	return &HealthHandler{repo: repo, sm: sm}
}

// RegisterHealth registers the detailed health route. The bare /health
// heartbeat is served by chi middleware.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health pings the database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "unhealthy",
			"database": err.Error(),
		})
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"database": "ok",
		"sessions": h.sm.Count(),
	})
}
