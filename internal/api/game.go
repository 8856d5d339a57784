package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/pneuma-terminal/internal/identity"
	"github.com/go-chi/chi/v5"
)

const defaultRunsLimit = 20

// GameHandler exposes game constants, live session state and the run ledger.
type GameHandler struct {
	*Handler
}

// NewGameHandler creates a new game handler.
func NewGameHandler(base *Handler) *GameHandler {
	return &GameHandler{Handler: base}
}

// RegisterRoutes registers game routes.
func (h *GameHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.DeleteSessions)
		r.Get("/runs", h.GetRuns)
		r.Get("/stats", h.GetStats)
	})
}

// GetMe returns the anonymous identity of the caller.
func (h *GameHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"user_id":    userID,
		"username":   identity.UsernameFromContext(r.Context()),
		"session_id": identity.SessionIDFromContext(r.Context()),
	})
}

// GetConfig returns the game constants the terminal page renders.
func (h *GameHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	g := h.cfg.Game()
	tw := h.cfg.Typewriter()
	JSON(w, http.StatusOK, map[string]interface{}{
		"timer_seconds":     g.TimerSeconds,
		"initial_stability": g.InitialStability,
		"min_loss":          g.MinLoss,
		"max_loss":          g.MaxLoss,
		"typing_speed_ms":   tw.TypingSpeed.Milliseconds(),
		"typing_jitter_ms":  tw.JitterMax.Milliseconds(),
		"model":             h.cfg.Completion.Model,
	})
}

// GetSession returns the live game state of the caller's tab.
func (h *GameHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	session := h.sm.GetActive(userID, sessionID)
	if session == nil {
		Error(w, http.StatusNotFound, "no active session")
		return
	}

	snap := session.Snapshot()
	JSON(w, http.StatusOK, map[string]interface{}{
		"state":    snap.State.String(),
		"snapshot": snap,
	})
}

// DeleteSessions abandons every game the caller has open, in any tab.
// Abandoned games are recorded as aborted losses.
func (h *GameHandler) DeleteSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	closed := h.sm.CloseUserSessions(userID)
	slog.Info("User abandoned games", "user_id", userID, "closed", closed)
	JSON(w, http.StatusOK, map[string]int{"closed": closed})
}

// GetRuns returns the most recent finished runs.
func (h *GameHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.repo.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetStats returns aggregate outcome statistics.
func (h *GameHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		slog.Error("Failed to aggregate runs", "error", err)
		Error(w, http.StatusInternalServerError, "failed to aggregate runs")
		return
	}
	JSON(w, http.StatusOK, stats)
}
