package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fusetalk/fusetalk-server/internal/middleware"
	"github.com/fusetalk/fusetalk-server/internal/service"
)

type MatchHandler struct {
	matching *service.MatchingService
	joinRate func(http.Handler) http.Handler
}

// NewMatchHandler takes the rate limit middleware applied to join only.
func NewMatchHandler(matching *service.MatchingService, joinRate func(http.Handler) http.Handler) *MatchHandler {
	if joinRate == nil {
		joinRate = func(next http.Handler) http.Handler { return next }
	}
	return &MatchHandler{matching: matching, joinRate: joinRate}
}

// Routes expects an authenticated router, except for health.
func (h *MatchHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.joinRate).Post("/join", h.Join)
	r.Post("/leave", h.Leave)
	r.Get("/stats", h.Stats)

	return r
}

// POST /api/match/join
func (h *MatchHandler) Join(w http.ResponseWriter, r *http.Request) {
	var params service.JoinParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.matching.JoinQueue(r.Context(), middleware.GetUser(r.Context()), params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /api/match/leave
func (h *MatchHandler) Leave(w http.ResponseWriter, r *http.Request) {
	left, err := h.matching.LeaveQueue(r.Context(), middleware.GetUser(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "You were not in the queue"
	if left {
		message = "Successfully left the queue"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// GET /api/match/stats
func (h *MatchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.matching.GetQueueStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Health answers GET /health and GET /api/match/health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "matching",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
