package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fusetalk/fusetalk-server/internal/middleware"
	"github.com/fusetalk/fusetalk-server/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	fuseService    *service.FuseService
}

func NewSessionHandler(sessionService *service.SessionService, fuseService *service.FuseService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		fuseService:    fuseService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{sessionID}", h.GetSession)
	r.Get("/{sessionID}/messages", h.ListMessages)
	r.Post("/{sessionID}/end", h.EndSession)
	r.Post("/{sessionID}/like", h.LikeSession)

	return r
}

// GET /api/sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.Authorize(r.Context(), middleware.GetUser(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /api/sessions/{sessionID}/messages
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)

	msgs, total, err := h.sessionService.Messages(
		r.Context(), middleware.GetUser(r.Context()), chi.URLParam(r, "sessionID"), page.Limit, page.Offset,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageOf(page, msgs, total))
}

// POST /api/sessions/{sessionID}/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.End(r.Context(), middleware.GetUser(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// POST /api/sessions/{sessionID}/like
func (h *SessionHandler) LikeSession(w http.ResponseWriter, r *http.Request) {
	result, err := h.fuseService.Like(r.Context(), middleware.GetUser(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}
