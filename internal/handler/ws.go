package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fusetalk/fusetalk-server/internal/middleware"
	"github.com/fusetalk/fusetalk-server/internal/relay"
)

// WSHandler mounts the relay. Routes sit behind optional auth so that a
// missing token becomes close code 4001 rather than an HTTP 401.
type WSHandler struct {
	relay *relay.Relay
}

func NewWSHandler(rl *relay.Relay) *WSHandler {
	return &WSHandler{relay: rl}
}

func (h *WSHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/matching", h.Personal)
	r.Get("/chat/{sessionID}", h.Chat)
	r.Get("/signaling/{sessionID}", h.Signaling)

	return r
}

// GET /ws/matching
func (h *WSHandler) Personal(w http.ResponseWriter, r *http.Request) {
	h.relay.ServePersonal(w, r, middleware.GetUser(r.Context()))
}

// GET /ws/chat/{sessionID}
func (h *WSHandler) Chat(w http.ResponseWriter, r *http.Request) {
	h.relay.ServeChat(w, r, middleware.GetUser(r.Context()), chi.URLParam(r, "sessionID"))
}

// GET /ws/signaling/{sessionID}
func (h *WSHandler) Signaling(w http.ResponseWriter, r *http.Request) {
	h.relay.ServeSignaling(w, r, middleware.GetUser(r.Context()), chi.URLParam(r, "sessionID"))
}
