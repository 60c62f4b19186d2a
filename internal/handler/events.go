package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/middleware"
)

const sseHeartbeatInterval = 30 * time.Second

// EventsHandler streams the personal channel as server-sent events for
// clients that cannot hold a websocket.
type EventsHandler struct {
	hub *fanout.Hub
}

func NewEventsHandler(hub *fanout.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// sseStream frames fan-out events on a flushed response.
type sseStream struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseStream) send(event fanout.Event) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s sseStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// GET /api/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, r, apperrors.Unauthenticated("Authentication required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperrors.Internal("Streaming not supported"))
		return
	}

	ctx := r.Context()
	connID := uuid.NewString()
	sub, err := h.hub.Subscribe(ctx, fanout.UserChannel(user.ID), connID, false)
	if err != nil {
		writeError(w, r, apperrors.Transient("Event stream unavailable", err))
		return
	}
	defer h.hub.Unsubscribe(sub)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	logger := log.With().Str("userId", user.ID).Str("connId", connID).Logger()
	logger.Info().Msg("sse stream opened")

	stream := sseStream{w: w, f: flusher}
	hello, err := fanout.NewEvent("connected", map[string]string{"user_id": user.ID})
	if err != nil {
		return
	}
	if err := stream.send(hello); err != nil {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sse stream closed by client")
			return
		case <-sub.Done:
			logger.Info().Msg("sse stream closed by hub")
			return
		case event := <-sub.Events:
			if err := stream.send(event); err != nil {
				logger.Warn().Err(err).Str("event", event.Type).Msg("sse write failed")
				return
			}
		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				logger.Debug().Err(err).Msg("sse heartbeat failed")
				return
			}
		}
	}
}
