// Package relay bridges websocket connections to fan-out channels: per-session
// chat and signaling groups plus the per-user notification channel.
package relay

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/audit"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

// SessionAuthorizer checks session membership. *service.SessionService implements it.
type SessionAuthorizer interface {
	Authorize(ctx context.Context, user *model.User, sessionID string) (*model.Session, error)
	FindSession(ctx context.Context, id string) (*model.Session, error)
}

// MessageStore persists chat messages. *service.SessionService implements it.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID, senderID, content string) (*model.Message, error)
}

type Relay struct {
	sessions SessionAuthorizer
	messages MessageStore
	hub      *fanout.Hub
	upgrader websocket.Upgrader
}

func New(sessions SessionAuthorizer, messages MessageStore, hub *fanout.Hub, allowedOrigins []string) *Relay {
	return &Relay{
		sessions: sessions,
		messages: messages,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (rl *Relay) ServeChat(w http.ResponseWriter, r *http.Request, user *model.User, sessionID string) {
	rl.serve(w, r, KindChat, user, sessionID)
}

func (rl *Relay) ServeSignaling(w http.ResponseWriter, r *http.Request, user *model.User, sessionID string) {
	rl.serve(w, r, KindSignaling, user, sessionID)
}

func (rl *Relay) ServePersonal(w http.ResponseWriter, r *http.Request, user *model.User) {
	rl.serve(w, r, KindPersonal, user, "")
}

// serve upgrades first so that rejections reach the client as close codes.
func (rl *Relay) serve(w http.ResponseWriter, r *http.Request, kind Kind, user *model.User, sessionID string) {
	ws, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("websocket upgrade failed")
		return
	}

	c := newConn(rl, ws, kind, user)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if user == nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventAuthFailure,
			Details: map[string]interface{}{"kind": string(kind)},
		})
		c.reject(CloseUnauthenticated, "unauthenticated")
		return
	}

	channel := fanout.UserChannel(user.ID)
	if kind != KindPersonal {
		session, err := rl.sessions.Authorize(ctx, user, sessionID)
		if err != nil {
			code, reason := closeCodeFor(err)
			if code == CloseForbidden {
				audit.LogFromRequest(r, audit.Event{
					Type:      audit.EventForbiddenConnect,
					UserID:    user.ID,
					SessionID: sessionID,
					Details:   map[string]interface{}{"kind": string(kind)},
				})
			}
			if code == websocket.CloseInternalServerErr {
				log.Error().Err(err).Str("sessionId", sessionID).Msg("session authorization failed")
			}
			c.reject(code, reason)
			return
		}
		c.session = session
		if kind == KindChat {
			channel = fanout.ChatChannel(session.ID)
		} else {
			channel = fanout.SignalingChannel(session.ID)
		}
	}
	c.setState(StateAuthorized)

	if err := c.join(ctx, channel); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to join channel")
		c.reject(websocket.CloseTryAgainLater, "unavailable")
		return
	}
	c.run(ctx)
}

func closeCodeFor(err error) (int, string) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeUnauthenticated:
		return CloseUnauthenticated, "unauthenticated"
	case apperrors.ErrCodeForbidden:
		return CloseForbidden, "forbidden"
	case apperrors.ErrCodeNotFound:
		return CloseNotFound, "not found"
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}

func closeCodeLabel(code int) string {
	return strconv.Itoa(code)
}
