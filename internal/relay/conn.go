package relay

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/audit"
	"github.com/fusetalk/fusetalk-server/internal/config"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

// Conn is one websocket connection. Only its own goroutines touch its subscription.
type Conn struct {
	id      string
	kind    Kind
	relay   *Relay
	ws      *websocket.Conn
	user    *model.User
	session *model.Session
	sub     *fanout.Subscriber

	writeMu sync.Mutex
	state   atomic.Int32
}

func newConn(rl *Relay, ws *websocket.Conn, kind Kind, user *model.User) *Conn {
	return &Conn{
		id:    uuid.NewString(),
		kind:  kind,
		relay: rl,
		ws:    ws,
		user:  user,
	}
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// reject closes a connection that never joined a channel.
func (c *Conn) reject(code int, reason string) {
	metricRejected.WithLabelValues(closeCodeLabel(code)).Inc()
	c.closeWith(code, reason)
}

func (c *Conn) closeWith(code int, reason string) {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(config.WSWriteWait),
	)
	c.writeMu.Unlock()
	_ = c.ws.Close()
	c.setState(StateClosed)
}

func (c *Conn) join(ctx context.Context, channel string) error {
	sub, err := c.relay.hub.Subscribe(ctx, channel, c.id, c.kind == KindSignaling)
	if err != nil {
		return err
	}
	c.sub = sub
	c.setState(StateJoined)
	return nil
}

// run pumps events out and frames in until either side stops.
func (c *Conn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	metricConnections.WithLabelValues(string(c.kind)).Inc()

	defer func() {
		cancel()
		c.relay.hub.Unsubscribe(c.sub)
		c.closeWith(websocket.CloseNormalClosure, "")
		metricConnections.WithLabelValues(string(c.kind)).Dec()
		log.Debug().
			Str("connId", c.id).
			Str("kind", string(c.kind)).
			Str("userId", c.user.ID).
			Msg("websocket disconnected")
	}()

	log.Debug().
		Str("connId", c.id).
		Str("kind", string(c.kind)).
		Str("userId", c.user.ID).
		Str("channel", c.sub.Channel).
		Msg("websocket joined")

	go c.writeLoop(ctx)
	c.readLoop(ctx)
}

func (c *Conn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(config.WSPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sub.Done:
			_ = c.ws.Close()
			return
		case ev := <-c.sub.Events:
			frame, err := encodeEvent(ev)
			if err != nil {
				log.Error().Err(err).Str("type", ev.Type).Msg("failed to encode event")
				continue
			}
			if err := c.write(websocket.TextMessage, frame); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Conn) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.write(websocket.TextMessage, data)
}

// writeError sends err as an error frame. Errors without a code are reported as internal.
func (c *Conn) writeError(err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("internal error")
	}
	c.writeJSON(errorFrame{Type: frameError, Code: string(appErr.Code), Message: appErr.Message})
}

// requireActive reloads the session and reports whether frames may still be
// relayed. It answers the client itself when they may not.
func (c *Conn) requireActive(ctx context.Context) (*model.Session, bool) {
	session, err := c.relay.sessions.FindSession(ctx, c.session.ID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", c.session.ID).Msg("failed to load session")
		c.writeError(apperrors.Database(err))
		return nil, false
	}
	if session == nil || !session.IsActive() {
		c.writeError(apperrors.SessionNotActive())
		return nil, false
	}
	return session, true
}

func (c *Conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(config.WSReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(config.WSPongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(config.WSPongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("connId", c.id).Msg("websocket read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(config.WSPongWait))

		switch c.kind {
		case KindChat:
			c.handleChat(ctx, data)
		case KindSignaling:
			c.handleSignal(ctx, data)
		case KindPersonal:
			c.handlePersonal(data)
		}
	}
}

func (c *Conn) handleChat(ctx context.Context, data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		metricFrames.WithLabelValues(string(c.kind), "invalid").Inc()
		c.writeError(apperrors.InvalidInput("frame", "invalid json"))
		return
	}
	metricFrames.WithLabelValues(string(c.kind), frameLabel(in.Type)).Inc()

	switch in.Type {
	case frameChatMessage:
		c.handleChatMessage(ctx, in)
	case frameTyping:
		if in.IsTyping == nil {
			c.writeError(apperrors.MissingRequired("is_typing"))
			return
		}
		if _, ok := c.requireActive(ctx); !ok {
			return
		}
		c.publish(ctx, fanout.EventTyping, typingPayload{User: c.user.Nickname, IsTyping: *in.IsTyping})
	default:
		c.writeError(apperrors.InvalidInput("type", "unknown message type"))
	}
}

func (c *Conn) handleChatMessage(ctx context.Context, in inboundFrame) {
	if in.Content == "" {
		c.writeError(apperrors.MissingRequired("content"))
		return
	}
	if utf8.RuneCountInString(in.Content) > config.MaxChatMessageLength {
		c.writeError(apperrors.ValidationError("message too long"))
		return
	}

	session, ok := c.requireActive(ctx)
	if !ok {
		return
	}

	timestamp := in.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	payload := chatMessagePayload{
		Content:   in.Content,
		Sender:    c.user.Nickname,
		SenderID:  c.user.ID,
		Timestamp: timestamp,
	}

	msg, err := c.relay.messages.AppendMessage(ctx, session.ID, c.user.ID, in.Content)
	if err != nil {
		metricPersistFailures.Inc()
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to persist chat message")
		audit.Log(ctx, audit.Event{
			Type:      audit.EventMessagePersist,
			UserID:    c.user.ID,
			SessionID: session.ID,
			Details: map[string]interface{}{
				"error":   err,
				"content": in.Content,
			},
		})
	} else {
		payload.MessageID = msg.ID
	}

	c.publish(ctx, fanout.EventChatMessage, payload)
}

func (c *Conn) handleSignal(ctx context.Context, data []byte) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		metricFrames.WithLabelValues(string(c.kind), "invalid").Inc()
		c.writeError(apperrors.InvalidInput("signaling payload", "must be a JSON object"))
		return
	}
	metricFrames.WithLabelValues(string(c.kind), "signal").Inc()

	if _, ok := c.requireActive(ctx); !ok {
		return
	}

	ev := fanout.Event{Type: fanout.EventSignal, Data: json.RawMessage(data), Sender: c.id}
	if err := c.relay.hub.Publish(ctx, c.sub.Channel, ev); err != nil {
		log.Warn().Err(err).Str("connId", c.id).Msg("failed to relay signaling payload")
		c.writeError(apperrors.Transient("failed to relay signaling payload", err))
	}
}

func (c *Conn) handlePersonal(data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Str("userId", c.user.ID).Msg("invalid json on personal channel")
		return
	}
	metricFrames.WithLabelValues(string(c.kind), frameLabel(in.Type)).Inc()

	if in.Type == frameHeartbeat {
		c.writeJSON(map[string]string{"type": frameHeartbeatOK, "status": "alive"})
	}
}

func (c *Conn) publish(ctx context.Context, eventType string, payload any) {
	ev, err := fanout.NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to build event")
		return
	}
	ev.Sender = c.id
	if err := c.relay.hub.Publish(ctx, c.sub.Channel, ev); err != nil {
		log.Warn().Err(err).Str("connId", c.id).Str("type", eventType).Msg("failed to publish")
		c.writeError(apperrors.Transient("failed to deliver message", err))
	}
}

// frameLabel bounds metric label values to known frame types.
func frameLabel(t string) string {
	switch t {
	case frameChatMessage, frameTyping, frameHeartbeat:
		return t
	default:
		return "unknown"
	}
}
