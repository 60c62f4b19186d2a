package audit

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAuthFailure      EventType = "auth_failure"
	EventForbiddenConnect EventType = "forbidden_connect"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventMessagePersist   EventType = "message_persist_failure"
	EventSessionSupersede EventType = "session_superseded"
	EventSessionEnd       EventType = "session_end"
	EventFuseMoment       EventType = "fuse_moment_create"
	EventContactShare     EventType = "contact_share"
)

// Security and delivery problems are raised to warn; lifecycle records stay at info.
var eventLevels = map[EventType]zerolog.Level{
	EventAuthFailure:      zerolog.WarnLevel,
	EventForbiddenConnect: zerolog.WarnLevel,
	EventRateLimitExceed:  zerolog.WarnLevel,
	EventMessagePersist:   zerolog.WarnLevel,
}

type Event struct {
	Type      EventType
	UserID    string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func (e Event) level() zerolog.Level {
	if lvl, ok := eventLevels[e.Type]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// Log writes a moderation record. Chat messages that failed to persist are
// recorded here so moderators can reconstruct what was delivered.
func Log(_ context.Context, event Event) {
	entry := log.WithLevel(event.level()).
		Str("audit", "moderation").
		Str("event_type", string(event.Type))

	optional := map[string]string{
		"user_id":    event.UserID,
		"session_id": event.SessionID,
		"ip":         event.IP,
		"user_agent": event.UserAgent,
	}
	for key, val := range optional {
		if val != "" {
			entry = entry.Str(key, val)
		}
	}

	entry.Fields(event.Details).Msg("audit event")
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
