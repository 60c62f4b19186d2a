package fanout

import (
	"encoding/json"
	"fmt"
)

const (
	EventMatchFound   = "match_found"
	EventQueueUpdate  = "queue_update"
	EventSessionEnded = "session_ended"
	EventFuseMoment   = "fuse_moment"
	EventChatMessage  = "chat_message"
	EventTyping       = "typing_indicator"
	EventSignal       = "signal"
)

// Event is one message on a channel. Sender is the publishing connection id,
// empty for server-originated events.
type Event struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Sender string          `json:"sender,omitempty"`
}

// NewEvent marshals data into an event.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Data: raw}, nil
}

func UserChannel(userID string) string {
	return "user:" + userID
}

func ChatChannel(sessionID string) string {
	return "chat:" + sessionID
}

func SignalingChannel(sessionID string) string {
	return "signaling:" + sessionID
}
