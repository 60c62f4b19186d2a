package relay

import (
	"encoding/json"

	"github.com/fusetalk/fusetalk-server/internal/fanout"
)

const (
	frameChatMessage = "chat_message"
	frameTyping      = "typing"
	frameHeartbeat   = "heartbeat"
	frameHeartbeatOK = "heartbeat_response"
	frameError       = "error"
)

type inboundFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	IsTyping  *bool  `json:"is_typing"`
}

type chatMessagePayload struct {
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	SenderID  string `json:"sender_id"`
	Timestamp string `json:"timestamp"`
	MessageID string `json:"message_id,omitempty"`
}

type typingPayload struct {
	User     string `json:"user"`
	IsTyping bool   `json:"is_typing"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeEvent renders an event as the frame clients receive. Signaling
// payloads go out untouched; everything else is the payload object with its type added.
func encodeEvent(ev fanout.Event) ([]byte, error) {
	if ev.Type == fanout.EventSignal {
		return ev.Data, nil
	}

	fields := map[string]json.RawMessage{}
	if len(ev.Data) > 0 && string(ev.Data) != "null" {
		if err := json.Unmarshal(ev.Data, &fields); err != nil {
			return nil, err
		}
	}
	typ, err := json.Marshal(ev.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}
