package model

import (
	"time"
)

// Session is either a waiting queue entry (UserB nil) or a paired conversation.
type Session struct {
	ID          string        `db:"id" json:"id"`
	SessionType SessionType   `db:"session_type" json:"session_type"`
	UserA       string        `db:"user_a" json:"user_a"`
	UserB       *string       `db:"user_b" json:"user_b,omitempty"`
	TopicTag    string        `db:"topic_tag" json:"topic_tag"`
	Language    string        `db:"language" json:"language"`
	IsVisitor   bool          `db:"is_visitor" json:"is_visitor"`
	Status      SessionStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	StartedAt   *time.Time    `db:"started_at" json:"started_at,omitempty"`
	EndedAt     *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
}

func (s *Session) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return s.UserA == userID || (s.UserB != nil && *s.UserB == userID)
}

// Partner returns the other participant, or "" when userID is not in the session
// or the session has no second participant yet.
func (s *Session) Partner(userID string) string {
	switch {
	case s.UserB == nil:
		return ""
	case s.UserA == userID:
		return *s.UserB
	case *s.UserB == userID:
		return s.UserA
	default:
		return ""
	}
}

func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

func (s *Session) IsOpen() bool {
	return s.Status == SessionStatusWaiting || s.Status == SessionStatusActive
}

type CreateWaitingSessionParams struct {
	UserA       string
	SessionType SessionType
	TopicTag    string
	Language    string
	IsVisitor   bool
}

type QueueStats struct {
	TotalWaiting    int            `json:"total_waiting"`
	ByVibeTag       map[string]int `json:"by_vibe_tag"`
	VisitorsWaiting int            `json:"visitors_waiting"`
}
