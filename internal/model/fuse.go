package model

import (
	"time"
)

type SessionLike struct {
	SessionID string    `db:"session_id" json:"session_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FuseMoment is created once both participants of a session liked it.
type FuseMoment struct {
	ID               string    `db:"id" json:"id"`
	SessionID        string    `db:"session_id" json:"session_id"`
	UserA            string    `db:"user_a" json:"user_a"`
	UserB            string    `db:"user_b" json:"user_b"`
	SummaryText      string    `db:"summary_text" json:"summary_text"`
	ContactExchanged bool      `db:"contact_exchanged" json:"contact_exchanged"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

func (f *FuseMoment) HasParticipant(userID string) bool {
	return userID != "" && (f.UserA == userID || f.UserB == userID)
}

// Partner returns the other participant, or "" for outsiders.
func (f *FuseMoment) Partner(userID string) string {
	switch userID {
	case "":
		return ""
	case f.UserA:
		return f.UserB
	case f.UserB:
		return f.UserA
	}
	return ""
}

type CreateFuseMomentParams struct {
	SessionID   string
	UserA       string
	UserB       string
	SummaryText string
}

// ContactExchange fields are stored encrypted when an encryption key is configured.
type ContactExchange struct {
	ID           string    `db:"id" json:"id"`
	FuseMomentID string    `db:"fuse_moment_id" json:"fuse_moment_id"`
	SenderID     string    `db:"sender_id" json:"sender_id"`
	ReceiverID   string    `db:"receiver_id" json:"receiver_id"`
	WhatsApp     string    `db:"whatsapp" json:"whatsapp"`
	Instagram    string    `db:"instagram" json:"instagram"`
	Telegram     string    `db:"telegram" json:"telegram"`
	Note         string    `db:"note" json:"note"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type UpsertContactExchangeParams struct {
	FuseMomentID string
	SenderID     string
	ReceiverID   string
	WhatsApp     string
	Instagram    string
	Telegram     string
	Note         string
}
