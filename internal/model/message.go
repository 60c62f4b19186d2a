package model

import (
	"time"
)

type Message struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	SenderID  string    `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	IsFlagged bool      `db:"is_flagged" json:"is_flagged"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type CreateMessageParams struct {
	SessionID string
	SenderID  string
	Content   string
}
