package model

import (
	"time"
)

type User struct {
	ID            string    `db:"id" json:"id"`
	Nickname      string    `db:"nickname" json:"nickname"`
	TokenHash     *string   `db:"token_hash" json:"-"`
	LanguagePrefs string    `db:"language_prefs" json:"language_prefs"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
