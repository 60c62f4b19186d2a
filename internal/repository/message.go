package repository

import (
	"context"

	"github.com/fusetalk/fusetalk-server/internal/database"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, error)
	CountBySessionID(ctx context.Context, sessionID string) (int, error)
}

type messageRepo struct {
	db database.Querier
}

func NewMessageRepository(db database.Querier) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (session_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.SessionID, params.SenderID, params.Content)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE session_id = $1
	`, sessionID)
	return count, err
}
