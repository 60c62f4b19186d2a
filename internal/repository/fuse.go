package repository

import (
	"context"

	"github.com/fusetalk/fusetalk-server/internal/database"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

type FuseRepository interface {
	// AddLike records a like and reports whether it was new.
	AddLike(ctx context.Context, sessionID, userID string) (bool, error)
	HasLiked(ctx context.Context, sessionID, userID string) (bool, error)
	// CreateMoment returns the existing moment when the session already has one.
	CreateMoment(ctx context.Context, params model.CreateFuseMomentParams) (*model.FuseMoment, error)
	FindMomentByID(ctx context.Context, id string) (*model.FuseMoment, error)
	FindMomentBySessionID(ctx context.Context, sessionID string) (*model.FuseMoment, error)
	FindMomentsByUser(ctx context.Context, userID string, limit, offset int) ([]model.FuseMoment, error)
	CountMomentsByUser(ctx context.Context, userID string) (int, error)
	UpsertContact(ctx context.Context, params model.UpsertContactExchangeParams) (*model.ContactExchange, error)
	FindContact(ctx context.Context, momentID, senderID string) (*model.ContactExchange, error)
	MarkContactExchanged(ctx context.Context, momentID string) error
}

type fuseRepo struct {
	db database.Querier
}

func NewFuseRepository(db database.Querier) FuseRepository {
	return &fuseRepo{db: db}
}

func (r *fuseRepo) AddLike(ctx context.Context, sessionID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO session_likes (session_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`, sessionID, userID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (r *fuseRepo) HasLiked(ctx context.Context, sessionID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM session_likes WHERE session_id = $1 AND user_id = $2)
	`, sessionID, userID)
	return exists, err
}

func (r *fuseRepo) CreateMoment(ctx context.Context, params model.CreateFuseMomentParams) (*model.FuseMoment, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO fuse_moments (session_id, user_a, user_b, summary_text)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING
	`, params.SessionID, params.UserA, params.UserB, params.SummaryText); err != nil {
		return nil, err
	}
	return r.FindMomentBySessionID(ctx, params.SessionID)
}

func (r *fuseRepo) FindMomentByID(ctx context.Context, id string) (*model.FuseMoment, error) {
	var moment model.FuseMoment
	err := r.db.GetContext(ctx, &moment, `SELECT * FROM fuse_moments WHERE id = $1`, id)
	return optional(&moment, err)
}

func (r *fuseRepo) FindMomentBySessionID(ctx context.Context, sessionID string) (*model.FuseMoment, error) {
	var moment model.FuseMoment
	err := r.db.GetContext(ctx, &moment, `SELECT * FROM fuse_moments WHERE session_id = $1`, sessionID)
	return optional(&moment, err)
}

func (r *fuseRepo) FindMomentsByUser(ctx context.Context, userID string, limit, offset int) ([]model.FuseMoment, error) {
	var moments []model.FuseMoment
	err := r.db.SelectContext(ctx, &moments, `
		SELECT * FROM fuse_moments
		WHERE user_a = $1 OR user_b = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return moments, err
}

func (r *fuseRepo) CountMomentsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM fuse_moments WHERE user_a = $1 OR user_b = $1
	`, userID)
	return count, err
}

func (r *fuseRepo) UpsertContact(ctx context.Context, params model.UpsertContactExchangeParams) (*model.ContactExchange, error) {
	var contact model.ContactExchange
	err := r.db.GetContext(ctx, &contact, `
		INSERT INTO contact_exchanges
			(fuse_moment_id, sender_id, receiver_id, whatsapp, instagram, telegram, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (fuse_moment_id, sender_id) DO UPDATE SET
			whatsapp = EXCLUDED.whatsapp,
			instagram = EXCLUDED.instagram,
			telegram = EXCLUDED.telegram,
			note = EXCLUDED.note,
			updated_at = NOW()
		RETURNING *
	`, params.FuseMomentID, params.SenderID, params.ReceiverID,
		params.WhatsApp, params.Instagram, params.Telegram, params.Note)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *fuseRepo) FindContact(ctx context.Context, momentID, senderID string) (*model.ContactExchange, error) {
	var contact model.ContactExchange
	err := r.db.GetContext(ctx, &contact, `
		SELECT * FROM contact_exchanges WHERE fuse_moment_id = $1 AND sender_id = $2
	`, momentID, senderID)
	return optional(&contact, err)
}

func (r *fuseRepo) MarkContactExchanged(ctx context.Context, momentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fuse_moments SET contact_exchanged = TRUE WHERE id = $1
	`, momentID)
	return err
}
