package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fusetalk/fusetalk-server/internal/database"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

// ErrCandidateTaken means another join paired with the candidate first.
var ErrCandidateTaken = errors.New("candidate already taken")

// CandidateFilter narrows the waiting sessions a joiner may pair with.
// A nil Tag matches every topic tag.
type CandidateFilter struct {
	Tag         *string
	Language    string
	SessionType model.SessionType
	Exclude     string
}

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindOpenByUser(ctx context.Context, userID string) ([]model.Session, error)
	FindCandidate(ctx context.Context, filter CandidateFilter) (*model.Session, error)
	ClaimAndPair(ctx context.Context, sessionID, userID string) (*model.Session, error)
	CreateWaiting(ctx context.Context, params model.CreateWaitingSessionParams) (*model.Session, error)
	// EndOpenByUser ends every waiting or active session the user takes part in.
	EndOpenByUser(ctx context.Context, userID string) ([]model.Session, error)
	EndWaitingByUser(ctx context.Context, userID string) (int64, error)
	// End moves an open session to ended. It returns nil when the session was not open.
	End(ctx context.Context, id string) (*model.Session, error)
	ExpireWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountWaitingBefore(ctx context.Context, session *model.Session) (int, error)
	WaitingStats(ctx context.Context) (*model.QueueStats, error)
}

type sessionRepo struct {
	db database.Querier
}

func NewSessionRepository(db database.Querier) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `SELECT * FROM chat_sessions WHERE id = $1`, id)
	return optional(&session, err)
}

func (r *sessionRepo) FindOpenByUser(ctx context.Context, userID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM chat_sessions
		WHERE (user_a = $1 OR user_b = $1)
		AND status IN ('waiting', 'active')
		ORDER BY created_at ASC
	`, userID)
	return sessions, err
}

func (r *sessionRepo) FindCandidate(ctx context.Context, filter CandidateFilter) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM chat_sessions
		WHERE status = 'waiting'
		AND user_b IS NULL
		AND user_a <> $1
		AND ($2 = 'mixed' OR language = 'mixed' OR language = $2)
		AND ($3::text IS NULL OR topic_tag = $3)
		AND session_type = $4
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE
	`, filter.Exclude, filter.Language, filter.Tag, filter.SessionType)
	return optional(&session, err)
}

func (r *sessionRepo) ClaimAndPair(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET
			user_b = $2,
			status = 'active',
			started_at = $3
		WHERE id = $1 AND status = 'waiting' AND user_b IS NULL
		RETURNING *
	`, sessionID, userID, time.Now())
	claimed, err := optional(&session, err)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, ErrCandidateTaken
	}
	return claimed, nil
}

func (r *sessionRepo) CreateWaiting(ctx context.Context, params model.CreateWaitingSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO chat_sessions (session_type, user_a, topic_tag, language, is_visitor, status)
		VALUES ($1, $2, $3, $4, $5, 'waiting')
		RETURNING *
	`, params.SessionType, params.UserA, params.TopicTag, params.Language, params.IsVisitor)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) EndOpenByUser(ctx context.Context, userID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		UPDATE chat_sessions SET
			status = 'ended',
			ended_at = $2
		WHERE (user_a = $1 OR user_b = $1)
		AND status IN ('waiting', 'active')
		RETURNING *
	`, userID, time.Now())
	return sessions, err
}

func (r *sessionRepo) EndWaitingByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET
			status = 'ended',
			ended_at = $2
		WHERE user_a = $1 AND status = 'waiting'
	`, userID, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) End(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET
			status = 'ended',
			ended_at = $2
		WHERE id = $1 AND status IN ('waiting', 'active')
		RETURNING *
	`, id, time.Now())
	return optional(&session, err)
}

func (r *sessionRepo) ExpireWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET
			status = 'ended',
			ended_at = NOW()
		WHERE status = 'waiting' AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) CountWaitingBefore(ctx context.Context, session *model.Session) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_sessions
		WHERE status = 'waiting'
		AND (created_at, id) < ($1, $2)
	`, session.CreatedAt, session.ID)
	return count, err
}

func (r *sessionRepo) WaitingStats(ctx context.Context) (*model.QueueStats, error) {
	var rows []struct {
		TopicTag  string `db:"topic_tag"`
		IsVisitor bool   `db:"is_visitor"`
		Count     int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT topic_tag, is_visitor, COUNT(*) AS count
		FROM chat_sessions
		WHERE status = 'waiting'
		GROUP BY topic_tag, is_visitor
	`)
	if err != nil {
		return nil, err
	}

	stats := &model.QueueStats{ByVibeTag: make(map[string]int)}
	for _, row := range rows {
		stats.TotalWaiting += row.Count
		stats.ByVibeTag[row.TopicTag] += row.Count
		if row.IsVisitor {
			stats.VisitorsWaiting += row.Count
		}
	}
	return stats, nil
}
