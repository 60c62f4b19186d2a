package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fusetalk/fusetalk-server/internal/database"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
)

// queueLockKey identifies the advisory lock that serializes joins.
const queueLockKey int64 = 0x66757365

// Queue gives the matching engine an atomic, serialized view of the waiting sessions.
type Queue interface {
	// WithinLock runs fn in one unit of work. Nothing fn wrote is visible
	// to others unless fn returns nil.
	WithinLock(ctx context.Context, fn func(SessionRepository) error) error
	// Sessions returns a repository for reads and single-statement writes outside the lock.
	Sessions() SessionRepository
}

type pgQueue struct {
	db          *database.DB
	lockTimeout time.Duration
}

func NewPostgresQueue(db *database.DB, lockTimeout time.Duration) Queue {
	return &pgQueue{db: db, lockTimeout: lockTimeout}
}

func (q *pgQueue) Sessions() SessionRepository {
	return NewSessionRepository(q.db)
}

func (q *pgQueue) WithinLock(ctx context.Context, fn func(SessionRepository) error) error {
	err := q.db.InTx(ctx, func(tx *sqlx.Tx) error {
		if q.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", q.lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, queueLockKey); err != nil {
			return fmt.Errorf("acquire queue lock: %w", err)
		}
		return fn(NewSessionRepository(tx))
	})
	return translateLockError(err)
}

// translateLockError turns lock contention into a retryable error.
func translateLockError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03", "40P01", "40001":
			return apperrors.Transient("Queue is busy, try again", err)
		}
	}
	return err
}

var (
	_ Queue = (*pgQueue)(nil)
	_ Queue = (*MemoryQueue)(nil)
)
