package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fusetalk/fusetalk-server/internal/matching"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

// MemoryQueue keeps sessions in process memory. It backs tests and
// single-instance development runs without postgres.
type MemoryQueue struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	seq      int64
	now      func() time.Time
}

type memSession struct {
	session model.Session
	seq     int64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		sessions: make(map[string]*memSession),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// WithinLock stages every write on a copy and swaps it in only when fn succeeds.
func (q *MemoryQueue) WithinLock(ctx context.Context, fn func(SessionRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	staged := make(map[string]*memSession, len(q.sessions))
	for id, s := range q.sessions {
		cp := *s
		staged[id] = &cp
	}

	if err := fn(&memRepo{q: q, staged: staged}); err != nil {
		return err
	}
	q.sessions = staged
	return nil
}

func (q *MemoryQueue) Sessions() SessionRepository {
	return &memRepo{q: q}
}

// memRepo works on a staged map inside WithinLock, or on the committed
// map under the queue mutex when staged is nil.
type memRepo struct {
	q      *MemoryQueue
	staged map[string]*memSession
}

func (r *memRepo) open() (map[string]*memSession, func()) {
	if r.staged != nil {
		return r.staged, func() {}
	}
	r.q.mu.Lock()
	return r.q.sessions, r.q.mu.Unlock
}

func (r *memRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	sessions, done := r.open()
	defer done()

	s, ok := sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(&s.session), nil
}

func (r *memRepo) FindOpenByUser(ctx context.Context, userID string) ([]model.Session, error) {
	sessions, done := r.open()
	defer done()

	var out []model.Session
	for _, s := range sortedSessions(sessions) {
		if s.session.IsOpen() && s.session.HasParticipant(userID) {
			out = append(out, *cloneSession(&s.session))
		}
	}
	return out, nil
}

func (r *memRepo) FindCandidate(ctx context.Context, filter CandidateFilter) (*model.Session, error) {
	sessions, done := r.open()
	defer done()

	for _, s := range sortedSessions(sessions) {
		c := &s.session
		if c.Status != model.SessionStatusWaiting || c.UserB != nil || c.UserA == filter.Exclude {
			continue
		}
		if !matching.Compatible(filter.Language, c.Language) {
			continue
		}
		if filter.Tag != nil && c.TopicTag != *filter.Tag {
			continue
		}
		if c.SessionType != filter.SessionType {
			continue
		}
		return cloneSession(c), nil
	}
	return nil, nil
}

func (r *memRepo) ClaimAndPair(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	sessions, done := r.open()
	defer done()

	s, ok := sessions[sessionID]
	if !ok || s.session.Status != model.SessionStatusWaiting || s.session.UserB != nil {
		return nil, ErrCandidateTaken
	}
	now := r.q.now()
	userB := userID
	s.session.UserB = &userB
	s.session.Status = model.SessionStatusActive
	s.session.StartedAt = &now
	return cloneSession(&s.session), nil
}

func (r *memRepo) CreateWaiting(ctx context.Context, params model.CreateWaitingSessionParams) (*model.Session, error) {
	sessions, done := r.open()
	defer done()

	r.q.seq++
	s := &memSession{
		seq: r.q.seq,
		session: model.Session{
			ID:          uuid.NewString(),
			SessionType: params.SessionType,
			UserA:       params.UserA,
			TopicTag:    params.TopicTag,
			Language:    params.Language,
			IsVisitor:   params.IsVisitor,
			Status:      model.SessionStatusWaiting,
			CreatedAt:   r.q.now(),
		},
	}
	sessions[s.session.ID] = s
	return cloneSession(&s.session), nil
}

func (r *memRepo) EndOpenByUser(ctx context.Context, userID string) ([]model.Session, error) {
	sessions, done := r.open()
	defer done()

	var ended []model.Session
	for _, s := range sortedSessions(sessions) {
		if s.session.IsOpen() && s.session.HasParticipant(userID) {
			r.end(s)
			ended = append(ended, *cloneSession(&s.session))
		}
	}
	return ended, nil
}

func (r *memRepo) EndWaitingByUser(ctx context.Context, userID string) (int64, error) {
	sessions, done := r.open()
	defer done()

	var n int64
	for _, s := range sessions {
		if s.session.Status == model.SessionStatusWaiting && s.session.UserA == userID {
			r.end(s)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) End(ctx context.Context, id string) (*model.Session, error) {
	sessions, done := r.open()
	defer done()

	s, ok := sessions[id]
	if !ok || !s.session.IsOpen() {
		return nil, nil
	}
	r.end(s)
	return cloneSession(&s.session), nil
}

func (r *memRepo) ExpireWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	sessions, done := r.open()
	defer done()

	var n int64
	for _, s := range sessions {
		if s.session.Status == model.SessionStatusWaiting && s.session.CreatedAt.Before(cutoff) {
			r.end(s)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountWaitingBefore(ctx context.Context, session *model.Session) (int, error) {
	sessions, done := r.open()
	defer done()

	ref, ok := sessions[session.ID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, s := range sessions {
		if s.session.Status == model.SessionStatusWaiting && before(s, ref) {
			count++
		}
	}
	return count, nil
}

func (r *memRepo) WaitingStats(ctx context.Context) (*model.QueueStats, error) {
	sessions, done := r.open()
	defer done()

	stats := &model.QueueStats{ByVibeTag: make(map[string]int)}
	for _, s := range sessions {
		if s.session.Status != model.SessionStatusWaiting {
			continue
		}
		stats.TotalWaiting++
		stats.ByVibeTag[s.session.TopicTag]++
		if s.session.IsVisitor {
			stats.VisitorsWaiting++
		}
	}
	return stats, nil
}

func (r *memRepo) end(s *memSession) {
	now := r.q.now()
	s.session.Status = model.SessionStatusEnded
	s.session.EndedAt = &now
}

func before(a, b *memSession) bool {
	if !a.session.CreatedAt.Equal(b.session.CreatedAt) {
		return a.session.CreatedAt.Before(b.session.CreatedAt)
	}
	return a.seq < b.seq
}

func sortedSessions(sessions map[string]*memSession) []*memSession {
	out := make([]*memSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

func cloneSession(s *model.Session) *model.Session {
	cp := *s
	if s.UserB != nil {
		b := *s.UserB
		cp.UserB = &b
	}
	return &cp
}
