package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/middleware"
	"github.com/fusetalk/fusetalk-server/internal/model"
	"github.com/fusetalk/fusetalk-server/internal/repository"
	"github.com/fusetalk/fusetalk-server/internal/service"
)

type userDirectory map[string]*model.User

func (d userDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	return d[id], nil
}

func (d userDirectory) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := d[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

type memMessages struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (m *memMessages) Create(ctx context.Context, p model.CreateMessageParams) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := model.Message{ID: uuid.NewString(), SessionID: p.SessionID, SenderID: p.SenderID, Content: p.Content, CreatedAt: time.Now()}
	m.msgs = append(m.msgs, msg)
	return &msg, nil
}

func (m *memMessages) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, msg := range m.msgs {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMessages) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	all, _ := m.FindBySessionID(ctx, sessionID, 1<<30, 0)
	return len(all), nil
}

type memFuse struct {
	mu       sync.Mutex
	likes    map[string]bool
	moments  map[string]*model.FuseMoment
	contacts map[string]*model.ContactExchange
}

func newMemFuse() *memFuse {
	return &memFuse{
		likes:    map[string]bool{},
		moments:  map[string]*model.FuseMoment{},
		contacts: map[string]*model.ContactExchange{},
	}
}

func (f *memFuse) AddLike(ctx context.Context, sessionID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + "/" + userID
	if f.likes[key] {
		return false, nil
	}
	f.likes[key] = true
	return true, nil
}

func (f *memFuse) HasLiked(ctx context.Context, sessionID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.likes[sessionID+"/"+userID], nil
}

func (f *memFuse) CreateMoment(ctx context.Context, p model.CreateFuseMomentParams) (*model.FuseMoment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.moments {
		if m.SessionID == p.SessionID {
			return m, nil
		}
	}
	m := &model.FuseMoment{ID: uuid.NewString(), SessionID: p.SessionID, UserA: p.UserA, UserB: p.UserB, SummaryText: p.SummaryText, CreatedAt: time.Now()}
	f.moments[m.ID] = m
	return m, nil
}

func (f *memFuse) FindMomentByID(ctx context.Context, id string) (*model.FuseMoment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moments[id], nil
}

func (f *memFuse) FindMomentBySessionID(ctx context.Context, sessionID string) (*model.FuseMoment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.moments {
		if m.SessionID == sessionID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *memFuse) FindMomentsByUser(ctx context.Context, userID string, limit, offset int) ([]model.FuseMoment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FuseMoment
	for _, m := range f.moments {
		if m.HasParticipant(userID) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *memFuse) CountMomentsByUser(ctx context.Context, userID string) (int, error) {
	all, _ := f.FindMomentsByUser(ctx, userID, 0, 0)
	return len(all), nil
}

func (f *memFuse) UpsertContact(ctx context.Context, p model.UpsertContactExchangeParams) (*model.ContactExchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &model.ContactExchange{
		ID: uuid.NewString(), FuseMomentID: p.FuseMomentID, SenderID: p.SenderID, ReceiverID: p.ReceiverID,
		WhatsApp: p.WhatsApp, Instagram: p.Instagram, Telegram: p.Telegram, Note: p.Note,
	}
	f.contacts[p.FuseMomentID+"/"+p.SenderID] = c
	return c, nil
}

func (f *memFuse) FindContact(ctx context.Context, momentID, senderID string) (*model.ContactExchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contacts[momentID+"/"+senderID], nil
}

func (f *memFuse) MarkContactExchanged(ctx context.Context, momentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.moments[momentID]; ok {
		m.ContactExchanged = true
	}
	return nil
}

var _ repository.FuseRepository = (*memFuse)(nil)
var _ repository.MessageRepository = (*memMessages)(nil)

const testUserHeader = "X-Test-User"

type apiFixture struct {
	router   chi.Router
	queue    *repository.MemoryQueue
	hub      *fanout.Hub
	messages *memMessages
	fuse     *memFuse
	users    userDirectory
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		queue:    repository.NewMemoryQueue(),
		hub:      fanout.NewHub(nil),
		messages: &memMessages{},
		fuse:     newMemFuse(),
		users: userDirectory{
			"alice": {ID: "alice", Nickname: "Alice"},
			"bob":   {ID: "bob", Nickname: "Bob"},
			"carol": {ID: "carol", Nickname: "Carol"},
		},
	}
	t.Cleanup(f.hub.Close)

	matching := service.NewMatchingService(f.queue, f.users, f.hub, 15*time.Minute)
	sessions := service.NewSessionService(f.queue.Sessions(), f.messages, f.hub)
	fuse := service.NewFuseService(f.fuse, f.queue.Sessions(), f.users, f.hub, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u := f.users[r.Header.Get(testUserHeader)]; u != nil {
				r = r.WithContext(middleware.WithUser(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/health", Health)
	r.Mount("/api/match", NewMatchHandler(matching, nil).Routes())
	r.Mount("/api/sessions", NewSessionHandler(sessions, fuse).Routes())
	r.Mount("/api/fuse-moments", NewFuseHandler(fuse).Routes())
	r.Get("/api/events", NewEventsHandler(f.hub).ServeHTTP)
	f.router = r
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// pair runs two joins and returns the active session id.
func (f *apiFixture) pair(t *testing.T, a, b string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/match/join", a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/match/join", b, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[service.JoinResult](t, rec)
	require.Equal(t, model.JoinStatusMatched, res.Status)
	return res.SessionID
}
