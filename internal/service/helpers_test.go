package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

type mockUserDirectory struct {
	mock.Mock
	known map[string]*model.User
}

func (m *mockUserDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

// FindByIDs answers from the users given to directoryOf.
func (m *mockUserDirectory) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := m.known[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

// directoryOf registers each user under its id.
func directoryOf(users ...*model.User) *mockUserDirectory {
	dir := &mockUserDirectory{known: make(map[string]*model.User)}
	for _, u := range users {
		dir.known[u.ID] = u
		dir.On("FindByID", mock.Anything, u.ID).Return(u, nil)
	}
	return dir
}

type published struct {
	Channel string
	Event   fanout.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, event fanout.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Channel: channel, Event: event})
	return p.err
}

func (p *recordingPublisher) on(channel, eventType string) []fanout.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []fanout.Event
	for _, e := range p.events {
		if e.Channel == channel && e.Event.Type == eventType {
			out = append(out, e.Event)
		}
	}
	return out
}

func decode[T any](t *testing.T, ev fanout.Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

func newUser(id, nickname string) *model.User {
	return &model.User{ID: id, Nickname: nickname, LanguagePrefs: "mixed"}
}
