package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/model"
	"github.com/fusetalk/fusetalk-server/internal/repository"
)

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, sessionID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func activeSession(t *testing.T, queue *repository.MemoryQueue, a, b string) *model.Session {
	t.Helper()
	ctx := context.Background()
	waiting, err := queue.Sessions().CreateWaiting(ctx, model.CreateWaitingSessionParams{
		UserA: a, SessionType: model.SessionTypeText, TopicTag: "random", Language: "mixed",
	})
	require.NoError(t, err)
	active, err := queue.Sessions().ClaimAndPair(ctx, waiting.ID, b)
	require.NoError(t, err)
	return active
}

func TestSessionService_Authorize(t *testing.T) {
	queue := repository.NewMemoryQueue()
	svc := NewSessionService(queue.Sessions(), new(mockMessageRepo), &recordingPublisher{})
	session := activeSession(t, queue, "alice", "bob")
	ctx := context.Background()

	tests := []struct {
		name     string
		user     *model.User
		id       string
		wantCode apperrors.ErrorCode
	}{
		{"anonymous", nil, session.ID, apperrors.ErrCodeUnauthenticated},
		{"malformed id", newUser("alice", "Alice"), "missing", apperrors.ErrCodeNotFound},
		{"unknown session", newUser("alice", "Alice"), "6f1c2f9e-8d1e-4c55-9a3b-0d7f1f2e3a4b", apperrors.ErrCodeNotFound},
		{"not a participant", newUser("mallory", "Mallory"), session.ID, apperrors.ErrCodeForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authorize(ctx, tc.user, tc.id)
			assert.Equal(t, tc.wantCode, apperrors.GetCode(err))
		})
	}

	t.Run("participant B is allowed", func(t *testing.T) {
		got, err := svc.Authorize(ctx, newUser("bob", "Bob"), session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
	})
}

func TestSessionService_End(t *testing.T) {
	ctx := context.Background()

	t.Run("ends active session and notifies partner", func(t *testing.T) {
		queue := repository.NewMemoryQueue()
		pub := &recordingPublisher{}
		svc := NewSessionService(queue.Sessions(), new(mockMessageRepo), pub)
		session := activeSession(t, queue, "alice", "bob")

		ended, err := svc.End(ctx, newUser("alice", "Alice"), session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusEnded, ended.Status)
		assert.NotNil(t, ended.EndedAt)

		require.Len(t, pub.on(fanout.UserChannel("bob"), fanout.EventSessionEnded), 1)
		require.Len(t, pub.on(fanout.ChatChannel(session.ID), fanout.EventSessionEnded), 1)
		assert.Empty(t, pub.on(fanout.UserChannel("alice"), fanout.EventSessionEnded))
	})

	t.Run("second end reports session not active", func(t *testing.T) {
		queue := repository.NewMemoryQueue()
		svc := NewSessionService(queue.Sessions(), new(mockMessageRepo), &recordingPublisher{})
		session := activeSession(t, queue, "alice", "bob")

		_, err := svc.End(ctx, newUser("bob", "Bob"), session.ID)
		require.NoError(t, err)

		_, err = svc.End(ctx, newUser("bob", "Bob"), session.ID)
		assert.Equal(t, apperrors.ErrCodeSessionNotActive, apperrors.GetCode(err))
	})
}

func TestSessionService_Messages(t *testing.T) {
	ctx := context.Background()
	queue := repository.NewMemoryQueue()
	msgRepo := new(mockMessageRepo)
	svc := NewSessionService(queue.Sessions(), msgRepo, &recordingPublisher{})
	session := activeSession(t, queue, "alice", "bob")

	t.Run("lists messages for a participant", func(t *testing.T) {
		msgRepo.On("FindBySessionID", ctx, session.ID, 20, 0).
			Return([]model.Message{{ID: "m1", SessionID: session.ID, Content: "hi"}}, nil).Once()
		msgRepo.On("CountBySessionID", ctx, session.ID).Return(1, nil).Once()

		msgs, total, err := svc.Messages(ctx, newUser("alice", "Alice"), session.ID, 20, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Content)
	})

	t.Run("rejects outsiders before touching the store", func(t *testing.T) {
		_, _, err := svc.Messages(ctx, newUser("mallory", "Mallory"), session.ID, 20, 0)
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	})

	msgRepo.AssertExpectations(t)
}

func TestSessionService_AppendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the message", func(t *testing.T) {
		msgRepo := new(mockMessageRepo)
		svc := NewSessionService(repository.NewMemoryQueue().Sessions(), msgRepo, &recordingPublisher{})

		msgRepo.On("Create", ctx, model.CreateMessageParams{SessionID: "s1", SenderID: "alice", Content: "hello"}).
			Return(&model.Message{ID: "m1"}, nil)

		msg, err := svc.AppendMessage(ctx, "s1", "alice", "hello")
		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
		msgRepo.AssertExpectations(t)
	})

	t.Run("wraps store errors", func(t *testing.T) {
		msgRepo := new(mockMessageRepo)
		svc := NewSessionService(repository.NewMemoryQueue().Sessions(), msgRepo, &recordingPublisher{})
		msgRepo.On("Create", ctx, mock.Anything).Return(nil, assert.AnError)

		msg, err := svc.AppendMessage(ctx, "s1", "alice", "hello")
		assert.Nil(t, msg)
		assert.ErrorContains(t, err, "append message")
	})
}
