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
	"github.com/fusetalk/fusetalk-server/internal/util"
)

func testCipher(t *testing.T) *util.FieldCipher {
	t.Helper()
	c, err := util.NewFieldCipher("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	return c
}

type mockFuseRepo struct {
	mock.Mock
}

func (m *mockFuseRepo) AddLike(ctx context.Context, sessionID, userID string) (bool, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockFuseRepo) HasLiked(ctx context.Context, sessionID, userID string) (bool, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockFuseRepo) CreateMoment(ctx context.Context, params model.CreateFuseMomentParams) (*model.FuseMoment, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FuseMoment), args.Error(1)
}

func (m *mockFuseRepo) FindMomentByID(ctx context.Context, id string) (*model.FuseMoment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FuseMoment), args.Error(1)
}

func (m *mockFuseRepo) FindMomentBySessionID(ctx context.Context, sessionID string) (*model.FuseMoment, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FuseMoment), args.Error(1)
}

func (m *mockFuseRepo) FindMomentsByUser(ctx context.Context, userID string, limit, offset int) ([]model.FuseMoment, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FuseMoment), args.Error(1)
}

func (m *mockFuseRepo) CountMomentsByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockFuseRepo) UpsertContact(ctx context.Context, params model.UpsertContactExchangeParams) (*model.ContactExchange, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContactExchange), args.Error(1)
}

func (m *mockFuseRepo) FindContact(ctx context.Context, momentID, senderID string) (*model.ContactExchange, error) {
	args := m.Called(ctx, momentID, senderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContactExchange), args.Error(1)
}

func (m *mockFuseRepo) MarkContactExchanged(ctx context.Context, momentID string) error {
	args := m.Called(ctx, momentID)
	return args.Error(0)
}

func TestFuseService_Like(t *testing.T) {
	ctx := context.Background()
	alice := newUser("alice", "Alice")
	bob := newUser("bob", "Bob")

	setup := func(t *testing.T) (*FuseService, *mockFuseRepo, *recordingPublisher, *model.Session) {
		queue := repository.NewMemoryQueue()
		session := activeSession(t, queue, "alice", "bob")
		repo := new(mockFuseRepo)
		pub := &recordingPublisher{}
		return NewFuseService(repo, queue.Sessions(), directoryOf(alice, bob), pub, nil), repo, pub, session
	}

	t.Run("first like waits for the partner", func(t *testing.T) {
		svc, repo, pub, session := setup(t)
		repo.On("AddLike", ctx, session.ID, "alice").Return(true, nil)
		repo.On("HasLiked", ctx, session.ID, "bob").Return(false, nil)

		res, err := svc.Like(ctx, alice, session.ID)
		require.NoError(t, err)
		assert.False(t, res.FuseMoment)
		assert.Equal(t, "Session liked", res.Message)
		assert.Empty(t, pub.events)
		repo.AssertExpectations(t)
	})

	t.Run("mutual like creates a fuse moment", func(t *testing.T) {
		svc, repo, pub, session := setup(t)
		repo.On("AddLike", ctx, session.ID, "bob").Return(true, nil)
		repo.On("HasLiked", ctx, session.ID, "alice").Return(true, nil)
		repo.On("CreateMoment", ctx, model.CreateFuseMomentParams{
			SessionID:   session.ID,
			UserA:       "alice",
			UserB:       "bob",
			SummaryText: "Great conversation between Alice and Bob!",
		}).Return(&model.FuseMoment{ID: "fm1", SessionID: session.ID, UserA: "alice", UserB: "bob"}, nil)

		res, err := svc.Like(ctx, bob, session.ID)
		require.NoError(t, err)
		assert.True(t, res.FuseMoment)
		assert.Equal(t, "fm1", res.FuseMomentID)
		assert.Len(t, pub.on(fanout.UserChannel("alice"), fanout.EventFuseMoment), 1)
		assert.Len(t, pub.on(fanout.UserChannel("bob"), fanout.EventFuseMoment), 1)
		repo.AssertExpectations(t)
	})

	t.Run("repeat like is a no-op", func(t *testing.T) {
		svc, repo, _, session := setup(t)
		repo.On("AddLike", ctx, session.ID, "alice").Return(false, nil)

		res, err := svc.Like(ctx, alice, session.ID)
		require.NoError(t, err)
		assert.Equal(t, "Already liked", res.Message)
		repo.AssertNotCalled(t, "HasLiked", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		svc, _, _, session := setup(t)
		_, err := svc.Like(ctx, newUser("mallory", "Mallory"), session.ID)
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	})

	t.Run("missing session", func(t *testing.T) {
		svc, _, _, _ := setup(t)
		_, err := svc.Like(ctx, alice, "missing")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestFuseService_ShareContact(t *testing.T) {
	ctx := context.Background()
	alice := newUser("alice", "Alice")
	momentID := "0b5f5d8e-2c1a-4c1e-9f3e-7a2d6c9b1e40"
	moment := &model.FuseMoment{ID: momentID, SessionID: "s1", UserA: "alice", UserB: "bob"}
	cipher := testCipher(t)

	t.Run("encrypts and stores contact for the partner", func(t *testing.T) {
		repo := new(mockFuseRepo)
		svc := NewFuseService(repo, repository.NewMemoryQueue().Sessions(), directoryOf(alice), &recordingPublisher{}, cipher)

		repo.On("FindMomentByID", ctx, momentID).Return(moment, nil)
		repo.On("UpsertContact", ctx, mock.MatchedBy(func(p model.UpsertContactExchangeParams) bool {
			if p.SenderID != "alice" || p.ReceiverID != "bob" || p.Telegram != "" {
				return false
			}
			plain, err := cipher.Open("instagram", p.Instagram)
			return err == nil && plain == "@alice"
		})).Return(&model.ContactExchange{ID: "ce1"}, nil)
		repo.On("MarkContactExchanged", ctx, momentID).Return(nil)

		err := svc.ShareContact(ctx, alice, momentID, ContactInfo{Instagram: "@alice"})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("requires at least one field", func(t *testing.T) {
		svc := NewFuseService(new(mockFuseRepo), repository.NewMemoryQueue().Sessions(), directoryOf(alice), &recordingPublisher{}, nil)
		err := svc.ShareContact(ctx, alice, momentID, ContactInfo{})
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		repo := new(mockFuseRepo)
		svc := NewFuseService(repo, repository.NewMemoryQueue().Sessions(), directoryOf(alice), &recordingPublisher{}, nil)
		repo.On("FindMomentByID", ctx, momentID).Return(moment, nil)

		err := svc.ShareContact(ctx, newUser("mallory", "Mallory"), momentID, ContactInfo{Note: "hi"})
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		svc := NewFuseService(new(mockFuseRepo), repository.NewMemoryQueue().Sessions(), directoryOf(alice), &recordingPublisher{}, nil)
		err := svc.ShareContact(ctx, alice, "fm1", ContactInfo{Note: "hi"})
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestFuseService_List(t *testing.T) {
	ctx := context.Background()
	alice := newUser("alice", "Alice")
	bob := newUser("bob", "Bob")

	cipher := testCipher(t)
	encrypted, err := cipher.Seal("whatsapp", "+250700000000")
	require.NoError(t, err)

	repo := new(mockFuseRepo)
	svc := NewFuseService(repo, repository.NewMemoryQueue().Sessions(), directoryOf(alice, bob), &recordingPublisher{}, cipher)

	repo.On("FindMomentsByUser", ctx, "alice", 20, 0).Return([]model.FuseMoment{
		{ID: "fm1", SessionID: "s1", UserA: "bob", UserB: "alice", ContactExchanged: true},
		{ID: "fm2", SessionID: "s2", UserA: "alice", UserB: "bob"},
	}, nil)
	repo.On("CountMomentsByUser", ctx, "alice").Return(2, nil)
	repo.On("FindContact", ctx, "fm1", "bob").Return(&model.ContactExchange{WhatsApp: encrypted}, nil)

	views, total, err := svc.List(ctx, alice, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, views, 2)
	assert.Equal(t, "Bob", views[0].PartnerNickname)
	require.NotNil(t, views[0].ReceivedContact)
	assert.Equal(t, "+250700000000", views[0].ReceivedContact.WhatsApp)
	assert.Nil(t, views[1].ReceivedContact)
	repo.AssertExpectations(t)
}
