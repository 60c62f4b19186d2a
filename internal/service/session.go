package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/audit"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/model"
	"github.com/fusetalk/fusetalk-server/internal/repository"
	"github.com/fusetalk/fusetalk-server/internal/util"
)

type SessionService struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	publisher Publisher
}

func NewSessionService(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	publisher Publisher,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		messages:  messages,
		publisher: publisher,
	}
}

// FindSession returns nil without error when the session does not exist.
func (s *SessionService) FindSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

// Authorize loads a session the user takes part in.
func (s *SessionService) Authorize(ctx context.Context, user *model.User, sessionID string) (*model.Session, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated("Authentication required")
	}
	if !util.IsValidUUID(sessionID) {
		return nil, apperrors.NotFound("Session")
	}
	session, err := s.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if !session.HasParticipant(user.ID) {
		return nil, apperrors.Forbidden("Not a participant of this session")
	}
	return session, nil
}

// End lets a participant close an open session.
func (s *SessionService) End(ctx context.Context, user *model.User, sessionID string) (*model.Session, error) {
	if _, err := s.Authorize(ctx, user, sessionID); err != nil {
		return nil, err
	}

	ended, err := s.sessions.End(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	if ended == nil {
		return nil, apperrors.SessionNotActive()
	}

	payload := SessionEndedPayload{SessionID: ended.ID, Reason: EndReasonPartnerLeft}
	if partner := ended.Partner(user.ID); partner != "" {
		publish(ctx, s.publisher, fanout.UserChannel(partner), fanout.EventSessionEnded, payload)
	}
	publish(ctx, s.publisher, fanout.ChatChannel(ended.ID), fanout.EventSessionEnded, payload)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionEnd,
		UserID:    user.ID,
		SessionID: ended.ID,
	})
	log.Info().Str("sessionId", ended.ID).Str("userId", user.ID).Msg("session ended")

	return ended, nil
}

func (s *SessionService) Messages(ctx context.Context, user *model.User, sessionID string, limit, offset int) ([]model.Message, int, error) {
	if _, err := s.Authorize(ctx, user, sessionID); err != nil {
		return nil, 0, err
	}

	msgs, err := s.messages.FindBySessionID(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	total, err := s.messages.CountBySessionID(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, total, nil
}

// AppendMessage stores a chat message and returns its id.
func (s *SessionService) AppendMessage(ctx context.Context, sessionID, senderID, content string) (*model.Message, error) {
	msg, err := s.messages.Create(ctx, model.CreateMessageParams{
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}
