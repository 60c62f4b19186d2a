package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/audit"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/model"
	"github.com/fusetalk/fusetalk-server/internal/repository"
	"github.com/fusetalk/fusetalk-server/internal/util"
)

const maxSummaryLength = 140

type LikeResult struct {
	Message      string `json:"message"`
	FuseMoment   bool   `json:"fuse_moment"`
	FuseMomentID string `json:"fuse_moment_id,omitempty"`
	Created      bool   `json:"-"`
}

type ContactInfo struct {
	WhatsApp  string `json:"whatsapp"`
	Instagram string `json:"instagram"`
	Telegram  string `json:"telegram"`
	Note      string `json:"note"`
}

func (c ContactInfo) IsEmpty() bool {
	return c.WhatsApp == "" && c.Instagram == "" && c.Telegram == "" && c.Note == ""
}

type FuseMomentView struct {
	model.FuseMoment
	PartnerNickname string       `json:"partner_nickname"`
	TopicTag        string       `json:"topic_tag"`
	ReceivedContact *ContactInfo `json:"received_contact,omitempty"`
}

type FuseMomentPayload struct {
	FuseMomentID string `json:"fuse_moment_id"`
	SessionID    string `json:"session_id"`
	SummaryText  string `json:"summary_text"`
}

type FuseService struct {
	fuse      repository.FuseRepository
	sessions  repository.SessionRepository
	users     UserDirectory
	publisher Publisher
	cipher    *util.FieldCipher
}

func NewFuseService(
	fuse repository.FuseRepository,
	sessions repository.SessionRepository,
	users UserDirectory,
	publisher Publisher,
	cipher *util.FieldCipher,
) *FuseService {
	return &FuseService{
		fuse:      fuse,
		sessions:  sessions,
		users:     users,
		publisher: publisher,
		cipher:    cipher,
	}
}

// Like records the user's like. When the partner already liked the session a
// Fuse Moment is created for both of them.
func (s *FuseService) Like(ctx context.Context, user *model.User, sessionID string) (*LikeResult, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated("Authentication required")
	}
	if !util.IsValidUUID(sessionID) {
		return nil, apperrors.NotFound("Session")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if !session.HasParticipant(user.ID) {
		return nil, apperrors.Forbidden("Not a participant of this session")
	}
	partner := session.Partner(user.ID)
	if partner == "" {
		return nil, apperrors.Conflict("Session has no partner yet")
	}

	created, err := s.fuse.AddLike(ctx, session.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("add like: %w", err)
	}
	if !created {
		return &LikeResult{Message: "Already liked"}, nil
	}

	mutual, err := s.fuse.HasLiked(ctx, session.ID, partner)
	if err != nil {
		return nil, fmt.Errorf("check partner like: %w", err)
	}
	if !mutual {
		return &LikeResult{Message: "Session liked", Created: true}, nil
	}

	moment, err := s.fuse.CreateMoment(ctx, model.CreateFuseMomentParams{
		SessionID:   session.ID,
		UserA:       session.UserA,
		UserB:       *session.UserB,
		SummaryText: s.summary(ctx, session),
	})
	if err != nil {
		return nil, fmt.Errorf("create fuse moment: %w", err)
	}

	payload := FuseMomentPayload{
		FuseMomentID: moment.ID,
		SessionID:    session.ID,
		SummaryText:  moment.SummaryText,
	}
	publish(ctx, s.publisher, fanout.UserChannel(moment.UserA), fanout.EventFuseMoment, payload)
	publish(ctx, s.publisher, fanout.UserChannel(moment.UserB), fanout.EventFuseMoment, payload)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventFuseMoment,
		UserID:    user.ID,
		SessionID: session.ID,
		Details:   map[string]interface{}{"fuse_moment_id": moment.ID},
	})

	return &LikeResult{
		Message:      "Fuse Moment created!",
		FuseMoment:   true,
		FuseMomentID: moment.ID,
		Created:      true,
	}, nil
}

func (s *FuseService) summary(ctx context.Context, session *model.Session) string {
	a := displayName(ctx, s.users, session.UserA)
	b := displayName(ctx, s.users, *session.UserB)
	text := fmt.Sprintf("Great conversation between %s and %s!", a, b)
	if utf8.RuneCountInString(text) > maxSummaryLength {
		runes := []rune(text)
		text = string(runes[:maxSummaryLength])
	}
	return text
}

func (s *FuseService) List(ctx context.Context, user *model.User, limit, offset int) ([]FuseMomentView, int, error) {
	if user == nil {
		return nil, 0, apperrors.Unauthenticated("Authentication required")
	}

	moments, err := s.fuse.FindMomentsByUser(ctx, user.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list fuse moments: %w", err)
	}
	total, err := s.fuse.CountMomentsByUser(ctx, user.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("count fuse moments: %w", err)
	}

	partners := make([]string, len(moments))
	for i, m := range moments {
		partners[i] = m.Partner(user.ID)
	}
	names := displayNames(ctx, s.users, partners)

	views := make([]FuseMomentView, 0, len(moments))
	for i, m := range moments {
		partner := partners[i]
		view := FuseMomentView{
			FuseMoment:      m,
			PartnerNickname: names[partner],
		}
		if session, err := s.sessions.FindByID(ctx, m.SessionID); err == nil && session != nil {
			view.TopicTag = session.TopicTag
		}
		if m.ContactExchanged {
			contact, err := s.fuse.FindContact(ctx, m.ID, partner)
			if err != nil {
				return nil, 0, fmt.Errorf("find contact: %w", err)
			}
			if contact != nil {
				info, err := s.open(contact)
				if err != nil {
					log.Error().Err(err).Str("fuseMomentId", m.ID).Msg("failed to decrypt contact")
				} else {
					view.ReceivedContact = info
				}
			}
		}
		views = append(views, view)
	}
	return views, total, nil
}

// ShareContact stores or replaces the user's contact details for the partner.
func (s *FuseService) ShareContact(ctx context.Context, user *model.User, momentID string, info ContactInfo) error {
	if user == nil {
		return apperrors.Unauthenticated("Authentication required")
	}
	if info.IsEmpty() {
		return apperrors.ValidationError("At least one contact field is required")
	}

	if !util.IsValidUUID(momentID) {
		return apperrors.NotFound("Fuse moment")
	}

	moment, err := s.fuse.FindMomentByID(ctx, momentID)
	if err != nil {
		return fmt.Errorf("find fuse moment: %w", err)
	}
	if moment == nil {
		return apperrors.NotFound("Fuse moment")
	}
	if !moment.HasParticipant(user.ID) {
		return apperrors.Forbidden("Not part of this Fuse Moment")
	}
	receiver := moment.Partner(user.ID)

	sealed, err := s.seal(info)
	if err != nil {
		return fmt.Errorf("encrypt contact: %w", err)
	}

	if _, err := s.fuse.UpsertContact(ctx, model.UpsertContactExchangeParams{
		FuseMomentID: moment.ID,
		SenderID:     user.ID,
		ReceiverID:   receiver,
		WhatsApp:     sealed.WhatsApp,
		Instagram:    sealed.Instagram,
		Telegram:     sealed.Telegram,
		Note:         sealed.Note,
	}); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	if err := s.fuse.MarkContactExchanged(ctx, moment.ID); err != nil {
		return fmt.Errorf("mark contact exchanged: %w", err)
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventContactShare,
		UserID:  user.ID,
		Details: map[string]interface{}{"fuse_moment_id": moment.ID},
	})
	return nil
}

func (s *FuseService) seal(info ContactInfo) (ContactInfo, error) {
	if s.cipher == nil {
		return info, nil
	}
	var out ContactInfo
	fields := []struct {
		name string
		src  string
		dst  *string
	}{
		{"whatsapp", info.WhatsApp, &out.WhatsApp},
		{"instagram", info.Instagram, &out.Instagram},
		{"telegram", info.Telegram, &out.Telegram},
		{"note", info.Note, &out.Note},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		enc, err := s.cipher.Seal(f.name, f.src)
		if err != nil {
			return ContactInfo{}, err
		}
		*f.dst = enc
	}
	return out, nil
}

func (s *FuseService) open(c *model.ContactExchange) (*ContactInfo, error) {
	info := &ContactInfo{
		WhatsApp:  c.WhatsApp,
		Instagram: c.Instagram,
		Telegram:  c.Telegram,
		Note:      c.Note,
	}
	if s.cipher == nil {
		return info, nil
	}
	fields := []struct {
		name string
		val  *string
	}{
		{"whatsapp", &info.WhatsApp},
		{"instagram", &info.Instagram},
		{"telegram", &info.Telegram},
		{"note", &info.Note},
	}
	for _, f := range fields {
		if *f.val == "" {
			continue
		}
		dec, err := s.cipher.Open(f.name, *f.val)
		if err != nil {
			return nil, err
		}
		*f.val = dec
	}
	return info, nil
}
