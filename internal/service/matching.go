package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/audit"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/matching"
	"github.com/fusetalk/fusetalk-server/internal/model"
	"github.com/fusetalk/fusetalk-server/internal/repository"
)

type JoinParams struct {
	VibeTag     string            `json:"vibe_tag"`
	Language    string            `json:"language"`
	IsVisitor   bool              `json:"is_visitor"`
	SessionType model.SessionType `json:"session_type"`
}

// Normalize fills defaults and rejects values outside the vocabulary.
func (p *JoinParams) Normalize() error {
	if p.VibeTag == "" {
		p.VibeTag = matching.TagRandom
	}
	if p.Language == "" {
		p.Language = matching.LanguageMixed
	}
	if p.SessionType == "" {
		p.SessionType = model.SessionTypeText
	}

	if !matching.IsVibeTag(p.VibeTag) {
		return apperrors.InvalidInput("vibe_tag", "unknown tag").
			WithDetails(map[string]any{"allowed": matching.VibeTags})
	}
	if !matching.IsLanguage(p.Language) {
		return apperrors.InvalidInput("language", "unsupported language").
			WithDetails(map[string]any{"allowed": matching.Languages})
	}
	if p.SessionType != model.SessionTypeText && p.SessionType != model.SessionTypeVideo {
		return apperrors.InvalidInput("session_type", "must be text or video")
	}
	return nil
}

type JoinResult struct {
	Status        model.JoinStatus `json:"status"`
	SessionID     string           `json:"session_id"`
	MatchedUser   string           `json:"matched_user,omitempty"`
	QueuePosition int              `json:"queue_position,omitempty"`
	Message       string           `json:"message"`
}

type MatchFoundPayload struct {
	SessionID   string `json:"session_id"`
	MatchedUser string `json:"matched_user"`
	Message     string `json:"message"`
}

type QueueUpdatePayload struct {
	Position  int    `json:"position"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type SessionEndedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

const (
	EndReasonPartnerLeft   = "partner_left"
	EndReasonPartnerRejoin = "partner_rejoined_queue"
)

type MatchingService struct {
	queue     repository.Queue
	users     UserDirectory
	publisher Publisher
	queueTTL  time.Duration
	now       func() time.Time
}

func NewMatchingService(
	queue repository.Queue,
	users UserDirectory,
	publisher Publisher,
	queueTTL time.Duration,
) *MatchingService {
	return &MatchingService{
		queue:     queue,
		users:     users,
		publisher: publisher,
		queueTTL:  queueTTL,
		now:       time.Now,
	}
}

// JoinQueue ends the user's open sessions, then pairs them with the best
// waiting candidate or queues them. Events go out only after the unit of work commits.
func (s *MatchingService) JoinQueue(ctx context.Context, user *model.User, params JoinParams) (*JoinResult, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated("Authentication required")
	}
	if err := params.Normalize(); err != nil {
		return nil, err
	}

	var (
		superseded []model.Session
		paired     *model.Session
		tier       string
		waiting    *model.Session
		position   int
	)

	started := s.now()
	err := s.queue.WithinLock(ctx, func(repo repository.SessionRepository) error {
		superseded, paired, waiting, tier, position = nil, nil, nil, "", 0

		ended, err := repo.EndOpenByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("cancel stale sessions: %w", err)
		}
		superseded = ended

		candidate, t, err := s.findCandidate(ctx, repo, user.ID, params)
		if err != nil {
			return err
		}
		if candidate != nil {
			claimed, err := repo.ClaimAndPair(ctx, candidate.ID, user.ID)
			switch {
			case err == nil:
				paired, tier = claimed, t
				return nil
			case errors.Is(err, repository.ErrCandidateTaken):
				metricClaimConflicts.Inc()
				log.Debug().
					Str("userId", user.ID).
					Str("sessionId", candidate.ID).
					Msg("candidate taken by concurrent join, queueing instead")
			default:
				return fmt.Errorf("claim candidate: %w", err)
			}
		}

		waiting, err = repo.CreateWaiting(ctx, model.CreateWaitingSessionParams{
			UserA:       user.ID,
			SessionType: params.SessionType,
			TopicTag:    params.VibeTag,
			Language:    params.Language,
			IsVisitor:   params.IsVisitor,
		})
		if err != nil {
			return fmt.Errorf("create waiting session: %w", err)
		}

		ahead, err := repo.CountWaitingBefore(ctx, waiting)
		if err != nil {
			return fmt.Errorf("count queue position: %w", err)
		}
		position = ahead + 1
		return nil
	})
	metricJoinLatency.Observe(float64(s.now().Sub(started).Milliseconds()))
	if err != nil {
		metricJoins.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("join queue: %w", err)
	}

	s.notifySuperseded(ctx, user, superseded)

	if paired != nil {
		metricJoins.WithLabelValues("matched").Inc()
		metricMatchTier.WithLabelValues(tier).Inc()
		return s.announceMatch(ctx, user, paired, tier), nil
	}

	metricJoins.WithLabelValues("queued").Inc()
	message := fmt.Sprintf("You're in queue (position %d)", position)
	publish(ctx, s.publisher, fanout.UserChannel(user.ID), fanout.EventQueueUpdate, QueueUpdatePayload{
		Position:  position,
		SessionID: waiting.ID,
		Message:   message,
	})

	log.Info().
		Str("userId", user.ID).
		Str("sessionId", waiting.ID).
		Str("vibeTag", params.VibeTag).
		Str("language", params.Language).
		Int("position", position).
		Msg("user queued")

	return &JoinResult{
		Status:        model.JoinStatusQueued,
		SessionID:     waiting.ID,
		QueuePosition: position,
		Message:       message,
	}, nil
}

// findCandidate walks the search tiers in priority order and returns the first hit.
func (s *MatchingService) findCandidate(
	ctx context.Context,
	repo repository.SessionRepository,
	userID string,
	params JoinParams,
) (*model.Session, string, error) {
	for _, tag := range matching.SearchTiers(params.VibeTag) {
		candidate, err := repo.FindCandidate(ctx, repository.CandidateFilter{
			Tag:         tag,
			Language:    params.Language,
			SessionType: params.SessionType,
			Exclude:     userID,
		})
		if err != nil {
			return nil, "", fmt.Errorf("find candidate: %w", err)
		}
		if candidate != nil {
			return candidate, tierName(tag), nil
		}
	}
	return nil, "", nil
}

func tierName(tag *string) string {
	switch {
	case tag == nil:
		return "any"
	case *tag == matching.TagRandom:
		return "random"
	default:
		return "exact"
	}
}

func (s *MatchingService) announceMatch(ctx context.Context, joiner *model.User, session *model.Session, tier string) *JoinResult {
	waiterName := displayName(ctx, s.users, session.UserA)

	publish(ctx, s.publisher, fanout.UserChannel(session.UserA), fanout.EventMatchFound, MatchFoundPayload{
		SessionID:   session.ID,
		MatchedUser: joiner.Nickname,
		Message:     matchMessage(joiner.Nickname),
	})
	publish(ctx, s.publisher, fanout.UserChannel(joiner.ID), fanout.EventMatchFound, MatchFoundPayload{
		SessionID:   session.ID,
		MatchedUser: waiterName,
		Message:     matchMessage(waiterName),
	})

	log.Info().
		Str("sessionId", session.ID).
		Str("userA", session.UserA).
		Str("userB", joiner.ID).
		Str("tier", tier).
		Msg("match found")

	return &JoinResult{
		Status:      model.JoinStatusMatched,
		SessionID:   session.ID,
		MatchedUser: waiterName,
		Message:     matchMessage(waiterName),
	}
}

func matchMessage(nickname string) string {
	return fmt.Sprintf("Great! You're matched with %s", nickname)
}

// notifySuperseded tells partners of sessions ended by a re-join that the conversation is over.
func (s *MatchingService) notifySuperseded(ctx context.Context, user *model.User, sessions []model.Session) {
	for i := range sessions {
		session := &sessions[i]
		if session.UserB == nil {
			continue
		}
		partner := session.Partner(user.ID)
		payload := SessionEndedPayload{SessionID: session.ID, Reason: EndReasonPartnerRejoin}
		publish(ctx, s.publisher, fanout.UserChannel(partner), fanout.EventSessionEnded, payload)
		publish(ctx, s.publisher, fanout.ChatChannel(session.ID), fanout.EventSessionEnded, payload)

		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionSupersede,
			UserID:    user.ID,
			SessionID: session.ID,
			Details:   map[string]interface{}{"partner_id": partner},
		})
	}
}

// LeaveQueue ends the user's waiting sessions and reports whether there were any.
func (s *MatchingService) LeaveQueue(ctx context.Context, user *model.User) (bool, error) {
	if user == nil {
		return false, apperrors.Unauthenticated("Authentication required")
	}

	var n int64
	err := s.queue.WithinLock(ctx, func(repo repository.SessionRepository) error {
		var err error
		n, err = repo.EndWaitingByUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("leave queue: %w", err)
	}

	if n > 0 {
		log.Info().Str("userId", user.ID).Int64("sessions", n).Msg("user left queue")
	}
	return n > 0, nil
}

func (s *MatchingService) GetQueueStats(ctx context.Context) (*model.QueueStats, error) {
	stats, err := s.queue.Sessions().WaitingStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// ExpireStale ends waiting sessions older than the queue TTL.
func (s *MatchingService) ExpireStale(ctx context.Context) (int64, error) {
	if s.queueTTL <= 0 {
		return 0, nil
	}
	n, err := s.queue.Sessions().ExpireWaitingBefore(ctx, s.now().Add(-s.queueTTL))
	if err != nil {
		return 0, fmt.Errorf("expire waiting sessions: %w", err)
	}
	metricExpired.Add(float64(n))
	return n, nil
}
