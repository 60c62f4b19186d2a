package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

// Publisher delivers live events. *fanout.Hub implements it.
type Publisher interface {
	Publish(ctx context.Context, channel string, event fanout.Event) error
}

// UserDirectory resolves user ids to display names.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

const anonymousNickname = "Anonymous"

func displayName(ctx context.Context, users UserDirectory, userID string) string {
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to resolve nickname")
		return anonymousNickname
	}
	if user == nil {
		return anonymousNickname
	}
	return user.Nickname
}

// displayNames resolves many ids in one lookup. Unknown ids map to anonymousNickname.
func displayNames(ctx context.Context, users UserDirectory, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = anonymousNickname
	}
	found, err := users.FindByIDs(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Int("count", len(ids)).Msg("failed to resolve nicknames")
		return names
	}
	for _, u := range found {
		names[u.ID] = u.Nickname
	}
	return names
}

// publish logs instead of failing: the state change it announces is already committed.
func publish(ctx context.Context, pub Publisher, channel, eventType string, data any) {
	event, err := fanout.NewEvent(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to build event")
		return
	}
	if err := pub.Publish(ctx, channel, event); err != nil {
		log.Warn().
			Err(err).
			Str("channel", channel).
			Str("type", eventType).
			Msg("failed to publish event")
	}
}
