// Package fanout delivers live events to the connections subscribed to a channel.
// Events are never queued for later: publishing to an empty channel is a no-op.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/fusetalk/fusetalk-server/internal/redis"
)

const (
	subscriberBuffer  = 100
	redisReadyTimeout = 5 * time.Second
)

var ErrHubClosed = errors.New("fanout hub closed")

type Subscriber struct {
	Channel string
	ConnID  string
	// SkipOwn suppresses events whose Sender equals ConnID.
	SkipOwn bool
	Events  chan Event
	Done    chan struct{}

	group   *group
	removed bool
}

type group struct {
	subs   map[*Subscriber]struct{}
	ready  chan struct{}
	cancel context.CancelFunc
	// err is set before ready closes when the redis subscription failed.
	err error
}

// Hub owns channel membership. With a redis client, events travel through
// redis pub/sub so every instance sees them. Without one, delivery stays in process.
type Hub struct {
	redis  *redisclient.Client
	groups map[string]*group
	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(redisClient *redisclient.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		redis:  redisClient,
		groups: make(map[string]*group),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe joins channel. It returns once the subscriber can receive events
// published after the call.
func (h *Hub) Subscribe(ctx context.Context, channel, connID string, skipOwn bool) (*Subscriber, error) {
	sub := &Subscriber{
		Channel: channel,
		ConnID:  connID,
		SkipOwn: skipOwn,
		Events:  make(chan Event, subscriberBuffer),
		Done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	g := h.groups[channel]
	if g == nil {
		g = &group{subs: make(map[*Subscriber]struct{}), ready: make(chan struct{})}
		if h.redis != nil {
			gctx, cancel := context.WithCancel(h.ctx)
			g.cancel = cancel
			go h.subscribeToRedis(gctx, channel, g)
		} else {
			close(g.ready)
		}
		h.groups[channel] = g
	}
	g.subs[sub] = struct{}{}
	sub.group = g
	count := len(g.subs)
	h.mu.Unlock()

	metricSubscribers.Inc()
	log.Debug().
		Str("channel", channel).
		Str("connId", connID).
		Int("clientCount", count).
		Msg("fanout subscriber joined")

	wait, cancel := context.WithTimeout(ctx, redisReadyTimeout)
	defer cancel()
	select {
	case <-g.ready:
		if g.err != nil {
			h.Unsubscribe(sub)
			return nil, fmt.Errorf("subscribe %s: %w", channel, g.err)
		}
		return sub, nil
	case <-wait.Done():
		h.Unsubscribe(sub)
		return nil, wait.Err()
	}
}

// Unsubscribe removes sub from its channel. Calling it more than once is safe.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.removed {
		return
	}
	sub.removed = true
	close(sub.Done)
	metricSubscribers.Dec()

	g := sub.group
	if g == nil {
		return
	}
	delete(g.subs, sub)
	if len(g.subs) == 0 {
		if g.cancel != nil {
			g.cancel()
		}
		if h.groups[sub.Channel] == g {
			delete(h.groups, sub.Channel)
		}
	}

	log.Debug().
		Str("channel", sub.Channel).
		Str("connId", sub.ConnID).
		Int("clientCount", len(g.subs)).
		Msg("fanout subscriber left")
}

func (h *Hub) Publish(ctx context.Context, channel string, event Event) error {
	metricPublished.WithLabelValues(event.Type).Inc()

	if h.redis == nil {
		h.mu.RLock()
		g := h.groups[channel]
		h.mu.RUnlock()
		if g != nil {
			h.deliver(channel, g, event)
		}
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, redisclient.Channel(channel), data).Err()
}

func (h *Hub) subscribeToRedis(ctx context.Context, channel string, g *group) {
	name := redisclient.Channel(channel)
	pubsub := h.redis.Subscribe(ctx, name)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Str("channel", name).Msg("redis pubsub subscribe failed")
		// A failed group must not be reused by later subscribers.
		h.mu.Lock()
		g.err = err
		if h.groups[channel] == g {
			delete(h.groups, channel)
		}
		h.mu.Unlock()
		close(g.ready)
		return
	}
	close(g.ready)

	log.Debug().
		Str("channel", name).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			h.deliver(channel, g, event)
		}
	}
}

func (h *Hub) deliver(channel string, g *group, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range g.subs {
		if sub.SkipOwn && event.Sender != "" && event.Sender == sub.ConnID {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			metricDropped.Inc()
			log.Warn().
				Str("channel", channel).
				Str("connId", sub.ConnID).
				Msg("subscriber event buffer full, dropping event")
		}
	}
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, g := range h.groups {
		for sub := range g.subs {
			if !sub.removed {
				sub.removed = true
				close(sub.Done)
				metricSubscribers.Dec()
			}
		}
	}
	h.groups = make(map[string]*group)
}

func (h *Hub) ClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if g, ok := h.groups[channel]; ok {
		return len(g.subs)
	}
	return 0
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, g := range h.groups {
		total += len(g.subs)
	}
	return total
}
