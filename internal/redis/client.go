package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "fusetalk"
	pingTimeout = 5 * time.Second
)

// Client is the shared connection used for fan-out and rate limiting.
type Client struct {
	*redis.Client
}

// NewClient accepts redis:// and rediss:// URLs and fails fast when the server is unreachable.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return &Client{rdb}, nil
}

// Channel namespaces a fan-out channel name on the shared instance.
func Channel(name string) string {
	return keyPrefix + ":" + name
}

func RateLimitKey(scope, id string) string {
	return keyPrefix + ":ratelimit:" + scope + ":" + id
}
