package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/fusetalk/fusetalk-server/internal/redis"
)

// slidingWindowScript keeps one sorted set of hit timestamps (ms) per key.
// Returns {allowed, remaining, oldest hit ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first >= 2 then
    oldest = tonumber(first[2])
end

if count >= limit then
    return {0, 0, oldest}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)
return {1, limit - count - 1, oldest}
`)

// RedisRateLimiter shares windows across instances. It fails open when redis errors.
type RedisRateLimiter struct {
	client *redisclient.Client
}

func NewRedisRateLimiter(client *redisclient.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (rl *RedisRateLimiter) Check(ctx context.Context, key string, limit int) (bool, int, int64) {
	now := time.Now()
	failOpen := func() (bool, int, int64) {
		return true, limit - 1, now.Add(window).Unix()
	}

	res, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{redisclient.RateLimitKey("http", key)},
		now.UnixMilli(), window.Milliseconds(), limit,
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed, allowing request")
		return failOpen()
	}
	if len(res) != 3 {
		log.Warn().Ints64("result", res).Str("key", key).Msg("unexpected redis rate limit result")
		return failOpen()
	}

	resetAt := time.UnixMilli(res[2]).Add(window).Unix()
	return res[0] == 1, int(res[1]), resetAt
}

var (
	_ Limiter = (*RateLimiter)(nil)
	_ Limiter = (*RedisRateLimiter)(nil)
)
