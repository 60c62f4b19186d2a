package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/audit"
	"github.com/fusetalk/fusetalk-server/internal/config"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/httputil"
)

const (
	window        = time.Minute
	sweepInterval = time.Minute
	// Keys idle for longer than this are dropped on the next sweep.
	idleExpiry = 5 * time.Minute
)

// Limiter is a sliding one-minute window keyed by an arbitrary string.
type Limiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

// RateLimiter keeps windows in process. It is used when no redis is configured.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		hits:      make(map[string][]time.Time),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// sweep drops keys whose newest hit is older than idleExpiry.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < sweepInterval {
		return
	}
	rl.lastSweep = now
	for key, hits := range rl.hits {
		if len(hits) == 0 || now.Sub(hits[len(hits)-1]) > idleExpiry {
			delete(rl.hits, key)
		}
	}
}

func (rl *RateLimiter) Check(_ context.Context, key string, limit int) (bool, int, int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	// Hits are appended in time order, so the live window is a suffix.
	hits := rl.hits[key]
	cut := now.Add(-window)
	i := 0
	for i < len(hits) && !hits[i].After(cut) {
		i++
	}
	hits = hits[i:]

	resetAt := now.Add(window).Unix()
	if len(hits) > 0 {
		resetAt = hits[0].Add(window).Unix()
	}

	if len(hits) >= limit {
		rl.hits[key] = hits
		return false, 0, resetAt
	}

	hits = append(hits, now)
	rl.hits[key] = hits
	return true, limit - len(hits), resetAt
}

// RateLimitMiddleware limits authenticated users per scope. Anonymous
// requests pass through; the auth middleware in front of it rejects them.
type RateLimitMiddleware struct {
	limiter Limiter
	scope   string
	limit   int
}

func NewRateLimitMiddleware(limiter Limiter, scope string, limit int) *RateLimitMiddleware {
	if limit <= 0 {
		limit = config.DefaultRateLimitPerMin
	}
	return &RateLimitMiddleware{limiter: limiter, scope: scope, limit: limit}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := m.limiter.Check(r.Context(), m.scope+":"+user.ID, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			log.Warn().Str("userId", user.ID).Str("scope", m.scope).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				UserID:  user.ID,
				Details: map[string]interface{}{"scope": m.scope},
			})
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
