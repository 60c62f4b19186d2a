package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/audit"
	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/httputil"
	"github.com/fusetalk/fusetalk-server/internal/model"
	"github.com/fusetalk/fusetalk-server/internal/util"
)

type contextKey string

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

type TokenLookup interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
}

type AuthMiddleware struct {
	users TokenLookup
}

func NewAuthMiddleware(users TokenLookup) *AuthMiddleware {
	return &AuthMiddleware{users: users}
}

// Handler rejects requests without a valid bearer token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.resolve(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Optional attaches the user when the token is valid and lets the request
// through either way. Websocket routes use it so the relay can answer with a close code.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.resolve(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (m *AuthMiddleware) resolve(r *http.Request) (*model.User, error) {
	token := extractToken(r)
	if token == "" {
		return nil, apperrors.Unauthenticated("Missing authentication token")
	}

	user, err := m.users.FindByTokenHash(r.Context(), util.HashToken(token))
	if err != nil {
		log.Error().Err(err).Msg("auth middleware: database error")
		return nil, apperrors.Internal("Authentication failed")
	}
	if user == nil {
		log.Warn().Msg("auth middleware: invalid token attempt")
		audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
		return nil, apperrors.Unauthenticated("Invalid token")
	}
	return user, nil
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
