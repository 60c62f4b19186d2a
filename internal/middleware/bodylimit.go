package middleware

import (
	"net/http"

	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/httputil"
)

// DefaultMaxBodySize covers the largest JSON body the API accepts with room to spare.
const DefaultMaxBodySize = 64 << 10

type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

// Handler refuses declared oversize bodies up front and caps the rest while
// they are read. Handlers see *http.MaxBytesError from the capped reader.
func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > m.maxSize {
			httputil.WriteError(w, apperrors.New(apperrors.ErrCodePayloadTooLarge, "Request body too large"))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
