package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
	"github.com/fusetalk/fusetalk-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError logs server-side failures before answering. Client mistakes are not logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch code := apperrors.GetCode(err); {
	case apperrors.IsRetryable(err):
		log.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed, retryable")
	case code == apperrors.ErrCodeInternal || code == apperrors.ErrCodeDatabase:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	httputil.WriteError(w, err)
}

// decodeJSON reads an optional JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.New(apperrors.ErrCodePayloadTooLarge, "Request body too large")
		}
		return apperrors.ValidationError("Invalid request body").WithCause(err)
	}
	return nil
}
