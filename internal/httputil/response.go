package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/fusetalk/fusetalk-server/internal/errors"
)

// retryAfterSeconds is advertised on 503 responses. Queue lock contention clears quickly.
const retryAfterSeconds = "1"

var codeStatus = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:        http.StatusBadRequest,
	apperrors.ErrCodeInvalidInput:      http.StatusBadRequest,
	apperrors.ErrCodeMissingRequired:   http.StatusBadRequest,
	apperrors.ErrCodePayloadTooLarge:   http.StatusRequestEntityTooLarge,
	apperrors.ErrCodeUnauthenticated:   http.StatusUnauthorized,
	apperrors.ErrCodeForbidden:         http.StatusForbidden,
	apperrors.ErrCodeNotFound:          http.StatusNotFound,
	apperrors.ErrCodeConflict:          http.StatusConflict,
	apperrors.ErrCodeSessionNotActive:  http.StatusConflict,
	apperrors.ErrCodeRateLimitExceeded: http.StatusTooManyRequests,
	apperrors.ErrCodeTransient:         http.StatusServiceUnavailable,
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Int("status", status).Msg("write response body")
	}
}

// WriteError answers with the AppError found in err's chain. Anything else is
// reported as a generic internal error so causes never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	status := StatusFromCode(appErr.Code)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	WriteJSON(w, status, ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

// StatusFromCode defaults to 500 for internal, database and unknown codes.
func StatusFromCode(code apperrors.ErrorCode) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
