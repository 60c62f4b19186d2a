package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: Session not found", NotFound("Session").Error())

	err := Transient("Queue is busy, try again", errors.New("lock timeout"))
	assert.Equal(t, "TRANSIENT: Queue is busy, try again (cause: lock timeout)", err.Error())
}

func TestAppError_Chain(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("find session: %w", Database(cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeDatabase, GetCode(err))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Database error", appErr.Message)
}

func TestAppError_WithDetails(t *testing.T) {
	details := map[string]string{"field": "topic_tag"}
	err := ValidationError("Validation failed").WithDetails(details)
	assert.Equal(t, details, err.Details)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  *AppError
		code ErrorCode
		msg  string
	}{
		{Unauthenticated("Authentication required"), ErrCodeUnauthenticated, "Authentication required"},
		{Forbidden("Not a participant"), ErrCodeForbidden, "Not a participant"},
		{NotFound("Fuse moment"), ErrCodeNotFound, "Fuse moment not found"},
		{Conflict("Already shared"), ErrCodeConflict, "Already shared"},
		{SessionNotActive(), ErrCodeSessionNotActive, "Session is not active"},
		{InvalidInput("language", "unsupported"), ErrCodeInvalidInput, "Invalid language: unsupported"},
		{MissingRequired("content"), ErrCodeMissingRequired, "content is required"},
		{RateLimitExceeded(), ErrCodeRateLimitExceeded, "Rate limit exceeded"},
		{Internal("boom"), ErrCodeInternal, "boom"},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.msg, tc.err.Message)
		})
	}
}

func TestPlainErrors(t *testing.T) {
	err := errors.New("standard error")
	assert.False(t, IsAppError(err))
	assert.Equal(t, ErrCodeInternal, GetCode(err))

	appErr, ok := AsAppError(err)
	assert.False(t, ok)
	assert.Nil(t, appErr)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transient("lock timeout", errors.New("55P03"))))
	assert.True(t, IsRetryable(fmt.Errorf("join queue: %w", Transient("lock timeout", nil))))
	assert.False(t, IsRetryable(Forbidden("nope")))
	assert.False(t, IsRetryable(errors.New("boom")))
}
