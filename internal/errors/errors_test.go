package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Route not found")
		assert.Equal(t, "NOT_FOUND: Route not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Backend(cause)
		assert.Contains(t, err.Error(), "BACKEND_ERROR")
		assert.Contains(t, err.Error(), "Linking backend error")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		err := SessionNotFound("S1")
		assert.Equal(t, map[string]string{"session": "S1"}, err.Details)
	})

	t.Run("errors.Is matches by code", func(t *testing.T) {
		wrapped := fmt.Errorf("issue: %w", ExhaustedRetries(10))
		assert.True(t, errors.Is(wrapped, ExhaustedRetries(3)))
		assert.False(t, errors.Is(wrapped, InvalidOrExpiredCode()))
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"MalformedRequest", func() *AppError { return MalformedRequest("bad json") }, ErrCodeMalformedRequest},
		{"UnknownRequestType", func() *AppError { return UnknownRequestType("ping") }, ErrCodeUnknownRequestType},
		{"ExhaustedRetries", func() *AppError { return ExhaustedRetries(10) }, ErrCodeExhaustedRetries},
		{"InvalidOrExpiredCode", InvalidOrExpiredCode, ErrCodeInvalidOrExpiredCode},
		{"SessionNotFound", func() *AppError { return SessionNotFound("S1") }, ErrCodeSessionNotFound},
		{"SessionInUse", func() *AppError { return SessionInUse("S1") }, ErrCodeSessionInUse},
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"RateLimitExceeded", RateLimitExceeded, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
		{"Database", func() *AppError { return Database(errors.New("db")) }, ErrCodeDatabase},
		{"Backend", func() *AppError { return Backend(errors.New("down")) }, ErrCodeBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Run("IsAppError", func(t *testing.T) {
		assert.True(t, IsAppError(InvalidOrExpiredCode()))
		assert.True(t, IsAppError(fmt.Errorf("wrapped: %w", InvalidOrExpiredCode())))
		assert.False(t, IsAppError(errors.New("plain")))
	})

	t.Run("GetCode falls back to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeExhaustedRetries, GetCode(ExhaustedRetries(10)))
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
	})
}
