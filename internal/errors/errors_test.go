package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetTypeAndCode(t *testing.T) {
	cases := []struct {
		name string
		err  *AppError
		typ  ErrorType
		code string
		is   func(error) bool
	}{
		{"validation", NewValidationError("bad", nil), ErrorTypeValidation, "VALIDATION_ERROR", IsValidationError},
		{"not found", NewNotFoundError("gone", nil), ErrorTypeNotFound, "NOT_FOUND", IsNotFoundError},
		{"transition", NewInvalidTransitionError("skip", nil), ErrorTypeInvalidTransition, "INVALID_TRANSITION", IsInvalidTransitionError},
		{"candidate", NewUnknownCandidateError("stale", nil), ErrorTypeUnknownCandidate, "UNKNOWN_CANDIDATE", IsUnknownCandidateError},
		{"provider", NewProviderError("down", nil), ErrorTypeProvider, "PROVIDER_ERROR", IsProviderError},
		{"persistence", NewPersistenceError("disk", nil), ErrorTypePersistence, "PERSISTENCE_ERROR", IsPersistenceError},
		{"unauthorized", NewUnauthorizedError("who", nil), ErrorTypeUnauthorized, "UNAUTHORIZED", IsUnauthorizedError},
		{"conflict", NewConflictError("race", nil), ErrorTypeConflict, "CONFLICT", IsConflictError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.typ, tc.err.Type)
			assert.Equal(t, tc.code, tc.err.Code)
			assert.True(t, tc.is(fmt.Errorf("outer: %w", tc.err)))
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPersistenceError("save project", cause)

	assert.Equal(t, "save project: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWithCodeOverridesDefault(t *testing.T) {
	err := NewInvalidTransitionError("project not found", nil).WithCode("PROJECT_NOT_FOUND")
	assert.Equal(t, "PROJECT_NOT_FOUND", err.Code)
	assert.True(t, IsInvalidTransitionError(err))
}

func TestWrapErrorKeepsAppErrorType(t *testing.T) {
	inner := NewUnknownCandidateError("candidate opt1-x not in latest batch", nil)
	wrapped := WrapError(inner, "commit", ErrorTypePersistence)

	require.Error(t, wrapped)
	assert.True(t, IsUnknownCandidateError(wrapped))
	assert.Contains(t, wrapped.Error(), "commit: candidate opt1-x")

	plain := WrapError(errors.New("boom"), "load", ErrorTypePersistence)
	assert.True(t, IsPersistenceError(plain))
	assert.Nil(t, WrapError(nil, "noop", ErrorTypeValidation))
}

func TestTypeOfNonAppError(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.False(t, IsValidationError(nil))
}
