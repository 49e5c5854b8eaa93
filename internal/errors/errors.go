// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation_error"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeInvalidTransition ErrorType = "invalid_transition"
	ErrorTypeUnknownCandidate  ErrorType = "unknown_candidate"
	ErrorTypeProvider          ErrorType = "provider_error"
	ErrorTypePersistence       ErrorType = "persistence_error"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeTimeout           ErrorType = "timeout"
)

// AppError is the error shape shared by the workflow, the store and the API.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // stable code returned to clients
}

// Error implements error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds an AppError with the default code for errType.
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// WithCode overrides the client-facing code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewInvalidTransitionError reports a stage skip or an action on a project
// the caller cannot see.
func NewInvalidTransitionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeInvalidTransition, message, originalError)
}

// NewUnknownCandidateError reports a choice against a stale or mismatched batch.
func NewUnknownCandidateError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnknownCandidate, message, originalError)
}

// NewProviderError wraps a completion backend failure. These never leave the
// generator.
func NewProviderError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeProvider, message, originalError)
}

func NewPersistenceError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypePersistence, message, originalError)
}

func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

func IsInvalidTransitionError(err error) bool {
	return TypeOf(err) == ErrorTypeInvalidTransition
}

func IsUnknownCandidateError(err error) bool {
	return TypeOf(err) == ErrorTypeUnknownCandidate
}

func IsProviderError(err error) bool {
	return TypeOf(err) == ErrorTypeProvider
}

func IsPersistenceError(err error) bool {
	return TypeOf(err) == ErrorTypePersistence
}

func IsUnauthorizedError(err error) bool {
	return TypeOf(err) == ErrorTypeUnauthorized
}

func IsConflictError(err error) bool {
	return TypeOf(err) == ErrorTypeConflict
}

// generateErrorCode maps an error type to its default client code.
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeInvalidTransition:
		return "INVALID_TRANSITION"
	case ErrorTypeUnknownCandidate:
		return "UNKNOWN_CANDIDATE"
	case ErrorTypeProvider:
		return "PROVIDER_ERROR"
	case ErrorTypePersistence:
		return "PERSISTENCE_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError adds context to err, keeping the type of an existing AppError.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
