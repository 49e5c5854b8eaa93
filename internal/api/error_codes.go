// internal/api/error_codes.go
package api

import (
	"net/http"

	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/workflow"
)

// Codes produced by the HTTP layer itself. Domain codes come from the
// AppError that caused the response.
const (
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
	ErrorCodeInvalidStage   = "INVALID_STAGE"
	ErrorCodeUnauthorized   = "UNAUTHORIZED"
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeInternal       = "INTERNAL_ERROR"
	ErrorCodeRouteNotFound  = "ROUTE_NOT_FOUND"
)

// statusFor maps an AppError type (and for invalid transitions, its code) to
// an HTTP status.
func statusFor(appErr *apperrors.AppError) int {
	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeInvalidTransition:
		if appErr.Code == workflow.CodeProjectNotFound {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case apperrors.ErrorTypeUnknownCandidate, apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
