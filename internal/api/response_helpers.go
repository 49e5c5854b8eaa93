// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ResponseHelper writes success and error responses.
type ResponseHelper struct {
	logger *utils.FieldLogger
}

// NewResponseHelper creates a helper that logs server-side failures to logger.
func NewResponseHelper(logger *utils.Logger) *ResponseHelper {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &ResponseHelper{logger: logger.WithFields(map[string]interface{}{"component": "api"})}
}

// Success writes data with 200.
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes data with 201.
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error writes an error body with an explicit status and code.
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorBody{
		Error:     message,
		Code:      errorCode,
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest writes a 400.
func (rh *ResponseHelper) BadRequest(c *gin.Context, errorCode, message string) {
	rh.Error(c, http.StatusBadRequest, errorCode, message)
}

// Unauthorized writes a 401.
func (rh *ResponseHelper) Unauthorized(c *gin.Context, message string) {
	rh.Error(c, http.StatusUnauthorized, ErrorCodeUnauthorized, message)
}

// NotFound writes a 404.
func (rh *ResponseHelper) NotFound(c *gin.Context, errorCode, message string) {
	rh.Error(c, http.StatusNotFound, errorCode, message)
}

// InternalError writes a 500 without leaking the cause.
func (rh *ResponseHelper) InternalError(c *gin.Context) {
	rh.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "internal server error")
}

// FromError maps err to a response. AppErrors keep their code and message;
// anything else, and every 5xx, is reported as an internal error.
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		rh.logFailure(c, err)
		rh.InternalError(c)
		return
	}

	status := statusFor(appErr)
	if status >= http.StatusInternalServerError {
		rh.logFailure(c, err)
		rh.Error(c, status, appErr.Code, "internal server error")
		return
	}
	rh.Error(c, status, appErr.Code, appErr.Message)
}

func (rh *ResponseHelper) logFailure(c *gin.Context, err error) {
	rh.logger.Error("request failed", map[string]interface{}{
		"request_id": rh.getRequestID(c),
		"method":     c.Request.Method,
		"path":       c.FullPath(),
		"error":      err.Error(),
	})
}

// getRequestID returns the id set by the request id middleware.
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}
