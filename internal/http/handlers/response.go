// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint: the error
// envelope, the mapping from service input errors to status codes, and the
// success writers.
//
// Example error response:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "empty_claim",
//	  "message": "claim is empty"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/veritas-backend/internal/http/middleware"
	"github.com/tbourn/veritas-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"claim_too_long"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"claim too long"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's NoRoute/NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// inputErrors maps service validation errors to their HTTP status and code.
var inputErrors = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrEmptyClaim, http.StatusBadRequest, ErrCodeEmptyClaim},
	{services.ErrClaimTooLong, http.StatusBadRequest, ErrCodeClaimTooLong},
	{services.ErrInvalidURL, http.StatusBadRequest, ErrCodeInvalidURL},
	{services.ErrInvalidImage, http.StatusBadRequest, ErrCodeInvalidImage},
	{services.ErrImageTooLarge, http.StatusRequestEntityTooLarge, ErrCodeImageTooLarge},
	{services.ErrCredentialFormat, http.StatusBadRequest, ErrCodeInvalidCredential},
	{services.ErrNoCredential, http.StatusConflict, ErrCodeNoCredential},
}

// failErr writes the envelope for a service error. Unknown errors become a
// 500 with fallbackCode.
func failErr(c *gin.Context, err error, fallbackCode string) {
	for _, m := range inputErrors {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.code, err.Error())
			return
		}
	}
	fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
