package response

import (
	"errors"
	"net/http"
	"time"

	"order-intake-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const retryAfterSeconds = "30"

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// WebhookBody is the fixed response body returned to storefront platforms.
type WebhookBody struct {
	Status    string `json:"status"`
	AttemptID string `json:"attempt_id"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Webhook sends the webhook response body with the given status code.
// Retryable responses carry a Retry-After hint for the platform's own retry
// unless one was already set.
func Webhook(c *gin.Context, httpStatus int, body WebhookBody) {
	if body.Retryable && c.Writer.Header().Get("Retry-After") == "" {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(httpStatus, body)
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Error sends an error response. It checks if err is an *apperror.AppError
// and maps it accordingly, otherwise returns 500. The error is attached to
// the gin context so the request logger records the internal cause.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeError(c, http.StatusInternalServerError, "SYS_000", "Internal server error", false)
		return
	}
	writeError(c, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Retryable)
}

func writeError(c *gin.Context, status int, code, message string, retryable bool) {
	if retryable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(status, ErrorResponse{
		ErrorCode: code,
		Message:   message,
		Retryable: retryable,
		RequestID: getRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
