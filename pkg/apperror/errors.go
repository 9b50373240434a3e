package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Retryable  bool   `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Authentication (AUTH) ----

func ErrInvalidSignature() *AppError {
	return New("AUTH_001", "Invalid webhook signature", http.StatusUnauthorized)
}

func ErrConnectionNotFound() *AppError {
	return New("AUTH_002", "No matching integration connection", http.StatusNotFound)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidState() *AppError {
	return New("AUTH_004", "Invalid or expired OAuth state", http.StatusBadRequest)
}

func ErrStateReplayed() *AppError {
	return New("AUTH_005", "OAuth state has already been used", http.StatusForbidden)
}

// ---- Validation (VAL) ----

// Validation returns a 400 request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidPayload(err error) *AppError {
	return Wrap("VAL_002", "Payload could not be normalized", http.StatusUnprocessableEntity, err)
}

func ErrProductNotFound(err error) *AppError {
	return Wrap("VAL_003", "Product not found on platform", http.StatusUnprocessableEntity, err)
}

func ErrUnsupportedPlatform(platform string) *AppError {
	return New("VAL_004", fmt.Sprintf("Unsupported platform %q", platform), http.StatusNotFound)
}

func ErrNotFound(entity string) *AppError {
	return New("VAL_005", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrPayloadTooLarge(limit int64) *AppError {
	return New("VAL_006", fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

// ---- Configuration (CFG) ----

func ErrInvalidRuleSet(err error) *AppError {
	return Wrap("CFG_001", err.Error(), http.StatusUnprocessableEntity, err)
}

func ErrTokenRefreshFailed(err error) *AppError {
	return Wrap("CFG_002", "Platform token could not be refreshed", http.StatusInternalServerError, err)
}

func ErrPlatformNotConfigured(platform string) *AppError {
	return New("CFG_003", fmt.Sprintf("Platform %q is not configured", platform), http.StatusServiceUnavailable)
}

func ErrMethodNotSupported(platform, method string) *AppError {
	return New("CFG_004", fmt.Sprintf("Platform %q does not support %s connections", platform, method), http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	e := Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
	e.Retryable = true
	return e
}

func ErrTimeout(err error) *AppError {
	e := Wrap("SYS_002", "Processing timed out", http.StatusInternalServerError, err)
	e.Retryable = true
	return e
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

func ErrPlatformUnavailable(err error) *AppError {
	e := Wrap("SYS_004", "Platform API unavailable", http.StatusBadGateway, err)
	e.Retryable = true
	return e
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	e := Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
	e.Retryable = true
	return e
}
