// Package errors carries the service error taxonomy: capacity rejections and
// persistence failures surface to callers, transport and dependency
// degradation stay local.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType groups errors by how the boundary layer should respond.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"
	TypeCapacity     ErrorType = "capacity"
	TypeRateLimit    ErrorType = "rate_limit"
	TypePersistence  ErrorType = "persistence"
	TypeTransport    ErrorType = "transport"
	TypeInternal     ErrorType = "internal"
	TypeNotFound     ErrorType = "not_found"
	TypeUnauthorized ErrorType = "unauthorized"
)

// Severity classifies operational impact for logging and alerting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError is the structured error passed between layers.
type AppError struct {
	Type        ErrorType
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Err         error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithSeverity overrides the default severity.
func (e *AppError) WithSeverity(s Severity) *AppError {
	e.Severity = s
	return e
}

// WithUserMessage sets the client-facing message.
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New creates an AppError without a cause.
func New(t ErrorType, code, message string) *AppError {
	return &AppError{Type: t, Code: code, Message: message, Severity: SeverityMedium}
}

// Wrap creates an AppError around a cause.
func Wrap(err error, t ErrorType, code, message string) *AppError {
	return &AppError{Type: t, Code: code, Message: message, Severity: SeverityMedium, Err: err}
}

// AsAppError extracts an AppError from any error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ConnectionLimitError signals the per-user stream connection cap.
func ConnectionLimitError(userID string, limit int) *AppError {
	return New(TypeCapacity, "CONNECTION_LIMIT_EXCEEDED",
		fmt.Sprintf("user %s already holds %d stream connections", userID, limit)).
		WithUserMessage("Too many connections")
}

// RateLimitedError signals a denied rate-limit check.
func RateLimitedError(prefix string) *AppError {
	return New(TypeRateLimit, "RATE_LIMIT_EXCEEDED",
		fmt.Sprintf("rate limit exceeded for policy %q", prefix)).
		WithUserMessage("Too many requests, retry later")
}

// PersistenceError signals a failed durable write or read.
func PersistenceError(operation string, cause error) *AppError {
	return Wrap(cause, TypePersistence, "PERSISTENCE_FAILED",
		fmt.Sprintf("notification store %s failed", operation)).
		WithSeverity(SeverityHigh).
		WithUserMessage("Storage is temporarily unavailable. Please try again later.")
}

// NotFoundError signals a missing notification row.
func NotFoundError(id string) *AppError {
	return New(TypeNotFound, "NOTIFICATION_NOT_FOUND",
		fmt.Sprintf("notification %s not found", id)).
		WithSeverity(SeverityLow).
		WithUserMessage("Notification not found")
}

// UnauthorizedError signals a request with no established identity.
func UnauthorizedError() *AppError {
	return New(TypeUnauthorized, "IDENTITY_MISSING",
		"request carries no authenticated user identity").
		WithSeverity(SeverityLow).
		WithUserMessage("Authentication required")
}

// ValidationError signals a malformed request body or parameter.
func ValidationError(reason string) *AppError {
	return New(TypeValidation, "INVALID_REQUEST", reason).
		WithSeverity(SeverityLow).
		WithUserMessage(reason)
}

// ConfigurationError signals an unusable configuration value.
func ConfigurationError(field, reason string) *AppError {
	return New(TypeInternal, "CONFIGURATION_ERROR",
		fmt.Sprintf("configuration error in %s: %s", field, reason)).
		WithSeverity(SeverityCritical)
}
