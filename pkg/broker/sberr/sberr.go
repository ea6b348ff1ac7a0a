// Package sberr provides the error taxonomy shared by every broker
// component. This is a leaf package with no internal dependencies, designed
// to be imported by the filter engine, the stores, and the HTTP boundary
// without causing circular imports.
//
// Import graph: sberr <- filter <- store <- broker <- api
package sberr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of error that occurred. The String form is the
// machine-readable code surfaced to clients and is stable across versions.
type Code int

const (
	// CodeUnknown is the zero value; uncategorized failures.
	CodeUnknown Code = iota

	// CodeEntityNotFound indicates the queue/topic/subscription/rule does not exist.
	CodeEntityNotFound

	// CodeEntityAlreadyExists indicates a non-idempotent create collided.
	CodeEntityAlreadyExists

	// CodeInvalidEntityName indicates the entity name violates naming rules.
	CodeInvalidEntityName

	// CodeMessageNotFound indicates the referenced message does not exist.
	CodeMessageNotFound

	// CodeMessageSizeExceeded indicates the message body exceeds the entity limit.
	CodeMessageSizeExceeded

	// CodeMessageLockLost indicates the lock token is unknown or expired.
	CodeMessageLockLost

	// CodeSessionNotFound indicates no messages exist for the session.
	CodeSessionNotFound

	// CodeSessionLockLost indicates the session lock is unknown or expired.
	CodeSessionLockLost

	// CodeSessionAlreadyLocked indicates the session lock is held by another consumer.
	CodeSessionAlreadyLocked

	// CodeQuotaExceeded indicates an entity-count, size, or rate quota violation.
	CodeQuotaExceeded

	// CodeInvalidOperation indicates the operation is not valid for the entity state.
	CodeInvalidOperation

	// CodeOperationTimeout indicates the operation deadline elapsed.
	CodeOperationTimeout

	// CodeConnectionError indicates a transient connectivity failure.
	CodeConnectionError

	// CodeCircuitBreakerOpen indicates the named breaker is rejecting calls.
	CodeCircuitBreakerOpen

	// CodeInvalidQueryParameterValue indicates a filter expression failed to
	// lex, parse, or validate.
	CodeInvalidQueryParameterValue

	// CodeTypeMismatch indicates a filter expression failed type checking.
	CodeTypeMismatch

	// CodeUnknownFunction indicates a filter expression calls an unknown function.
	CodeUnknownFunction

	// CodeResourceLimitExceeded indicates a filter expression exceeds complexity limits.
	CodeResourceLimitExceeded

	// CodeQueryTimeout indicates filter evaluation exceeded its deadline.
	CodeQueryTimeout

	// CodeEvaluationError indicates a runtime filter failure (division by
	// zero, overflow, impossible cast).
	CodeEvaluationError
)

// String returns the stable machine-readable code.
func (c Code) String() string {
	switch c {
	case CodeEntityNotFound:
		return "EntityNotFound"
	case CodeEntityAlreadyExists:
		return "EntityAlreadyExists"
	case CodeInvalidEntityName:
		return "InvalidEntityName"
	case CodeMessageNotFound:
		return "MessageNotFound"
	case CodeMessageSizeExceeded:
		return "MessageSizeExceeded"
	case CodeMessageLockLost:
		return "MessageLockLost"
	case CodeSessionNotFound:
		return "SessionNotFound"
	case CodeSessionLockLost:
		return "SessionLockLost"
	case CodeSessionAlreadyLocked:
		return "SessionAlreadyLocked"
	case CodeQuotaExceeded:
		return "QuotaExceeded"
	case CodeInvalidOperation:
		return "InvalidOperation"
	case CodeOperationTimeout:
		return "OperationTimeout"
	case CodeConnectionError:
		return "ConnectionError"
	case CodeCircuitBreakerOpen:
		return "CircuitBreakerOpen"
	case CodeInvalidQueryParameterValue:
		return "InvalidQueryParameterValue"
	case CodeTypeMismatch:
		return "TypeMismatch"
	case CodeUnknownFunction:
		return "UnknownFunction"
	case CodeResourceLimitExceeded:
		return "ResourceLimitExceeded"
	case CodeQueryTimeout:
		return "QueryTimeout"
	case CodeEvaluationError:
		return "EvaluationError"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// Error is the typed error carried across the broker. Details is an
// extensible map with the context a client needs to recover (entity name,
// limits, positions); Transient marks errors the retry wrapper may retry.
type Error struct {
	Code      Code
	Message   string
	Details   map[string]any
	Transient bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetail returns e with an extra detail entry set. The receiver is
// mutated and returned for chaining at construction sites.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ============================================================================
// Entity errors
// ============================================================================

// NewEntityNotFound creates an EntityNotFound error for the named entity.
func NewEntityNotFound(kind, name string) *Error {
	e := New(CodeEntityNotFound, "%s %q not found", kind, name)
	return e.WithDetail("entity_type", kind).WithDetail("entity_name", name)
}

// NewEntityAlreadyExists creates an EntityAlreadyExists error.
func NewEntityAlreadyExists(kind, name string) *Error {
	e := New(CodeEntityAlreadyExists, "%s %q already exists", kind, name)
	return e.WithDetail("entity_type", kind).WithDetail("entity_name", name)
}

// NewInvalidEntityName creates an InvalidEntityName error with the reason
// the name was rejected.
func NewInvalidEntityName(name, reason string) *Error {
	e := New(CodeInvalidEntityName, "invalid entity name %q: %s", name, reason)
	return e.WithDetail("entity_name", name).WithDetail("reason", reason)
}

// ============================================================================
// Message errors
// ============================================================================

// NewMessageNotFound creates a MessageNotFound error.
func NewMessageNotFound(messageID string) *Error {
	return New(CodeMessageNotFound, "message %q not found", messageID).
		WithDetail("message_id", messageID)
}

// NewMessageSizeExceeded creates a MessageSizeExceeded error.
func NewMessageSizeExceeded(actual, max int64) *Error {
	e := New(CodeMessageSizeExceeded, "message size %d exceeds entity limit %d", actual, max)
	return e.WithDetail("actual_size", actual).WithDetail("max_size", max)
}

// NewMessageLockLost creates a MessageLockLost error. Unknown and expired
// lock tokens are reported identically so a token cannot be probed.
func NewMessageLockLost() *Error {
	return New(CodeMessageLockLost, "the lock supplied is invalid or has expired")
}

// ============================================================================
// Session errors
// ============================================================================

// NewSessionNotFound creates a SessionNotFound error.
func NewSessionNotFound(sessionID string) *Error {
	return New(CodeSessionNotFound, "session %q not found", sessionID).
		WithDetail("session_id", sessionID)
}

// NewSessionLockLost creates a SessionLockLost error.
func NewSessionLockLost(sessionID string) *Error {
	return New(CodeSessionLockLost, "the session lock for %q is invalid or has expired", sessionID).
		WithDetail("session_id", sessionID)
}

// NewSessionAlreadyLocked creates a SessionAlreadyLocked error.
func NewSessionAlreadyLocked(sessionID string) *Error {
	return New(CodeSessionAlreadyLocked, "session %q is locked by another receiver", sessionID).
		WithDetail("session_id", sessionID)
}

// ============================================================================
// Quota and rate errors
// ============================================================================

// NewQuotaExceeded creates a QuotaExceeded error for a count/size quota.
func NewQuotaExceeded(quotaType string, current, max int) *Error {
	e := New(CodeQuotaExceeded, "%s quota exceeded (%d of %d)", quotaType, current, max)
	return e.WithDetail("quota_type", quotaType).
		WithDetail("current", current).
		WithDetail("max", max)
}

// NewRateLimited creates the rate_limit flavor of QuotaExceeded, carrying
// the number of seconds after which the caller should retry.
func NewRateLimited(entity string, retryAfterSeconds float64) *Error {
	e := New(CodeQuotaExceeded, "rate limit exceeded for %q", entity)
	e.Transient = true
	return e.WithDetail("quota_type", "rate_limit").
		WithDetail("entity_name", entity).
		WithDetail("retry_after_seconds", retryAfterSeconds)
}

// ============================================================================
// Operational errors
// ============================================================================

// NewInvalidOperation creates an InvalidOperation error.
func NewInvalidOperation(operation, reason string) *Error {
	e := New(CodeInvalidOperation, "operation %s is not valid: %s", operation, reason)
	return e.WithDetail("operation", operation).WithDetail("reason", reason)
}

// NewOperationTimeout creates a transient OperationTimeout error.
func NewOperationTimeout(operation string, seconds float64) *Error {
	e := New(CodeOperationTimeout, "operation %s timed out after %.1fs", operation, seconds)
	e.Transient = true
	return e.WithDetail("operation", operation).WithDetail("timeout_seconds", seconds)
}

// NewConnectionError creates a transient ConnectionError.
func NewConnectionError(reason string) *Error {
	e := New(CodeConnectionError, "connection error: %s", reason)
	e.Transient = true
	return e.WithDetail("reason", reason)
}

// NewCircuitBreakerOpen creates a CircuitBreakerOpen error for the named breaker.
func NewCircuitBreakerOpen(name string, failureCount uint32) *Error {
	e := New(CodeCircuitBreakerOpen, "circuit breaker %q is open", name)
	e.Transient = true
	return e.WithDetail("breaker_name", name).WithDetail("failure_count", failureCount)
}

// ============================================================================
// Filter engine errors
// ============================================================================

// NewSyntaxError creates an InvalidQueryParameterValue error with the
// source position (1-based line and column) and a fix-it suggestion.
func NewSyntaxError(message string, line, column int, suggestion string) *Error {
	e := New(CodeInvalidQueryParameterValue, "syntax error at line %d, column %d: %s", line, column, message)
	e.WithDetail("position", map[string]any{"line": line, "column": column})
	if suggestion != "" {
		e.WithDetail("suggestion", suggestion)
	}
	return e
}

// NewTypeMismatch creates a TypeMismatch error for the filter type checker.
func NewTypeMismatch(expected, actual string, line, column int) *Error {
	e := New(CodeTypeMismatch, "type mismatch at line %d, column %d: expected %s, got %s", line, column, expected, actual)
	return e.WithDetail("expected", expected).
		WithDetail("actual", actual).
		WithDetail("position", map[string]any{"line": line, "column": column})
}

// NewUnknownFunction creates an UnknownFunction error with an optional
// closest-match suggestion.
func NewUnknownFunction(name, suggestion string) *Error {
	e := New(CodeUnknownFunction, "unknown function %q", name)
	e.WithDetail("function", name)
	if suggestion != "" {
		e.Message = fmt.Sprintf("unknown function %q (did you mean %q?)", name, suggestion)
		e.WithDetail("suggestion", suggestion)
	}
	return e
}

// NewResourceLimit creates a ResourceLimitExceeded error for filters whose
// complexity exceeds the configured maximum.
func NewResourceLimit(complexity, max float64) *Error {
	e := New(CodeResourceLimitExceeded, "filter complexity %.2f exceeds maximum %.2f", complexity, max)
	return e.WithDetail("complexity", complexity).WithDetail("max", max)
}

// NewQueryTimeout creates a transient QueryTimeout error raised mid-scan.
func NewQueryTimeout(elapsed, limit float64) *Error {
	e := New(CodeQueryTimeout, "query exceeded deadline (%.3fs elapsed, %.3fs limit)", elapsed, limit)
	e.Transient = true
	return e.WithDetail("elapsed_seconds", elapsed).WithDetail("limit_seconds", limit)
}

// NewEvaluationError creates an EvaluationError for runtime filter failures.
func NewEvaluationError(format string, args ...any) *Error {
	return New(CodeEvaluationError, format, args...)
}

// ============================================================================
// Inspection helpers
// ============================================================================

// AsError unwraps err to the taxonomy Error, if it carries one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or CodeUnknown.
func CodeOf(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeUnknown
}

// IsTransient reports whether err is retryable by the resilience wrappers.
func IsTransient(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Transient
	}
	return false
}

// IsNotFound reports whether err is an entity, message, or session
// not-found error.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case CodeEntityNotFound, CodeMessageNotFound, CodeSessionNotFound:
		return true
	}
	return false
}

// HTTPStatus maps err to the HTTP status code the boundary should return.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeEntityNotFound, CodeMessageNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeEntityAlreadyExists, CodeSessionAlreadyLocked:
		return http.StatusConflict
	case CodeInvalidEntityName, CodeInvalidOperation,
		CodeInvalidQueryParameterValue, CodeTypeMismatch,
		CodeUnknownFunction, CodeResourceLimitExceeded, CodeEvaluationError:
		return http.StatusBadRequest
	case CodeMessageSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case CodeMessageLockLost, CodeSessionLockLost:
		return http.StatusGone
	case CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	case CodeOperationTimeout, CodeQueryTimeout:
		return http.StatusGatewayTimeout
	case CodeConnectionError, CodeCircuitBreakerOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
