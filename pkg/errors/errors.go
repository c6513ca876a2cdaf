// Package errors defines the error taxonomy returned by the HTTP surface.
// Every AppError carries a stable machine code; the HTTP status follows from
// the code unless a constructor overrides it.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// collection workflow
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeAlreadyClaimed       = "ALREADY_CLAIMED"
	CodeInvalidState         = "INVALID_STATE"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"

	// routing and content negotiation
	CodeRouteNotFound      = "ROUTE_NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInvalidContentType = "INVALID_CONTENT_TYPE"

	// idempotency keys
	CodeIdempotencyKeyRequired       = "IDEMPOTENCY_KEY_REQUIRED"
	CodeIdempotencyKeyInvalid        = "IDEMPOTENCY_KEY_INVALID"
	CodeIdempotencyMismatch          = "IDEMPOTENCY_PARAMETER_MISMATCH"
	CodeIdempotencyConcurrentRequest = "IDEMPOTENCY_CONCURRENT_REQUEST"
)

var statusByCode = map[string]int{
	CodeValidationError:              http.StatusBadRequest,
	CodeBadRequest:                   http.StatusBadRequest,
	CodeNotFound:                     http.StatusNotFound,
	CodeConflict:                     http.StatusConflict,
	CodeUnauthorized:                 http.StatusUnauthorized,
	CodeForbidden:                    http.StatusForbidden,
	CodeInternalError:                http.StatusInternalServerError,
	CodeServiceUnavailable:           http.StatusServiceUnavailable,
	CodeInvalidTransition:            http.StatusConflict,
	CodeAlreadyClaimed:               http.StatusConflict,
	CodeInvalidState:                 http.StatusConflict,
	CodeMissingRequiredField:         http.StatusUnprocessableEntity,
	CodeRouteNotFound:                http.StatusNotFound,
	CodeMethodNotAllowed:             http.StatusMethodNotAllowed,
	CodeInvalidContentType:           http.StatusUnsupportedMediaType,
	CodeIdempotencyKeyRequired:       http.StatusBadRequest,
	CodeIdempotencyKeyInvalid:        http.StatusBadRequest,
	CodeIdempotencyMismatch:          http.StatusUnprocessableEntity,
	CodeIdempotencyConcurrentRequest: http.StatusConflict,
}

// StatusFor returns the HTTP status registered for code, or 500.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	// Recoverable is set when the client can pick another target and retry.
	Recoverable bool  `json:"recoverable,omitempty"`
	Err         error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets one detail entry and returns e for chaining.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// Wrap records the underlying cause; it is never serialized.
func (e *AppError) Wrap(cause error) *AppError {
	e.Err = cause
	return e
}

// New builds an error whose status comes from the code table.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: StatusFor(code)}
}

// Newf is New with a formatted message.
func Newf(code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewAppError builds an error with an explicit status.
func NewAppError(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func ErrValidation(message string) *AppError {
	return New(CodeValidationError, message)
}

// ErrValidationWithFields reports one message per offending field.
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	e := ErrValidation(message)
	for field, msg := range fields {
		e.WithDetail(field, msg)
	}
	return e
}

func ErrBadRequest(message string) *AppError {
	return New(CodeBadRequest, message)
}

func ErrNotFound(resource string) *AppError {
	return Newf(CodeNotFound, "%s not found", resource)
}

func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

func ErrConflict(message string) *AppError {
	return New(CodeConflict, message)
}

func ErrUnauthorized(message string) *AppError {
	return New(CodeUnauthorized, orDefault(message, "authentication required"))
}

func ErrForbidden(message string) *AppError {
	return New(CodeForbidden, orDefault(message, "access denied"))
}

func ErrInternal(message string) *AppError {
	return New(CodeInternalError, orDefault(message, "an internal error occurred"))
}

func ErrServiceUnavailable(dependency string) *AppError {
	return Newf(CodeServiceUnavailable, "%s is temporarily unavailable", dependency)
}

// ErrInvalidTransition reports a status change the lifecycle does not allow.
func ErrInvalidTransition(from, to string) *AppError {
	return Newf(CodeInvalidTransition, "cannot transition from %s to %s", from, to).
		WithDetail("from", from).
		WithDetail("to", to)
}

// ErrAlreadyClaimed reports a claim lost to another collector.
func ErrAlreadyClaimed(collectionID string) *AppError {
	e := New(CodeAlreadyClaimed, "collection has already been claimed by another collector").
		WithDetail("collectionId", collectionID)
	e.Recoverable = true
	return e
}

func ErrInvalidState(message string) *AppError {
	return New(CodeInvalidState, message)
}

func ErrMissingRequiredField(field string) *AppError {
	return Newf(CodeMissingRequiredField, "%s is required", field).WithDetail("field", field)
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// HasCode reports whether err carries an AppError with code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// FromError returns err's AppError, wrapping anything else as INTERNAL_ERROR.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return ErrInternal("").Wrap(err)
}
