// Package errors provides coded application errors shared by the domain,
// service and transport layers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// ErrorCode is a machine-readable error code.
type ErrorCode string

const (
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeIllegalTransition ErrorCode = "ILLEGAL_STATE_TRANSITION"
	ErrCodeConcurrency       ErrorCode = "CONCURRENCY_CONFLICT"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInternal          ErrorCode = "INTERNAL"
)

// AppError is the error type returned across package boundaries.
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New creates an error with the given code.
func New(code ErrorCode, message string) error {
	return &AppError{Code: code, Message: message}
}

// Wrap annotates err with a code. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// InvalidInput reports a validation failure on a single field.
func InvalidInput(field, message string) error {
	return &AppError{Code: ErrCodeValidation, Field: field, Message: message}
}

// NotFound reports a missing entity for the calling tenant.
func NotFound(entity, id string) error {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// IllegalTransition reports a state machine transition that is not permitted.
func IllegalTransition(entity, from, action string) error {
	return &AppError{
		Code:    ErrCodeIllegalTransition,
		Message: fmt.Sprintf("cannot %s %s in status %q", action, entity, from),
	}
}

// ConcurrencyConflict reports a write against a stale version.
func ConcurrencyConflict(entity, id string, expected int) error {
	return &AppError{
		Code:    ErrCodeConcurrency,
		Message: fmt.Sprintf("%s %q was modified concurrently (expected version %d)", entity, id, expected),
	}
}

// CodeOf returns the code carried by err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// HTTPStatus maps an error to a response status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeIllegalTransition, ErrCodeConcurrency, ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps an error to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch CodeOf(err) {
	case "":
		return codes.OK
	case ErrCodeValidation:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeIllegalTransition:
		return codes.FailedPrecondition
	case ErrCodeConcurrency:
		return codes.Aborted
	case ErrCodeConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}
