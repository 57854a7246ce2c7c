// Package core holds the error taxonomy shared by the tutor pipeline, the
// store backends and the HTTP gateway.
package core

import (
	"errors"
	"fmt"
)

// Error is a classified failure. It is also the JSON error body returned by
// the gateway.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("%s (code: %s)", msg, e.Code)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// Pipeline stage failures. These surface through the session error state.
	ErrCaptureDenied    ErrorType = "capture_denied_error"
	ErrTranscription    ErrorType = "transcription_error"
	ErrAnswerGeneration ErrorType = "answer_generation_error"
	ErrSynthesis        ErrorType = "synthesis_error"

	// Persistence failures are logged, never shown to the user.
	ErrPersistence ErrorType = "persistence_error"

	// Returned synchronously to callers of the store and the HTTP API.
	ErrValidation     ErrorType = "validation_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
)

// Wrap classifies cause under t.
func Wrap(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, cause: cause}
}

// NewValidationError reports a missing or malformed field.
func NewValidationError(message, param string) *Error {
	return &Error{
		Type:    ErrValidation,
		Message: message,
		Param:   param,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// TypeOf returns the type of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var ce *Error
	if errors.As(err, &ce) && ce != nil {
		return ce.Type
	}
	return ""
}

// IsType reports whether err carries a *Error of type t.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsStageFailure reports whether t is one of the pipeline stage failures.
func IsStageFailure(t ErrorType) bool {
	switch t {
	case ErrCaptureDenied, ErrTranscription, ErrAnswerGeneration, ErrSynthesis:
		return true
	default:
		return false
	}
}
