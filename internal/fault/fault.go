// Package fault defines the typed error taxonomy shared across the service.
// Service code wraps upstream failures into a *Error carrying a stable
// machine-readable code; the HTTP boundary maps codes to status lines.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class across service boundaries.
type Code string

const (
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeCreateSessionFailed    Code = "CREATE_SESSION_FAILED"
	CodeGetSessionFailed       Code = "GET_SESSION_FAILED"
	CodeGetStatusFailed        Code = "GET_STATUS_FAILED"
	CodeEndSessionFailed       Code = "END_SESSION_FAILED"
	CodeSaveTranscriptFailed   Code = "SAVE_TRANSCRIPTION_FAILED"
	CodeNetworkError           Code = "NETWORK_ERROR"
	CodeConnectionError        Code = "CONNECTION_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeForbidden              Code = "FORBIDDEN"
	CodeInvalidRequest         Code = "INVALID_REQUEST"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Error is a typed service error with a machine-readable code and a human
// message. The wrapped cause, if any, is preserved for errors.Is/As.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an upstream cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error code to the status the gateway should respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
