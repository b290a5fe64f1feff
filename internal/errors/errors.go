package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeInternal     ErrorType = "INTERNAL"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeUpstream     ErrorType = "UPSTREAM"
	ErrorTypeConflict     ErrorType = "CONFLICT"
)

// Error is the typed error returned to callers of the session service.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Forbidden(message string) *Error {
	return &Error{
		Type:    ErrorTypeForbidden,
		Message: message,
		Code:    http.StatusForbidden,
	}
}

func Conflict(message string) *Error {
	return &Error{
		Type:    ErrorTypeConflict,
		Message: message,
		Code:    http.StatusConflict,
	}
}

// Upstream wraps a failure talking to Gitea. The friendly message is
// derived with ParseError so the caller sees the same text a user would.
func Upstream(err error, messages Messages) *Error {
	friendly := ParseError(err, messages)
	code := http.StatusBadGateway
	var status *StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusUnauthorized {
		code = http.StatusUnauthorized
	}
	return &Error{
		Type:    ErrorTypeUpstream,
		Message: friendly.ErrorMessage,
		Code:    code,
		Details: map[string]any{
			"recoverable": friendly.IsRecoverable,
			"cause":       errString(err),
		},
	}
}

// StatusError reports a non-2xx response from the REST API.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the REST API.
func IsNotFound(err error) bool {
	return HasStatus(err, http.StatusNotFound)
}

func HasStatus(err error, code int) bool {
	var status *StatusError
	return errors.As(err, &status) && status.StatusCode == code
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
