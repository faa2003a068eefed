package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes produced locally or mapped from HTTP outcomes.
const (
	CodeTimeout       = "F0002"
	CodeAborted       = "F0003"
	CodeUnreachable   = "B0001"
	CodeServer500     = "B0500"
	CodeClientFailure = "C0001"
	CodeUnauthorized  = "C0002"
	CodeDecrypt       = "E4009"
	CodeUnknownServer = "E5001"
)

// ErrorType classifies an error code by its prefix.
type ErrorType string

const (
	TypeLocal       ErrorType = "local"
	TypeMaintenance ErrorType = "maintenance"
	TypeClient      ErrorType = "client"
	TypeBusiness    ErrorType = "business"
	TypeServer      ErrorType = "server"
)

// TypeOf maps a code to its class. Unknown prefixes are treated as server
// errors so that they are never retried.
func TypeOf(code string) ErrorType {
	switch {
	case strings.HasPrefix(code, "F0"):
		return TypeLocal
	case strings.HasPrefix(code, "B0"):
		return TypeMaintenance
	case strings.HasPrefix(code, "C000"):
		return TypeClient
	case strings.HasPrefix(code, "E4"):
		return TypeBusiness
	default:
		return TypeServer
	}
}

// Error is the structured failure every caller receives instead of a raw
// transport error.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	cause   error
}

func newError(code, msg string, cause error) *Error {
	return &Error{Type: TypeOf(code), Code: code, Message: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", e.Code, e.Type)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is matching by code.
var (
	ErrTimeout      = &Error{Type: TypeLocal, Code: CodeTimeout}
	ErrAborted      = &Error{Type: TypeLocal, Code: CodeAborted}
	ErrUnauthorized = &Error{Type: TypeClient, Code: CodeUnauthorized}
	ErrDecrypt      = &Error{Type: TypeBusiness, Code: CodeDecrypt}
)

// CodeOf extracts the code of a transport error, or "" for other errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is transport class: local conditions,
// upstream outages and client-side network failures. Business and server
// rejections are final.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case TypeLocal, TypeMaintenance, TypeClient:
		return true
	default:
		return false
	}
}
