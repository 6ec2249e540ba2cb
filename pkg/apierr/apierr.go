// Package apierr defines the wire error taxonomy. Every failure that
// reaches a handler boundary is mapped onto one of these codes; handlers
// never invent ad-hoc error strings.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInvalidToken     Code = "INVALID_TOKEN"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeMissingTeam      Code = "MISSING_TEAM"
	CodeMissingSignature Code = "MISSING_SIGNATURE"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeBodyModified     Code = "BODY_MODIFIED"
	CodeUnknownPeer      Code = "UNKNOWN_PEER"
	CodeServerNotTrusted Code = "SERVER_NOT_TRUSTED"
	CodeServerBlocked    Code = "SERVER_BLOCKED"
	CodeInvalidBundle    Code = "INVALID_BUNDLE"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// E is an error carrying a wire code and a client-safe message.
type E struct {
	Code    Code
	Message string
}

func (e *E) Error() string { return string(e.Code) + ": " + e.Message }

// New builds an E with the given code and message.
func New(code Code, msg string) *E { return &E{Code: code, Message: msg} }

// Newf builds an E with a formatted message.
func Newf(code Code, format string, args ...any) *E {
	return &E{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation is shorthand for a VALIDATION_ERROR.
func Validation(msg string) *E { return New(CodeValidation, msg) }

// Forbidden is the uniform ACL denial.
func Forbidden() *E { return New(CodeForbidden, "access denied") }

// NotFound reports a missing or invisible target.
func NotFound(what string) *E { return New(CodeNotFound, what+" not found") }

// From extracts an E from err, wrapping unknown errors as INTERNAL_ERROR
// with an opaque message.
func From(err error) *E {
	var e *E
	if errors.As(err, &e) {
		return e
	}
	return &E{Code: CodeInternal, Message: "internal error"}
}

// Status maps a code to its HTTP status.
func Status(code Code) int {
	switch code {
	case CodeValidation, CodeMissingTeam:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidToken, CodeMissingSignature, CodeInvalidSignature, CodeBodyModified, CodeUnknownPeer:
		return http.StatusUnauthorized
	case CodeForbidden, CodeServerNotTrusted, CodeServerBlocked:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidBundle:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
