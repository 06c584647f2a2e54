// Package apperr provides the structured errors surfaced to API callers:
// a machine-readable code, a human message, and an optional detail payload.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeNotMember          Code = "NOT_MEMBER"
	CodeTargetNotMember    Code = "TARGET_NOT_MEMBER"
	CodeInvalidCode        Code = "INVALID_CODE"
	CodeInactiveInvite     Code = "INACTIVE_INVITE"
	CodeAlreadyInOtherHome Code = "ALREADY_IN_OTHER_HOME"
	CodeOwnerMustTransfer  Code = "OWNER_MUST_TRANSFER_FIRST"
	CodeCannotKickOwner    Code = "CANNOT_KICK_OWNER"
	CodeNewOwnerNotMember  Code = "NEW_OWNER_NOT_MEMBER"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodeStateChangedRetry  Code = "STATE_CHANGED_RETRY"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeInternal           Code = "INTERNAL"
)

type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches one detail key and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// From extracts an *Error from err, wrapping unknown errors as INTERNAL so
// store and driver failures never leak raw text to callers.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: CodeInternal, Message: "internal error"}
}

// HTTPStatus maps an error code to its response status. Domain invariant
// violations are client-recoverable, never 5xx.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden, CodeCannotKickOwner, CodeOwnerMustTransfer:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotMember, CodeTargetNotMember, CodeNewOwnerNotMember,
		CodeAlreadyInOtherHome, CodeInactiveInvite:
		return http.StatusConflict
	case CodeStateChangedRetry:
		return http.StatusConflict
	case CodeQuotaExceeded:
		return http.StatusPaymentRequired
	case CodeInvalidCode, CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
