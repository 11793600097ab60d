// Package apperr defines the application error taxonomy and its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuth            Kind = "auth"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindPaymentProvider Kind = "payment_provider"
	KindSignature       Kind = "signature"
	KindRateLimit       Kind = "rate_limit"
	KindInternal        Kind = "internal"
)

// Error is an application error. Code is a translation code (see package i18n).
type Error struct {
	Kind    Kind
	Op      string // e.g. "quote.submit"
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, op, code, message string) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Message: message}
}

// Wrap attaches a kind and context to err.
func Wrap(err error, kind Kind, op, code, message string) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Message: message, Err: err}
}

func Validation(op, code, message string) *Error {
	return New(KindValidation, op, code, message)
}

// Violations builds a validation error carrying per-field details.
func Violations(op string, details map[string]string) *Error {
	e := New(KindValidation, op, "validation_failed", "validation failed")
	e.Details = details
	return e
}

func Auth(op, code, message string) *Error { return New(KindAuth, op, code, message) }

func NotFound(op, code, message string) *Error { return New(KindNotFound, op, code, message) }

func Conflict(op, code, message string) *Error { return New(KindConflict, op, code, message) }

func Internal(err error, op string) *Error {
	return Wrap(err, KindInternal, op, "internal_error", "internal error")
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindSignature:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExceeded:
		return http.StatusPaymentRequired
	case KindPaymentProvider:
		return http.StatusBadGateway
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the translation code and details safe to expose to clients.
// Internal errors never leak their message.
func Public(err error) (code string, details any) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal_error", nil
	}
	if e.Code == "" {
		return e.Message, e.Details
	}
	return e.Code, e.Details
}
