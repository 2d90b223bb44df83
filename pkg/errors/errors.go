// Package errors carries the typed error codes the API maps onto HTTP
// responses. Services return *Error; handlers never pick status codes.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodePeriodClosed  Code = "PERIOD_ALREADY_CLOSED"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is what the response writer needs to know about a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	opaque    = false
	detailed  = true
)

func meta(status int, retry bool, public string, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retry, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, final, "validation failed", detailed),
	CodeUnauthorized:  meta(http.StatusUnauthorized, final, "authentication required", opaque),
	CodeForbidden:     meta(http.StatusForbidden, final, "access denied", opaque),
	CodeNotFound:      meta(http.StatusNotFound, final, "resource not found", opaque),
	CodeConflict:      meta(http.StatusConflict, final, "conflict detected", opaque),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, final, "state transition disallowed", detailed),
	CodePeriodClosed:  meta(http.StatusConflict, final, "billing period already closed", detailed),
	CodeIdempotency:   meta(http.StatusConflict, final, "idempotency key reused", detailed),
	CodeRateLimit:     meta(http.StatusTooManyRequests, final, "rate limit exceeded", opaque),
	CodeInternal:      meta(http.StatusInternalServerError, retryable, "internal server error", opaque),
	CodeDependency:    meta(http.StatusServiceUnavailable, retryable, "dependency unavailable", detailed),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure with an optional cause and client-safe details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf formats the message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches details and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return As(err).codeOrEmpty() == code
}

func (e *Error) codeOrEmpty() Code {
	if e == nil {
		return ""
	}
	return e.code
}
