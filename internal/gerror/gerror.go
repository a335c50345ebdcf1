// Package gerror provides a typed error carried from core operations up to
// the HTTP edge, so handlers can render the right status code and audience
// without string-matching error messages. Ported and trimmed from the
// teacher's common/gerror package.
package gerror

import (
	"fmt"
	"net/http"
)

type Audience string

const (
	AudienceInternal Audience = "internal"
	AudienceExternal Audience = "external"
)

type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeAlreadyExists Code = "already_exists"
	CodeValidation    Code = "validation"
	CodeConflict      Code = "conflict"
	CodeUnavailable   Code = "unavailable"
	CodeInternal      Code = "internal"
)

type Error struct {
	innerErr       error
	message        string
	audience       Audience
	code           Code
	httpStatusCode int
}

func newError(message string, audience Audience, code Code, httpStatusCode int) Error {
	return Error{message: message, audience: audience, code: code, httpStatusCode: httpStatusCode}
}

func NewErrNotFound(message string) Error {
	return newError(message, AudienceExternal, CodeNotFound, http.StatusNotFound)
}

func NewErrAlreadyExists(message string) Error {
	return newError(message, AudienceExternal, CodeAlreadyExists, http.StatusConflict)
}

func NewErrValidation(message string) Error {
	return newError(message, AudienceExternal, CodeValidation, http.StatusBadRequest)
}

func NewErrConflict(message string) Error {
	return newError(message, AudienceExternal, CodeConflict, http.StatusConflict)
}

func NewErrUnavailable(message string) Error {
	return newError(message, AudienceExternal, CodeUnavailable, http.StatusServiceUnavailable)
}

// NewErrInternal is the catch-all used at the HTTP edge when an error
// doesn't carry its own gerror.Error (spec §7(e)).
func NewErrInternal() Error {
	return newError("internal error", AudienceInternal, CodeInternal, http.StatusInternalServerError)
}

func (e Error) Error() string {
	if e.innerErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.innerErr)
	}
	return e.message
}

func (e Error) Unwrap() error {
	return e.innerErr
}

func (e Error) Message() string {
	return e.message
}

func (e Error) Audience() Audience {
	return e.audience
}

func (e Error) Code() Code {
	return e.code
}

func (e Error) HTTPStatusCode() int {
	return e.httpStatusCode
}

// Wrap returns a copy of the error with the inner cause set.
func (e Error) Wrap(inner error) Error {
	e.innerErr = inner
	return e
}

// HasHTTPStatusCode returns true iff err is a gerror.Error with the given status code.
func HasHTTPStatusCode(err error, statusCode int) bool {
	gerr, ok := err.(Error)
	if !ok {
		return false
	}
	return gerr.HTTPStatusCode() == statusCode
}
