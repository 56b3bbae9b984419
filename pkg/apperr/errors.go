// Package apperr defines the error kinds shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	}
	return "internal"
}

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Error is an error with a kind and a message safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so errors.Is(err, apperr.ErrNotFound) works
// for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is checks. Their empty message makes them match any error of the kind.
var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrUpstream     = &Error{Kind: KindUpstream}
)

func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }
func Forbidden(msg string) error    { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) error     { return &Error{Kind: KindConflict, Message: msg} }

// Upstream wraps a failure of a remote dependency.
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FieldError is one violated rule of an input shape.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violated field of a payload.
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (v *ValidationError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindValidation && t.Message == ""
}

// Add records a violation.
func (v *ValidationError) Add(field, format string, args ...any) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns v when it holds violations and nil otherwise.
func (v *ValidationError) Err() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

// Invalid builds a single-field validation error.
func Invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
