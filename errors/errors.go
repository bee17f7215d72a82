package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Code is the http status an error maps to
type Code int

const (
	Internal       Code = http.StatusInternalServerError
	NotFound       Code = http.StatusNotFound
	Validation     Code = http.StatusBadRequest
	Unavailable    Code = http.StatusServiceUnavailable
	NotImplemented Code = http.StatusNotImplemented
)

// Kind classifies an error independently of its transport status
type Kind string

const (
	KindStoreUnavailable  Kind = "store_unavailable"
	KindInvalidCollection Kind = "invalid_collection"
	KindInvalidLimit      Kind = "invalid_limit"
	KindInvalidArgument   Kind = "invalid_argument"
	KindMalformedFilter   Kind = "malformed_filter"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

var (
	// ErrStoreUnavailable indicates the document store could not be reached
	ErrStoreUnavailable = &Error{Code: Unavailable, Kind: KindStoreUnavailable}
	// ErrInvalidCollection indicates an empty or unknown collection name
	ErrInvalidCollection = &Error{Code: NotFound, Kind: KindInvalidCollection}
	// ErrInvalidLimit indicates a non-positive page size
	ErrInvalidLimit = &Error{Code: Validation, Kind: KindInvalidLimit}
	// ErrInvalidArgument indicates a caller contract violation
	ErrInvalidArgument = &Error{Code: Validation, Kind: KindInvalidArgument}
	// ErrMalformedFilter indicates a filter that could not be parsed as structured data
	ErrMalformedFilter = &Error{Code: Validation, Kind: KindMalformedFilter}
)

// Error is a custom error
type Error struct {
	Code     Code     `json:"code"`
	Kind     Kind     `json:"kind,omitempty"`
	Messages []string `json:"messages"`
	Err      error    `json:"-"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	bits, _ := json.Marshal(struct {
		Code     Code     `json:"code"`
		Kind     Kind     `json:"kind,omitempty"`
		Messages []string `json:"messages"`
		Err      string   `json:"err,omitempty"`
	}{
		Code:     e.Code,
		Kind:     e.Kind,
		Messages: e.Messages,
		Err:      e.cause(),
	})
	return string(bits)
}

// Message returns a human readable message made of the error's messages and its cause
func (e *Error) Message() string {
	parts := append([]string{}, e.Messages...)
	if cause := e.cause(); cause != "" {
		parts = append(parts, cause)
	}
	if len(parts) == 0 {
		if e.Kind != "" {
			return strings.ReplaceAll(string(e.Kind), "_", " ")
		}
		return http.StatusText(int(e.Code))
	}
	return strings.Join(parts, ": ")
}

func (e *Error) cause() string {
	if e.Err == nil {
		return ""
	}
	if inner, ok := e.Err.(*Error); ok {
		return inner.Message()
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" {
		return t.Kind == e.Kind
	}
	return t.Code == e.Code
}

// RemoveError removes the error from the Error and leaves it's messages and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Kind:     e.Kind,
		Messages: e.Messages,
		Err:      nil,
	}
}

func (e *Error) clone() *Error {
	return &Error{
		Code:     e.Code,
		Kind:     e.Kind,
		Messages: append([]string{}, e.Messages...),
		Err:      e.Err,
	}
}

// New creates a new error with the given code and message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Kind:     kindFor(code),
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Newf creates a new error of the given sentinel's kind and code with a message
func Newf(sentinel *Error, msg string, args ...any) error {
	e := sentinel.clone()
	e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	return e
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return &Error{
			Code:     Internal,
			Kind:     KindInternal,
			Messages: nil,
			Err:      err,
		}
	}
	return e
}

// Wrap wraps the given error and returns a new one. Wrapping a nil error returns nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e = e.clone()
		if msg != "" {
			e.Messages = append([]string{fmt.Sprintf(msg, args...)}, e.Messages...)
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e := &Error{
		Code: code,
		Kind: kindFor(code),
		Err:  err,
	}
	if code == 0 {
		e.Code = Internal
		e.Kind = KindInternal
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}

// WrapKind wraps the given error with the code and kind of the given sentinel
func WrapKind(err error, sentinel *Error, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e := sentinel.clone()
	e.Err = err
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}

func kindFor(code Code) Kind {
	switch code {
	case NotFound:
		return KindNotFound
	case Validation:
		return KindInvalidArgument
	case Unavailable:
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
