// Package fault defines the error taxonomy shared by the facade and its
// surfaces. Every facade operation fails with a *Error carrying a Kind;
// the HTTP and MCP layers translate kinds to status codes and tool errors.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	NotConfigured Kind = "not_configured" // required credential missing
	Unauthorized  Kind = "unauthorized"   // missing or invalid session/key
	NotFound      Kind = "not_found"      // unknown project, job, or profile
	Conflict      Kind = "conflict"       // lock held elsewhere, claim lost
	BadRequest    Kind = "bad_request"    // malformed payload, enum out of range
	RateLimited   Kind = "rate_limited"   // too many requests from a principal
	StoreError    Kind = "store_error"    // backend I/O failure
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil cause returns nil, which
// is why the return type is error: a typed nil *Error would compare
// non-nil at every call site that returns it directly.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or StoreError for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return StoreError
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotConfigured:
		return 503
	case Unauthorized:
		return 401
	case NotFound:
		return 404
	case Conflict:
		return 409
	case BadRequest:
		return 400
	case RateLimited:
		return 429
	}
	return 500
}
