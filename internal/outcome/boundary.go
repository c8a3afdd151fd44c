package outcome

import (
	"errors"
	"fmt"
)

// Kind classifies a failure that happened at a system edge.
type Kind string

const (
	// KindNetwork covers transport and connection failures, and HTTP failures
	// that carry no more specific meaning.
	KindNetwork Kind = "network"
	// KindParse covers response bodies or headers that could not be decoded,
	// and local filesystem failures while persisting a response.
	KindParse Kind = "parse"
)

// BoundaryError is a failure caught at a network or filesystem boundary.
type BoundaryError struct {
	Kind    Kind
	Message string
	// Status is the HTTP status code when the failure came from a response, 0 otherwise.
	Status int
	Err    error
}

func (e *BoundaryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *BoundaryError) Unwrap() error { return e.Err }

// IsRetryable is always true: boundary failures are transient by definition.
func (e *BoundaryError) IsRetryable() bool { return true }

// NetworkError wraps a transport failure.
func NetworkError(err error) *BoundaryError {
	return &BoundaryError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

// ParseError wraps a decoding failure.
func ParseError(err error) *BoundaryError {
	return &BoundaryError{Kind: KindParse, Message: err.Error(), Err: err}
}

// Capture runs a boundary call and converts its error into a *BoundaryError of the
// given kind. This is the single catch point: errors that already are boundary errors
// pass through unchanged instead of being wrapped twice.
func Capture[T any](kind Kind, call func() (T, error)) Result[T] {
	v, err := call()
	if err == nil {
		return Ok(v)
	}
	var be *BoundaryError
	if errors.As(err, &be) {
		return Fail[T](be)
	}
	return Fail[T](&BoundaryError{Kind: kind, Message: err.Error(), Err: err})
}

// AsBoundary extracts the *BoundaryError from err, if any.
func AsBoundary(err error) (*BoundaryError, bool) {
	var be *BoundaryError
	ok := errors.As(err, &be)
	return be, ok
}
