// Package outcome holds the small vocabulary of results and failures shared by
// every network-facing component.
//
// Expected failures ("the world didn't cooperate") are plain Go errors with a kind.
// Broken contracts ("our own logic or the server's is wrong") are raised with
// panic(*ContractViolation) and are never recovered.
package outcome

import (
	"errors"
	"fmt"
)

// Result is either a success value or a failure, never both.
type Result[T any] struct {
	value T
	err   error
}

// Ok constructs a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail constructs a failed Result. A nil error would make the Result ambiguous, so it panics.
func Fail[T any](err error) Result[T] {
	if err == nil {
		panic(Violation("outcome.Fail called with a nil error"))
	}
	return Result[T]{err: err}
}

// IsOk reports whether the Result holds a value.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Err returns the failure, or nil for a successful Result.
func (r Result[T]) Err() error {
	return r.err
}

// Unwrap returns the value and the failure in the usual Go shape.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

// Retryable is implemented by errors that know whether the operation may be attempted again.
type Retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err (or anything it wraps) is marked retryable.
// Boundary errors always are; domain errors decide for themselves.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// ContractViolation is the panic value for broken client/server contracts:
// a success response missing its mandated payload, a body that does not match
// the schema, an unreachable state. It is developer-facing.
type ContractViolation struct {
	Message string
}

func (c *ContractViolation) Error() string {
	return "contract violation: " + c.Message
}

// Violation builds a ContractViolation with a formatted message.
func Violation(format string, a ...any) *ContractViolation {
	return &ContractViolation{Message: fmt.Sprintf(format, a...)}
}
