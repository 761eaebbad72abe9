// Package apperrors defines the error kinds shared by the storage, cache and
// protocol layers.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no acting user can be resolved.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRemoteIO wraps network or server failures of the backing store.
	ErrRemoteIO = errors.New("remote io error")

	// ErrNotFound is returned when a referenced document does not exist.
	// Idempotent protocol steps treat it as already resolved.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed documents or invalid arguments.
	ErrValidation = errors.New("validation error")

	// ErrPrecondition marks caller-visible precondition failures that never
	// reach the backing store (e.g. an under-staged allocation).
	ErrPrecondition = errors.New("precondition failed")
)

// RemoteIO wraps err as a remote io failure of op.
func RemoteIO(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteIO, err)
}

// NotFound reports that the document id in collection does not exist.
func NotFound(collection, id string) error {
	return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
}

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Precondition builds a precondition error with a formatted message.
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// StepError is the single aggregate error returned when a step of a
// multi-step protocol fails. Earlier steps are left in place.
type StepError struct {
	Protocol string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %q failed: %v", e.Protocol, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
