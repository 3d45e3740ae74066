package favorites

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable means the remote store could not be read or
	// written. Callers must treat a failed read as "unknown", not "empty".
	ErrRemoteUnavailable = errors.New("remote favorites store unavailable")

	// ErrInvalidToggleInput rejects a toggle before anything is mutated.
	ErrInvalidToggleInput = errors.New("invalid toggle input")

	ErrNoUser = errors.New("remote favorites require a user identity")
)

// ValidationError names the minimal field a toggle payload was missing.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid toggle input: %s is required", e.Field)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidToggleInput
}
