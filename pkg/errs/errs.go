// Package errs holds the error kinds shared by the session store, the profile
// store and the reply orchestrator.
//
// Packages wrap these sentinels with context; callers classify failures with
// errors.Is.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound reports a reference to a chat that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput reports blank text or an otherwise unusable argument.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBackendFailure reports an assistant call that did not complete.
	ErrBackendFailure = errors.New("backend failure")
)

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrInvalidInput.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrInvalidInput, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// BackendError wraps the cause of a failed assistant reply.
type BackendError struct {
	ChatID string
	Err    error
}

func (e *BackendError) Error() string {
	if e == nil {
		return ErrBackendFailure.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s for chat %q", ErrBackendFailure, e.ChatID)
	}
	return fmt.Sprintf("%s for chat %q: %v", ErrBackendFailure, e.ChatID, e.Err)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackendFailure }

func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
