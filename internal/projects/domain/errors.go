package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("project not found")
	ErrMalformedRecord  = errors.New("malformed project record")
	ErrUnsavedProject   = errors.New("project has no id")
	ErrNoEditInProgress = errors.New("no edit in progress")
	ErrEditMismatch     = errors.New("another row is being edited")
	ErrBatchInProgress  = errors.New("risk refresh already running")
)

// ValidationError describes a single rejected field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
