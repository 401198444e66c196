package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a positional index or reference does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable covers any failed or cancelled store read.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMalformedValue marks a raw field that could not be parsed.
	ErrMalformedValue = errors.New("malformed value")
)

// StoreError wraps a failed store operation. It matches both
// ErrStoreUnavailable and the underlying cause with errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// NewStoreError wraps err unless it is nil or already a StoreError.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
