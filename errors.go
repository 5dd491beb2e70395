package nutrilog

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResult is the normal negative outcome of a photo request: no
	// readable code, or a code for an unknown product.
	ErrNoResult = errors.New("no result")

	// ErrNoPendingConfirmation is returned when confirming or cancelling with
	// nothing staged, including a staged set whose deadline has passed.
	ErrNoPendingConfirmation = errors.New("no pending confirmation")

	ErrEmptyBatch = errors.New("no entries to stage")
)

// ParseFormatError means the extraction output could not be read as a list of
// food candidates. It aborts the whole text request.
type ParseFormatError struct {
	Raw string
	Err error
}

func (e *ParseFormatError) Error() string {
	return fmt.Sprintf("unusable parser output: %v", e.Err)
}

func (e *ParseFormatError) Unwrap() error { return e.Err }

// EstimationError is a per-item failure of the estimation oracle.
type EstimationError struct {
	Name string
	Err  error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("could not determine nutrition for %q: %v", e.Name, e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
