package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrPageLimitExceeded is returned when a request asks for more entries
	// per page than the collection allows.
	ErrPageLimitExceeded = errors.New("page limit exceeded")
	// ErrInvalidPagination is returned for negative limits or offsets.
	ErrInvalidPagination = errors.New("invalid pagination parameters")
	// ErrInvalidCursor is returned for cursors that cannot be decoded or
	// were issued for another query.
	ErrInvalidCursor = errors.New("invalid page cursor")
	// ErrInvalidSort is returned for malformed sort parameters or sort
	// fields the collection does not know.
	ErrInvalidSort = errors.New("invalid sort parameter")
	// ErrEntryNotFound is returned by FindByID when no entry matches.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInternalInvariant matches every *InvariantError.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

// StepError reports the pipeline step a query failed in. It unwraps to the
// underlying error.
type StepError struct {
	Step State
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step.Verb(), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// InvariantError reports an internal inconsistency, e.g. a backend
// returning more entries than requested. It indicates a bug rather than a
// bad request.
type InvariantError struct {
	Collection string
	Detail     string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("collection %s: internal invariant violated: %s", e.Collection, e.Detail)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInternalInvariant
}
