package optimade

import (
	"errors"
	"net/http"

	"github.com/nlstn/go-optimade/internal/collection"
	"github.com/nlstn/go-optimade/internal/filter"
	"github.com/nlstn/go-optimade/internal/grammar"
	"github.com/nlstn/go-optimade/internal/transform"
)

// Sentinel errors for the failure classes of a query.
// These can be used with errors.Is() for error handling.
var (
	// ErrSyntax matches every filter syntax error.
	// Maps to HTTP 400 Bad Request.
	ErrSyntax = filter.ErrSyntax

	// ErrUnknownGrammarVersion indicates a grammar version that is not
	// registered. Maps to HTTP 400 Bad Request.
	ErrUnknownGrammarVersion = grammar.ErrUnknownVersion

	// ErrNotImplemented indicates a valid filter construct the backend
	// cannot evaluate. Maps to HTTP 501 Not Implemented.
	ErrNotImplemented = transform.ErrNotImplemented

	// ErrInvalidArgument indicates a literal of the wrong type for a field.
	// Maps to HTTP 400 Bad Request.
	ErrInvalidArgument = transform.ErrInvalidArgument

	// ErrUnknownField indicates a filter on an undeclared field when the
	// collection rejects them. Maps to HTTP 400 Bad Request.
	ErrUnknownField = transform.ErrUnknownField

	// ErrInternalInvariant indicates a bug, e.g. a backend returning more
	// entries than asked for. Maps to HTTP 500 Internal Server Error.
	ErrInternalInvariant = collection.ErrInternalInvariant

	// ErrEntryNotFound indicates a missing entry id.
	// Maps to HTTP 404 Not Found.
	ErrEntryNotFound = collection.ErrEntryNotFound

	// ErrCollectionNotFound indicates an unregistered collection.
	// Maps to HTTP 404 Not Found.
	ErrCollectionNotFound = errors.New("optimade: collection not found")

	// ErrPageLimitExceeded indicates a page limit above the maximum.
	// Maps to HTTP 403 Forbidden.
	ErrPageLimitExceeded = collection.ErrPageLimitExceeded

	// ErrInvalidPagination indicates a negative or malformed page limit or
	// offset. Maps to HTTP 400 Bad Request.
	ErrInvalidPagination = collection.ErrInvalidPagination

	// ErrInvalidCursor indicates a page cursor that cannot be resumed.
	// Maps to HTTP 400 Bad Request.
	ErrInvalidCursor = collection.ErrInvalidCursor

	// ErrInvalidSort indicates a malformed sort parameter.
	// Maps to HTTP 400 Bad Request.
	ErrInvalidSort = collection.ErrInvalidSort
)

// SyntaxError re-exports the filter syntax error with its position.
type SyntaxError = filter.SyntaxError

// UnknownVersionError re-exports the unknown grammar version error.
type UnknownVersionError = grammar.UnknownVersionError

// NotImplementedError re-exports the unsupported construct error.
type NotImplementedError = transform.NotImplementedError

// ArgumentError re-exports the bad literal error.
type ArgumentError = transform.ArgumentError

// UnknownFieldError re-exports the strict unknown field error.
type UnknownFieldError = transform.UnknownFieldError

// StepError re-exports the pipeline step wrapper of query errors.
type StepError = collection.StepError

// InvariantError re-exports the internal invariant violation.
type InvariantError = collection.InvariantError

// MapErrorToHTTPStatus returns the HTTP status code for a query error.
//
// Example usage:
//
//	page, err := service.Find(ctx, "structures", req)
//	if err != nil {
//	    w.WriteHeader(optimade.MapErrorToHTTPStatus(err))
//	}
func MapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, ErrInternalInvariant):
		return http.StatusInternalServerError
	case errors.Is(err, ErrCollectionNotFound), errors.Is(err, ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrPageLimitExceeded):
		return http.StatusForbidden
	case errors.Is(err, ErrSyntax),
		errors.Is(err, ErrUnknownGrammarVersion),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrInvalidPagination),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrInvalidSort):
		return http.StatusBadRequest
	}

	// Default to internal server error for unknown errors
	return http.StatusInternalServerError
}

// IsClientError reports whether err was caused by the request rather than
// the service.
func IsClientError(err error) bool {
	status := MapErrorToHTTPStatus(err)
	return status >= 400 && status < 500
}
