package client

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFilter is returned by Get when the filter does not parse.
	// The returned error also wraps the *filter.SyntaxError.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrRateLimited is returned when a provider keeps answering 429 after
	// the last attempt.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoProviders is returned by Get when no base URL is configured.
	ErrNoProviders = errors.New("no providers configured")
)

// HTTPError is a non-2xx response other than a retried 429.
type HTTPError struct {
	URL        string
	StatusCode int
	// Body holds the beginning of the response body.
	Body string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// ProviderError scopes an error to one provider.
type ProviderError struct {
	BaseURL string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.BaseURL, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
