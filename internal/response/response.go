// Package response writes OPTIMADE JSON:API documents and parses request
// paths.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ContentType is the media type of every response.
const ContentType = "application/vnd.api+json"

// Document is a top-level response document.
type Document struct {
	Data  any   `json:"data"`
	Meta  Meta  `json:"meta"`
	Links Links `json:"links"`
}

// Meta is the meta object of a response.
type Meta struct {
	Query             Query     `json:"query"`
	APIVersion        string    `json:"api_version"`
	MoreDataAvailable bool      `json:"more_data_available"`
	DataReturned      *int64    `json:"data_returned,omitempty"`
	DataAvailable     *int64    `json:"data_available,omitempty"`
	Warnings          []Warning `json:"warnings,omitempty"`
}

// Query echoes the request.
type Query struct {
	Representation string `json:"representation"`
}

// Warning is a non-fatal problem reported alongside the data.
type Warning struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail"`
}

// Links holds pagination links. A nil Next is rendered as null.
type Links struct {
	Next *string `json:"next"`
}

// ErrorObject is one element of an error document.
type ErrorObject struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// WriteDocument writes doc with the given status code.
func WriteDocument(w http.ResponseWriter, r *http.Request, status int, doc *Document) error {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if r != nil && r.Method == http.MethodHead {
		return nil
	}

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(doc)
}

// WriteError writes an error document holding a single error.
func WriteError(w http.ResponseWriter, code int, title string, detail string) error {
	errorResponse := map[string]any{
		"errors": []ErrorObject{{
			Status: strconv.Itoa(code),
			Title:  title,
			Detail: detail,
		}},
		"meta": map[string]any{},
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(code)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(errorResponse)
}

// Representation renders the path and query of r relative to the base
// path, e.g. "/structures?filter=nelements=1".
func Representation(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, getBasePath(r))
	if r.URL.RawQuery == "" {
		return path
	}
	return path + "?" + r.URL.RawQuery
}

func buildBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	// Handle X-Forwarded-Proto header for reverse proxies
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if host == "" {
		host = "localhost:5000"
	}

	return scheme + "://" + host
}

// BuildNextLink builds the absolute URL of the next page. The cursor
// replaces any offset of the current request.
func BuildNextLink(r *http.Request, cursor string) string {
	nextURL := *r.URL
	query := nextURL.Query()
	query.Del("page_offset")
	query.Set("page_cursor", cursor)
	nextURL.RawQuery = query.Encode()

	return buildBaseURL(r) + nextURL.Path + "?" + nextURL.RawQuery
}

// URLComponents are the parts of an entry request path.
type URLComponents struct {
	// Collection is the entry endpoint, e.g. "structures".
	Collection string
	// EntryID is set for single entry requests.
	EntryID string
}

// ParseURLComponents parses a path relative to the base path, e.g.
// "/structures" or "/structures/mpf_1".
func ParseURLComponents(path string) (*URLComponents, error) {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return &URLComponents{}, nil
	}

	parts := strings.Split(path, "/")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("invalid URL: empty path segments are not allowed")
		}
	}
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid URL: unexpected path segments after %s/%s", parts[0], parts[1])
	}

	components := &URLComponents{Collection: parts[0]}
	if len(parts) == 2 {
		id, err := url.PathUnescape(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid entry id %q: %w", parts[1], err)
		}
		components.EntryID = id
	}
	return components, nil
}
