package optimade

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nlstn/go-optimade/internal/etag"
	"github.com/nlstn/go-optimade/internal/observability"
	"github.com/nlstn/go-optimade/internal/response"
)

// APIVersion is the OPTIMADE API version reported in responses.
const APIVersion = "1.2.0"

// ServeHTTP implements http.Handler interface. It serves
// GET {base}/info, GET {base}/{collection} and GET {base}/{collection}/{id}.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	observability.ServerTimingMiddleware(s.Observability(), http.HandlerFunc(s.serveHTTP)).ServeHTTP(w, r)
}

func (s *Service) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		s.writeStatus(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s is not supported", r.Method))
		return
	}

	path := r.URL.EscapedPath()
	if base := s.cfg.BasePath; base != "" {
		if path != base && !strings.HasPrefix(path, base+"/") {
			s.writeStatus(w, http.StatusNotFound, fmt.Sprintf("path %s is outside of %s", r.URL.Path, base))
			return
		}
		path = strings.TrimPrefix(path, base)
		r = r.WithContext(response.WithBasePath(r.Context(), base))
	}

	components, err := response.ParseURLComponents(path)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if components.Collection == "" || (components.Collection == "info" && components.EntryID == "") {
		s.handleInfo(w, r)
		return
	}

	req, err := parseRequest(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	if components.EntryID == "" {
		page, err := s.Find(r.Context(), components.Collection, req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writePage(w, r, page, pageData(page))
		return
	}

	page, err := s.FindByID(r.Context(), components.Collection, components.EntryID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tag := etag.Generate(page.Entries[0])
	w.Header().Set("ETag", tag)
	if !etag.NoneMatch(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	s.writePage(w, r, page, page.Entries[0])
}

// parseRequest reads the OPTIMADE query parameters.
func parseRequest(q url.Values) (Request, error) {
	req := Request{
		Filter:         q.Get("filter"),
		GrammarVersion: q.Get("api_version"),
		Cursor:         q.Get("page_cursor"),
		Sort:           q.Get("sort"),
	}

	var err error
	if req.PageLimit, err = intParam(q, "page_limit"); err != nil {
		return Request{}, err
	}
	if req.PageOffset, err = intParam(q, "page_offset"); err != nil {
		return Request{}, err
	}

	if raw, ok := q["response_fields"]; ok {
		req.ResponseFields = []string{}
		for _, f := range strings.Split(strings.Join(raw, ","), ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.ResponseFields = append(req.ResponseFields, f)
			}
		}
	}
	return req, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidPagination, name, raw)
	}
	return n, nil
}

func pageData(page *Page) []*Entry {
	if page.Entries == nil {
		return []*Entry{}
	}
	return page.Entries
}

func (s *Service) writePage(w http.ResponseWriter, r *http.Request, page *Page, data any) {
	returned, available := page.DataReturned, page.DataAvailable
	doc := &response.Document{
		Data: data,
		Meta: response.Meta{
			Query:             response.Query{Representation: response.Representation(r)},
			APIVersion:        APIVersion,
			MoreDataAvailable: page.MoreDataAvailable,
			DataReturned:      &returned,
			DataAvailable:     &available,
		},
	}
	for _, warning := range page.Warnings {
		doc.Meta.Warnings = append(doc.Meta.Warnings, response.Warning{
			Type:   "warning",
			Code:   warning.Code,
			Title:  "Unknown field",
			Detail: warning.Detail,
		})
	}
	if page.NextCursor != "" {
		next := response.BuildNextLink(r, page.NextCursor)
		doc.Links.Next = &next
	}

	observability.RecordDBTiming(r.Context())
	if err := response.WriteDocument(w, r, http.StatusOK, doc); err != nil {
		s.logger.Error("Error writing response", "error", err)
	}
}

type infoAttributes struct {
	APIVersion         string              `json:"api_version"`
	Formats            []string            `json:"formats"`
	EntryTypesByFormat map[string][]string `json:"entry_types_by_format"`
	AvailableEndpoints []string            `json:"available_endpoints"`
	GrammarVersions    []string            `json:"filter_grammar_versions"`
}

func (s *Service) handleInfo(w http.ResponseWriter, r *http.Request) {
	collections := s.Collections()
	doc := &response.Document{
		Data: map[string]any{
			"type": "info",
			"id":   "/",
			"attributes": infoAttributes{
				APIVersion:         APIVersion,
				Formats:            []string{"json"},
				EntryTypesByFormat: map[string][]string{"json": collections},
				AvailableEndpoints: append([]string{"info"}, collections...),
				GrammarVersions:    s.GrammarVersions(),
			},
		},
		Meta: response.Meta{
			Query:      response.Query{Representation: response.Representation(r)},
			APIVersion: APIVersion,
		},
	}
	if err := response.WriteDocument(w, r, http.StatusOK, doc); err != nil {
		s.logger.Error("Error writing response", "error", err)
	}
}

// writeError maps err to a status code. Details of internal errors stay
// in the logs.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := MapErrorToHTTPStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		if !errors.Is(err, ErrInternalInvariant) {
			s.logger.Error("query failed", "error", err)
		}
		detail = "the query could not be completed"
	}
	s.writeStatus(w, status, detail)
}

func (s *Service) writeStatus(w http.ResponseWriter, status int, detail string) {
	if writeErr := response.WriteError(w, status, http.StatusText(status), detail); writeErr != nil {
		s.logger.Error("Error writing error response", "error", writeErr)
	}
}

// ListenAndServe starts the service on the specified address.
func (s *Service) ListenAndServe(addr string) error {
	s.logger.Info("Starting OPTIMADE service", "addr", addr, "base_path", s.cfg.BasePath, "collections", s.Collections())
	return http.ListenAndServe(addr, s)
}
