// Package client queries many OPTIMADE providers with one filter. Each
// provider is paginated on its own, strictly in page order, up to a result
// cap; failures stay scoped to the provider they happened at.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/nlstn/go-optimade/internal/filter"
)

// Mode selects how providers are scheduled.
type Mode int

const (
	// ModeConcurrent queries up to the concurrency limit of providers at a
	// time.
	ModeConcurrent Mode = iota
	// ModeSequential queries one provider after the other.
	ModeSequential
)

func (m Mode) String() string {
	if m == ModeSequential {
		return "sequential"
	}
	return "concurrent"
}

// Defaults.
const (
	DefaultEndpoint    = "structures"
	DefaultVersionPath = "v1"
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
	DefaultConcurrency = 8
	DefaultPageLimit   = 10
	DefaultMaxResults  = 1000
)

// maxBodySnippet bounds the body quoted in an *HTTPError.
const maxBodySnippet = 256

// Client fans a filter out to a set of providers.
type Client struct {
	httpClient  *http.Client
	baseURLs    []string
	mode        Mode
	concurrency int
	maxResults  int
	maxAttempts int
	retryDelay  time.Duration
	versionPath string
	grammar     string
	logger      *slog.Logger
	parser      *filter.Parser
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs sets the providers to query. Duplicates are queried once.
func WithBaseURLs(urls ...string) Option {
	return func(c *Client) {
		c.baseURLs = append(c.baseURLs, urls...)
	}
}

// WithHTTPClient replaces the pooled cleanhttp client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMode selects concurrent or sequential scheduling.
func WithMode(m Mode) Option {
	return func(c *Client) {
		c.mode = m
	}
}

// WithConcurrency bounds the number of providers queried at once.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		c.concurrency = n
	}
}

// WithMaxResultsPerProvider stops paginating a provider once this many
// entries were collected. The page that crosses the cap is kept whole.
// Zero disables the cap.
func WithMaxResultsPerProvider(n int) Option {
	return func(c *Client) {
		c.maxResults = n
	}
}

// WithMaxAttempts bounds the attempts per page when providers answer 429.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithRetryDelay sets the fixed wait between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithVersionPath sets the path segment between base URL and endpoint,
// "v1" by default. An empty path queries base/endpoint directly.
func WithVersionPath(p string) Option {
	return func(c *Client) {
		c.versionPath = strings.Trim(p, "/")
	}
}

// WithGrammar validates filters against a specific grammar version.
func WithGrammar(version string) Option {
	return func(c *Client) {
		c.grammar = version
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		mode:        ModeConcurrent,
		concurrency: DefaultConcurrency,
		maxResults:  DefaultMaxResults,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		versionPath: DefaultVersionPath,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultPooledClient()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.concurrency <= 0 {
		return nil, fmt.Errorf("client: concurrency must be positive, got %d", c.concurrency)
	}
	if c.maxAttempts <= 0 {
		return nil, fmt.Errorf("client: max attempts must be positive, got %d", c.maxAttempts)
	}
	if c.maxResults < 0 {
		return nil, fmt.Errorf("client: max results per provider must not be negative, got %d", c.maxResults)
	}
	if c.retryDelay < 0 {
		return nil, fmt.Errorf("client: retry delay must not be negative, got %s", c.retryDelay)
	}

	urls, err := normalizeBaseURLs(c.baseURLs)
	if err != nil {
		return nil, err
	}
	c.baseURLs = urls

	parser, err := filter.NewParser(nil, filter.WithGrammar(c.grammar))
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.parser = parser
	return c, nil
}

func normalizeBaseURLs(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("client: invalid base URL %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("client: base URL %q must be http or https", raw)
		}
		base := strings.TrimRight(u.String(), "/")
		if seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
	}
	return out, nil
}

// BaseURLs returns the providers the client queries.
func (c *Client) BaseURLs() []string {
	out := make([]string, len(c.baseURLs))
	copy(out, c.baseURLs)
	return out
}

// Query is one filter to run against every provider.
type Query struct {
	Filter string
	// Endpoint is the entry type to query, "structures" by default.
	Endpoint       string
	ResponseFields []string
	// PageLimit is the page size asked of providers.
	PageLimit int
	Sort      string
}

// ProviderResult is what one provider returned.
type ProviderResult struct {
	BaseURL string
	// Entries are the resources in provider order, undecoded.
	Entries []json.RawMessage
	Pages   int
	// MoreDataAvailable is set when pagination stopped before the provider
	// ran out of entries.
	MoreDataAvailable bool
	// DataReturned is the match count the provider reported last.
	DataReturned int64
	Err          error
}

// MarshalJSON renders the result with its error as a string.
func (r ProviderResult) MarshalJSON() ([]byte, error) {
	out := struct {
		BaseURL           string            `json:"base_url"`
		Entries           []json.RawMessage `json:"entries"`
		Pages             int               `json:"pages"`
		MoreDataAvailable bool              `json:"more_data_available"`
		DataReturned      int64             `json:"data_returned"`
		Error             string            `json:"error,omitempty"`
	}{r.BaseURL, r.Entries, r.Pages, r.MoreDataAvailable, r.DataReturned, ""}
	if out.Entries == nil {
		out.Entries = []json.RawMessage{}
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Results are the merged provider results of one Get.
type Results struct {
	Filter    string                    `json:"filter"`
	Endpoint  string                    `json:"endpoint"`
	Providers map[string]ProviderResult `json:"providers"`
}

// Err joins the provider errors, nil when every provider succeeded.
func (r *Results) Err() error {
	var merr *multierror.Error
	for _, base := range r.sortedKeys() {
		if err := r.Providers[base].Err; err != nil {
			merr = multierror.Append(merr, &ProviderError{BaseURL: base, Err: err})
		}
	}
	return merr.ErrorOrNil()
}

// Failed lists the providers that returned an error, sorted.
func (r *Results) Failed() []string {
	var out []string
	for _, base := range r.sortedKeys() {
		if r.Providers[base].Err != nil {
			out = append(out, base)
		}
	}
	return out
}

// Entries returns the number of entries over all providers.
func (r *Results) Entries() int {
	n := 0
	for _, p := range r.Providers {
		n += len(p.Entries)
	}
	return n
}

func (r *Results) sortedKeys() []string {
	keys := make([]string, 0, len(r.Providers))
	for k := range r.Providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get validates q.Filter and runs it against every provider. An invalid
// filter fails before any request is made; provider failures are reported
// in the results, see Results.Err.
func (c *Client) Get(ctx context.Context, q Query) (*Results, error) {
	if err := c.parser.Validate(q.Filter); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	if len(c.baseURLs) == 0 {
		return nil, ErrNoProviders
	}
	if q.Endpoint == "" {
		q.Endpoint = DefaultEndpoint
	}
	if q.PageLimit <= 0 {
		q.PageLimit = DefaultPageLimit
	}

	c.logger.Debug("querying providers",
		"filter", q.Filter,
		"endpoint", q.Endpoint,
		"providers", len(c.baseURLs),
		"mode", c.mode.String(),
	)

	// every task owns its slot
	slots := make([]ProviderResult, len(c.baseURLs))
	switch c.mode {
	case ModeSequential:
		for i, base := range c.baseURLs {
			slots[i] = c.queryProvider(ctx, base, q)
		}
	default:
		var g errgroup.Group
		g.SetLimit(c.concurrency)
		for i, base := range c.baseURLs {
			g.Go(func() error {
				slots[i] = c.queryProvider(ctx, base, q)
				return nil
			})
		}
		_ = g.Wait()
	}

	return fold(q, slots), nil
}

func fold(q Query, slots []ProviderResult) *Results {
	res := &Results{
		Filter:    q.Filter,
		Endpoint:  q.Endpoint,
		Providers: make(map[string]ProviderResult, len(slots)),
	}
	for _, r := range slots {
		res.Providers[r.BaseURL] = r
	}
	return res
}

type pageResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		MoreDataAvailable bool   `json:"more_data_available"`
		DataReturned      *int64 `json:"data_returned"`
	} `json:"meta"`
	Links struct {
		Next json.RawMessage `json:"next"`
	} `json:"links"`
}

// nextLink reads links.next, which is either a URL string or a link
// object with an href.
func (p *pageResponse) nextLink() (string, error) {
	raw := p.Links.Next
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("links.next is neither a URL nor a link object")
	}
	return obj.Href, nil
}

// queryProvider paginates one provider until it runs out of pages, the
// result cap is reached or a request fails.
func (c *Client) queryProvider(ctx context.Context, base string, q Query) ProviderResult {
	res := ProviderResult{BaseURL: base}
	logger := c.logger.With("provider", base)

	next, err := c.firstPageURL(base, q)
	if err != nil {
		res.Err = err
		return res
	}

	visited := make(map[string]bool)
	for next != "" {
		if visited[next] {
			res.Err = fmt.Errorf("pagination loops back to %s", next)
			return res
		}
		visited[next] = true

		page, err := c.fetchPage(ctx, next, logger)
		if err != nil {
			res.Err = err
			return res
		}
		res.Pages++
		res.Entries = append(res.Entries, page.Data...)
		if page.Meta.DataReturned != nil {
			res.DataReturned = *page.Meta.DataReturned
		}

		link, err := page.nextLink()
		if err != nil {
			res.Err = err
			return res
		}
		if link != "" {
			if link, err = resolve(next, link); err != nil {
				res.Err = err
				return res
			}
		}
		res.MoreDataAvailable = link != "" || page.Meta.MoreDataAvailable

		if c.maxResults > 0 && len(res.Entries) >= c.maxResults {
			logger.Debug("result cap reached", "entries", len(res.Entries), "cap", c.maxResults)
			break
		}
		// an empty page cannot make progress
		if len(page.Data) == 0 {
			break
		}
		next = link
	}

	logger.Debug("provider done", "pages", res.Pages, "entries", len(res.Entries))
	return res
}

func (c *Client) firstPageURL(base string, q Query) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u = u.JoinPath(c.versionPath, q.Endpoint)

	params := url.Values{}
	if q.Filter != "" {
		params.Set("filter", q.Filter)
	}
	params.Set("page_limit", strconv.Itoa(q.PageLimit))
	if len(q.ResponseFields) > 0 {
		params.Set("response_fields", strings.Join(q.ResponseFields, ","))
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func resolve(current, link string) (string, error) {
	cur, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid next link %q: %w", link, err)
	}
	return cur.ResolveReference(ref).String(), nil
}

// fetchPage GETs one page. 429 responses are retried after the retry delay
// until the attempts are used up.
func (c *Client) fetchPage(ctx context.Context, pageURL string, logger *slog.Logger) (*pageResponse, error) {
	for attempt := 1; ; attempt++ {
		page, retry, err := c.doFetch(ctx, pageURL)
		if !retry {
			return page, err
		}
		if attempt >= c.maxAttempts {
			return nil, fmt.Errorf("%w: GET %s failed after %d attempts", ErrRateLimited, pageURL, attempt)
		}

		logger.Warn("provider rate limited the request",
			"url", pageURL,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"retry_in", c.retryDelay,
		)
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) doFetch(ctx context.Context, pageURL string) (page *pageResponse, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/vnd.api+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return nil, false, &HTTPError{URL: pageURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	page = &pageResponse{}
	if err := json.NewDecoder(resp.Body).Decode(page); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", pageURL, err)
	}
	return page, false, nil
}
