package sierra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/AmmannChristian/go-sierra/httpclient"
	"github.com/AmmannChristian/go-sierra/oauth2client"
)

// ErrNoResult is returned when a call produced no usable response: the token
// could not be obtained, the transport failed, or the server answered with a
// status other than 200.
var ErrNoResult = errors.New("sierra: no result")

const (
	// DefaultQueryLimit is the page size callers use when they have no preference.
	DefaultQueryLimit = 20

	// DefaultMaxUnauthorizedRetries is how many times a request answered with 401
	// is repeated with the same token before giving up.
	DefaultMaxUnauthorizedRetries = 15

	// TokenUserAgent is sent to the token endpoint.
	TokenUserAgent = "SierraAPI/0.1"
	// UserAgent is sent with resource requests.
	UserAgent = "Sierra Api Client"

	contentType = "application/json;charset=UTF-8"
)

// Client issues authenticated requests against a Sierra API.
// It is safe for concurrent use.
type Client struct {
	endpoint   string
	tokens     *oauth2client.TokenManager
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
}

type settings struct {
	cache         oauth2client.Cache
	logger        *slog.Logger
	baseTransport http.RoundTripper
	maxRetries    int
	metrics       bool

	tlsEnabled  bool
	tlsCAFile   string
	tlsCertFile string
	tlsKeyFile  string
}

// Option configures a Client.
type Option func(*settings)

// WithCache shares the token through cache, e.g. a sessionstore implementation.
func WithCache(cache oauth2client.Cache) Option {
	return func(s *settings) {
		s.cache = cache
	}
}

// WithLogger sets the logger for the client and its token manager.
// If not set, no logging will occur.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBaseTransport replaces the underlying transport of both HTTP clients.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(s *settings) {
		s.baseTransport = rt
	}
}

// WithMaxUnauthorizedRetries bounds the repeats of a request answered with 401.
// Negative values are treated as zero.
func WithMaxUnauthorizedRetries(n int) Option {
	return func(s *settings) {
		if n < 0 {
			n = 0
		}
		s.maxRetries = n
	}
}

// WithMetrics records every Sierra call in the Prometheus collectors of the
// default registry.
func WithMetrics() Option {
	return func(s *settings) {
		s.metrics = true
	}
}

// WithTLS sets a custom CA and an optional client certificate for mTLS.
// See httpclient.Builder.WithTLS. Together with WithBaseTransport the base
// must be an *http.Transport, otherwise New fails.
func WithTLS(caFile, certFile, keyFile string) Option {
	return func(s *settings) {
		s.tlsEnabled = true
		s.tlsCAFile = caFile
		s.tlsCertFile = certFile
		s.tlsKeyFile = keyFile
	}
}

func (s *settings) builder() *httpclient.Builder {
	b := httpclient.NewBuilder()
	if s.baseTransport != nil {
		b.WithBaseTransport(s.baseTransport)
	}
	if s.metrics {
		b.WithMetrics()
	}
	if s.tlsEnabled {
		b.WithTLS(s.tlsCAFile, s.tlsCertFile, s.tlsKeyFile)
	}
	return b
}

// New creates a client for cfg. It adopts a token from the cache when one is
// present and fetches a new one when that is missing or stale.
//
// Only configuration errors are returned. A failed token fetch is logged and
// retried by the next Get or Query.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &settings{
		logger:     slog.New(slog.DiscardHandler),
		maxRetries: DefaultMaxUnauthorizedRetries,
	}
	for _, opt := range opts {
		opt(s)
	}

	tokenHTTP, err := s.builder().WithUserAgent(TokenUserAgent).Build()
	if err != nil {
		return nil, fmt.Errorf("sierra: token client: %w", err)
	}

	tmOpts := []oauth2client.Option{
		oauth2client.WithHTTPClient(tokenHTTP),
		oauth2client.WithLogger(s.logger),
	}
	if s.cache != nil {
		tmOpts = append(tmOpts, oauth2client.WithCache(s.cache))
	}
	tm := oauth2client.NewTokenManager(ctx, cfg.TokenURL(), cfg.Key, cfg.Secret, tmOpts...)

	apiHTTP, err := s.builder().
		WithTokenManager(tm).
		WithUserAgent(UserAgent).
		Build()
	if err != nil {
		return nil, fmt.Errorf("sierra: api client: %w", err)
	}

	c := &Client{
		endpoint:   cfg.Endpoint(),
		tokens:     tm,
		httpClient: apiHTTP,
		maxRetries: s.maxRetries,
		logger:     s.logger,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	tm.LoadCached(ctx)
	if err := tm.EnsureValidToken(ctx); err != nil {
		c.logger.Warn("sierra: no access token at startup", "error", err)
	}

	return c, nil
}

// Endpoint returns the versioned API base the client sends requests to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// TokenManager returns the manager holding the client's access token.
func (c *Client) TokenManager() *oauth2client.TokenManager {
	return c.tokens
}

// Get requests resource (e.g. "bibs/1000001") with params as the query string
// and returns the decoded JSON body.
//
// Any failure to obtain a 200 response yields an error matching ErrNoResult.
// A 200 response whose body is not JSON yields a decode error instead.
func (c *Client) Get(ctx context.Context, resource string, params url.Values) (any, error) {
	target := c.endpoint + strings.TrimPrefix(resource, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	body, err := c.call(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("sierra: decode %s response: %w", resource, err)
	}
	return out, nil
}

// Query posts query as JSON to "{resource}/query" with offset and limit as
// query parameters and returns the decoded JSON object.
//
// Errors follow the same rules as Get.
func (c *Client) Query(ctx context.Context, resource string, query any, offset, limit int) (map[string]any, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("sierra: encode %s query: %w", resource, err)
	}

	target := fmt.Sprintf("%s%s/query?offset=%d&limit=%d",
		c.endpoint, strings.Trim(resource, "/"), offset, limit)

	body, err := c.call(ctx, http.MethodPost, target, payload)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("sierra: decode %s query response: %w", resource, err)
	}
	return out, nil
}

// call ensures a valid token, then sends the request, repeating it with the same
// token while the server answers 401 and the retry budget lasts.
func (c *Client) call(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.tokens.EnsureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
	}

	var (
		status int
		body   []byte
		err    error
	)
	for attempt := 0; ; attempt++ {
		status, body, err = c.send(ctx, method, target, payload)
		if err != nil {
			c.logger.Warn("sierra: request failed", "method", method, "url", target, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
		}
		if status != http.StatusUnauthorized || attempt >= c.maxRetries {
			break
		}
		c.logger.Debug("sierra: request unauthorized, repeating",
			"method", method, "url", target, "attempt", attempt+1)
	}

	if status != http.StatusOK {
		c.logger.Warn("sierra: unexpected status", "method", method, "url", target, "status", status)
		return nil, fmt.Errorf("%w: %s %s returned status %d", ErrNoResult, method, target, status)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
