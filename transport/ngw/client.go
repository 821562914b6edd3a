// Package ngw is a minimal REST client for the NextGIS Web feature change API.
package ngw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
)

// Limits defines size limits for response bodies
type Limits struct {
	MaxBodyBytes         int64 // Maximum body size in bytes
	MaxDecompressedBytes int64 // Maximum decompressed response size
}

// DefaultLimits are applied when no limits are configured.
var DefaultLimits = Limits{
	MaxBodyBytes:         8 << 20,  // 8MB
	MaxDecompressedBytes: 64 << 20, // 64MB
}

// DefaultTimeout is the per-request timeout of the default HTTP client.
const DefaultTimeout = 30 * time.Second

// Client issues authenticated GET requests against one NGW instance.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	timeout  time.Duration
	limits   Limits
	username string
	password string
	logger   *logging.Logger
}

// ClientOption configures a Client using the functional options pattern
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.http = cl
	}
}

// WithTimeout sets the request timeout. It applies to a copy of the HTTP
// client, so a shared client passed to WithHTTPClient keeps its own value.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLimits sets the size limits. Zero fields keep their defaults.
func WithLimits(l Limits) ClientOption {
	return func(c *Client) {
		if l.MaxBodyBytes > 0 {
			c.limits.MaxBodyBytes = l.MaxBodyBytes
		}
		if l.MaxDecompressedBytes > 0 {
			c.limits.MaxDecompressedBytes = l.MaxDecompressedBytes
		}
	}
}

// WithCredentials enables HTTP basic authentication.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the NGW instance at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("invalid base url %q: %w", baseURL, err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("base url %q must be http or https", baseURL))
	}

	c := &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: DefaultTimeout},
		limits:  DefaultLimits,
		logger:  logging.WithComponent("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.http.Timeout != c.timeout {
		cl := *c.http
		cl.Timeout = c.timeout
		c.http = &cl
	}
	return c, nil
}

// BaseURL returns the instance root URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Resolve joins a relative path to the base URL. Absolute URLs are returned
// unchanged: fetch and continuation URLs issued by the server are opaque.
func (c *Client) Resolve(rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if ref.IsAbs() {
		return rawURL, nil
	}

	joined := *c.baseURL
	joined.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	joined.RawPath = ""
	joined.RawQuery = ref.RawQuery
	return joined.String(), nil
}

// Get requests url and returns the JSON body. An empty body, 204 or a JSON
// null return nil without error. Non-2xx answers are returned as
// *ServerError wrapped in a SyncError.
func (c *Client) Get(ctx context.Context, rawURL string) (json.RawMessage, error) {
	target, err := c.Resolve(rawURL)
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpFetch, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, syncErrors.NewWithComponent(syncErrors.OpFetch, "transport", ctxErr)
		}
		return nil, syncErrors.NewSynchronizationError(syncErrors.OpFetch, fmt.Errorf("request to %s failed: %w", target, err))
	}
	defer resp.Body.Close()

	c.logger.Debug("NGW request completed",
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	body, err := readResponseBody(resp, c.limits)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) || errors.Is(err, errDecompressedTooLarge) {
			return nil, syncErrors.NewMalformedPayloadError(syncErrors.OpFetch, fmt.Errorf("%s: %w", target, err))
		}
		return nil, syncErrors.NewSynchronizationError(syncErrors.OpFetch, fmt.Errorf("failed to read response from %s: %w", target, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serverErr := decodeServerError(resp.StatusCode, target, body)
		syncErr := syncErrors.NewSynchronizationError(syncErrors.OpFetch, serverErr)
		syncErr.Retryable = resp.StatusCode >= 500
		return nil, syncErr
	}

	trimmed := bytes.TrimSpace(body)
	if resp.StatusCode == http.StatusNoContent || len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, syncErrors.NewMalformedPayloadError(syncErrors.OpFetch, fmt.Errorf("response from %s is not valid JSON", target))
	}
	return json.RawMessage(trimmed), nil
}
