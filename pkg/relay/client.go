// Package relay provides an HTTP GET client that can route requests through a CORS relay origin.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOrigin is the public CORS relay used when none is configured.
	DefaultOrigin = "https://warp-co.rs"
	// DefaultTimeout is the default timeout for a single fetch.
	DefaultTimeout = 15 * time.Second
	// defaultMaxBodySize caps how much of a response body is read.
	defaultMaxBodySize = 8 << 20
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// commonUserAgent is the user agent string used for all HTTP requests.
	commonUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// ModeRelay labels fetches routed through the relay origin.
	ModeRelay = "relay"
	// ModeDirect labels fetches sent straight to the target.
	ModeDirect = "direct"
)

var (
	// ErrTooManyRedirects is returned when too many redirects are encountered.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Target     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.Target, e.StatusCode)
}

// Response is a successfully fetched body.
type Response struct {
	StatusCode int
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Recorder observes every completed fetch. statusCode is zero when the transport failed.
type Recorder interface {
	RecordFetch(mode string, statusCode int, duration time.Duration)
}

// Client performs outbound GETs, optionally through a relay origin.
type Client struct {
	origin      string
	httpClient  *http.Client
	timeout     time.Duration
	recorder    Recorder
	maxBodySize int64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-fetch timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRecorder attaches a fetch recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithMaxBodySize caps the number of body bytes read per response. Non-positive values keep the default.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// NewClient creates a client relaying through origin. An empty origin disables relaying.
func NewClient(origin string, opts ...Option) *Client {
	c := &Client{
		origin:      strings.TrimRight(origin, "/"),
		timeout:     DefaultTimeout,
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = newHTTPClient(c.timeout)
	return c
}

// newHTTPClient creates a new HTTP client with standard settings and redirect validation.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// RelayURL returns the URL used to fetch target through the relay.
func (c *Client) RelayURL(target string) string {
	if c.origin == "" {
		return target
	}
	return c.origin + "/" + target
}

// Fetch GETs target through the relay origin.
func (c *Client) Fetch(ctx context.Context, target string) (*Response, error) {
	if c.origin == "" {
		return c.get(ctx, target, target, ModeDirect)
	}
	return c.get(ctx, c.RelayURL(target), target, ModeRelay)
}

// FetchDirect GETs target without the relay.
func (c *Client) FetchDirect(ctx context.Context, target string) (*Response, error) {
	return c.get(ctx, target, target, ModeDirect)
}

func (c *Client) get(ctx context.Context, reqURL, target, mode string) (*Response, error) {
	start := time.Now()
	statusCode := 0
	defer func() {
		if c.recorder != nil {
			c.recorder.RecordFetch(mode, statusCode, time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", commonUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	statusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodySize))
		return nil, &StatusError{Target: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", target, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
