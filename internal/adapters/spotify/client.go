// Package spotify adapts the Spotify Web API to ports.SpotifyProvider.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/metrics"
)

const (
	defaultBaseURL     = "https://api.spotify.com/v1"
	defaultConcurrency = 4
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Market       string
	MaxRetries   int
	RetryBackoff time.Duration
	Concurrency  int
	Timeout      time.Duration
	Breaker      BreakerSettings
	// HTTPClient is the transport everything is layered on.
	HTTPClient *http.Client
}

// Client is an HTTP client for the Spotify adapter.
type Client struct {
	base        *http.Client
	app         *http.Client
	baseURL     string
	market      string
	maxRetries  int
	baseBackoff time.Duration
	concurrency int
	breaker     *gobreaker.CircuitBreaker[*http.Response]
}

// compile-time interface assertion
var _ ports.SpotifyProvider = (*Client)(nil)

// NewClient builds a client whose application calls are authenticated
// with the client-credentials grant.
func NewClient(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}

	c := newClient(base, opts)
	if opts.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.app = &http.Client{
			Transport: &oauth2.Transport{Source: cc.TokenSource(tokenCtx), Base: base.Transport},
			Timeout:   base.Timeout,
		}
	}
	return c
}

// NewClientWithBaseURL builds an unauthenticated client against baseURL.
// Useful against a local stub of the API.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return newClient(httpClient, Options{BaseURL: baseURL})
}

func newClient(base *http.Client, opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Client{
		base:        base,
		app:         base,
		baseURL:     baseURL,
		market:      opts.Market,
		maxRetries:  opts.MaxRetries,
		baseBackoff: opts.RetryBackoff,
		concurrency: concurrency,
		breaker:     newBreaker(opts.Breaker),
	}
}

// userClient authenticates requests with the user's stored token. Tokens
// are never refreshed.
func (c *Client) userClient(token domain.SpotifyToken) (*http.Client, error) {
	if !token.Valid(time.Now()) {
		return nil, fmt.Errorf("spotify adapter: %w", ports.ErrTokenExpired)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Expiry:      token.Expiry,
	})
	return &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: c.base.Transport},
		Timeout:   c.base.Timeout,
	}, nil
}

// statusError is a non-2xx response that was not retried.
type statusError struct {
	endpoint string
	code     int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("spotify adapter: %s status %d", e.endpoint, e.code)
}

var errNoContent = errors.New("spotify adapter: no content")

// getJSON issues a GET through the breaker and decodes a 200 response
// into out. 204 yields errNoContent, 401 ErrTokenExpired and 404
// domain.ErrNotFound.
func (c *Client) getJSON(ctx context.Context, hc *http.Client, endpoint, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("spotify adapter: failed to create %s request: %w", endpoint, err)
	}

	resp, err := c.do(hc, req, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return errNoContent
	case http.StatusUnauthorized:
		return fmt.Errorf("spotify adapter: %s: %w", endpoint, ports.ErrTokenExpired)
	case http.StatusNotFound:
		return fmt.Errorf("spotify adapter: %s: %w", endpoint, domain.ErrNotFound)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &statusError{endpoint: endpoint, code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("spotify adapter: %s decode error: %w", endpoint, err)
	}
	return nil
}

// do runs the request with retries inside the circuit breaker.
func (c *Client) do(hc *http.Client, req *http.Request, endpoint string) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.doRequestWithRetry(hc, req)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.SpotifyRequests.WithLabelValues(endpoint, "rejected").Inc()
			return nil, fmt.Errorf("spotify adapter: %s: %w: %w", endpoint, ports.ErrUpstreamUnavailable, err)
		case isContextError(err):
			metrics.SpotifyRequests.WithLabelValues(endpoint, "canceled").Inc()
			return nil, err
		default:
			metrics.SpotifyRequests.WithLabelValues(endpoint, "error").Inc()
			return nil, fmt.Errorf("spotify adapter: %s: %w: %w", endpoint, ports.ErrUpstreamUnavailable, err)
		}
	}
	metrics.SpotifyRequests.WithLabelValues(endpoint, fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()
	return resp, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
