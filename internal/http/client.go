package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (%s)", e.Code, e.Status, e.URL)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client wraps HTTP operations used by the catalog and artwork fetchers.
//
// Client provides:
//   - a fixed User-Agent header
//   - request timeouts
//   - retries with exponential backoff for transport errors, 429 and 5xx
//
// Example:
//
//	client := NewClient()
//	var track dto.Track
//	err := client.GetJSON(ctx, "https://api.spotify.com/v1/tracks/"+id, token, &track)
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxRetries uint64
	backoff    func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoff overrides the backoff policy, mainly for tests.
func WithBackoff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.backoff = fn }
}

// NewClient creates a client with a 30 second timeout and three retries.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "MusicParser",
		maxRetries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 20 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		return req, nil
	})
}

// GetJSON performs a GET with an optional bearer token and decodes the
// JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL, bearer string, out any) error {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if bearer != "" {
		header.Set("Authorization", "Bearer "+bearer)
	}

	body, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// PostForm posts form values with HTTP basic auth and decodes the JSON
// response into out.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, user, pass string, out any) error {
	encoded := form.Encode()
	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if user != "" || pass != "" {
			req.SetBasicAuth(user, pass)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// DownloadBytes downloads a small file, such as a thumbnail, into memory.
func (c *Client) DownloadBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return c.Get(ctx, rawURL, nil)
}

func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: req.URL.Redacted()}
			if statusErr.Temporary() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		return nil, err
	}
	return body, nil
}
