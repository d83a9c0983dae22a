// Package refresher exchanges a renewal credential for a new access credential.
package refresher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/tokenpolicy"
)

const (
	// DefaultPath is the backend refresh endpoint.
	DefaultPath = "/auth/refresh"
	// DefaultTimeout bounds a single refresh call.
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
)

// Request is the refresh request body.
type Request struct {
	RefreshToken string `json:"refresh_token"`
}

// Response is the refresh response envelope.
type Response struct {
	Data struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// Client calls the backend refresh endpoint. It holds no per-session state and
// is safe for concurrent use.
type Client struct {
	baseURL    string
	path       string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithPath overrides the endpoint path, e.g. to target folio's own /session/refresh.
func WithPath(p string) Option {
	return func(cl *Client) { cl.path = p }
}

// New creates a refresher for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       DefaultPath,
		timeout:    DefaultTimeout,
		httpClient: cleanhttp.DefaultPooledClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh submits renewal and returns the new access credential. It makes
// exactly one attempt; persisting the result is the caller's job.
func (c *Client) Refresh(ctx context.Context, renewal string) (string, error) {
	if renewal == "" {
		return "", ErrNoRenewalCredential
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(Request{RefreshToken: renewal})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrRefreshFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logger.Info("Renewal credential rejected by backend", "status", resp.StatusCode)
		return "", fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRefreshFailed, err)
	}
	token := out.Data.AccessToken
	if token == "" {
		return "", fmt.Errorf("%w: response missing access_token", ErrRefreshFailed)
	}
	claims, err := jwtutil.Decode(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if err := tokenpolicy.Validate(claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	return token, nil
}
