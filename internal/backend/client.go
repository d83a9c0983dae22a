// Package backend calls the platform backend's account endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/jrschumacher/folio/internal/logger"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidLogin is returned when the backend refuses the email/password pair.
	ErrInvalidLogin = errors.New("invalid email or password")
	// ErrUnauthorized is returned when the backend refuses the bearer credential.
	ErrUnauthorized = errors.New("backend refused credential")
	// ErrUnavailable covers transport failures and unexpected statuses.
	ErrUnavailable = errors.New("backend unavailable")
)

const maxResponseBytes = 1 << 20

// Profile is the /users/me payload.
type Profile struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

// Client talks to the backend. Authenticated calls take an oauth2.TokenSource
// so the credential is renewed transparently.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: cleanhttp.DefaultPooledClient(),
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Login exchanges an email/password pair for a credential pair.
func (c *Client) Login(ctx context.Context, email, password string) (access, renewal string, err error) {
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	status, err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}, &out)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusBadRequest:
		return "", "", ErrInvalidLogin
	case err != nil:
		return "", "", err
	case out.AccessToken == "" || out.RefreshToken == "":
		return "", "", fmt.Errorf("%w: login response missing credentials", ErrUnavailable)
	}
	return out.AccessToken, out.RefreshToken, nil
}

// Logout asks the backend to invalidate renewal. Callers treat it as best effort.
func (c *Client) Logout(ctx context.Context, renewal string) error {
	if renewal == "" {
		return nil
	}
	_, err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/logout",
		map[string]string{"refresh_token": renewal}, nil)
	return err
}

// Me fetches the signed-in user's profile.
func (c *Client) Me(ctx context.Context, ts oauth2.TokenSource) (*Profile, error) {
	authed := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), ts)
	var p Profile
	status, err := c.do(ctx, authed, http.MethodGet, "/users/me", nil, &p)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		// oauth2 transports surface token source errors here.
		return 0, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debug("Backend call failed", "method", method, "path", path, "status", resp.StatusCode)
		return resp.StatusCode, fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	}
	if out == nil {
		return resp.StatusCode, nil
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode %s data: %v", ErrUnavailable, path, err)
	}
	return resp.StatusCode, nil
}
