// Package devbackend is a local stand-in for the platform backend's auth
// endpoints. It issues HS256 access credentials with jwx and opaque renewal
// credentials, and is used by `folio util dev-backend` and by tests.
package devbackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrInvalidRenewal = errors.New("invalid renewal credential")
	ErrInvalidAccess  = errors.New("invalid access credential")
)

// User is an account known to the dev backend.
type User struct {
	Email    string `json:"email"`
	Password string `json:"-"`
	Subject  string `json:"subject"`
	Role     string `json:"role"`
}

// Backend holds accounts and live renewal credentials in memory.
type Backend struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time

	mu       sync.Mutex
	users    map[string]User // by email
	sessions map[string]User // by renewal credential

	refreshCalls atomic.Int64
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates a backend signing with secret and issuing access credentials valid for accessTTL.
func New(secret string, accessTTL time.Duration, opts ...Option) *Backend {
	b := &Backend{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		users:     make(map[string]User),
		sessions:  make(map[string]User),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddUser registers an account.
func (b *Backend) AddUser(u User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[strings.ToLower(u.Email)] = u
}

// Login checks credentials and opens a session.
func (b *Backend) Login(email, password string) (access, renewal string, err error) {
	b.mu.Lock()
	u, ok := b.users[strings.ToLower(email)]
	b.mu.Unlock()
	if !ok || u.Password != password {
		return "", "", ErrUnknownUser
	}
	return b.OpenSession(u)
}

// OpenSession issues a credential pair for u without checking a password.
func (b *Backend) OpenSession(u User) (access, renewal string, err error) {
	access, err = b.MintAccess(u.Subject, u.Role)
	if err != nil {
		return "", "", err
	}
	renewal = uuid.NewString()

	b.mu.Lock()
	b.sessions[renewal] = u
	b.mu.Unlock()
	return access, renewal, nil
}

// Refresh issues a new access credential for a live renewal credential.
func (b *Backend) Refresh(renewal string) (string, error) {
	b.refreshCalls.Add(1)
	b.mu.Lock()
	u, ok := b.sessions[renewal]
	b.mu.Unlock()
	if !ok {
		return "", ErrInvalidRenewal
	}
	return b.MintAccess(u.Subject, u.Role)
}

// Revoke invalidates a renewal credential, as logout or reuse detection would.
func (b *Backend) Revoke(renewal string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, renewal)
}

// RefreshCalls reports how many refresh requests have been received.
func (b *Backend) RefreshCalls() int64 {
	return b.refreshCalls.Load()
}

// MintAccess signs an access credential for subject/role starting now.
func (b *Backend) MintAccess(subject, role string) (string, error) {
	iat := b.now().Truncate(time.Second)
	return MintToken(b.secret, subject, role, iat, iat.Add(b.accessTTL))
}

// MintToken signs an HS256 access credential with the given lifetime.
func MintToken(secret []byte, subject, role string, iat, exp time.Time) (string, error) {
	token := jwt.New()
	_ = token.Set(jwt.SubjectKey, subject)
	_ = token.Set(jwt.IssuedAtKey, iat)
	_ = token.Set(jwt.ExpirationKey, exp)
	if role != "" {
		_ = token.Set(jwtutil.RoleClaim, role)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// verifyAccess checks signature and expiry; the dev backend is the issuer, so it may.
func (b *Backend) verifyAccess(credential string) (User, error) {
	token, err := jwt.Parse([]byte(credential),
		jwt.WithKey(jwa.HS256, b.secret),
		jwt.WithClock(jwt.ClockFunc(b.now)),
	)
	if err != nil {
		return User{}, ErrInvalidAccess
	}
	u := User{Subject: token.Subject()}
	if v, ok := token.Get(jwtutil.RoleClaim); ok {
		u.Role, _ = v.(string)
	}
	b.mu.Lock()
	for _, known := range b.users {
		if known.Subject == u.Subject {
			u.Email = known.Email
		}
	}
	b.mu.Unlock()
	return u, nil
}

// Handler serves the backend endpoints folio consumes.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", b.handleLogin)
	mux.HandleFunc("POST /auth/refresh", b.handleRefresh)
	mux.HandleFunc("POST /auth/logout", b.handleLogout)
	mux.HandleFunc("GET /users/me", b.handleMe)
	return mux
}

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode dev backend response", "error", err)
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid body"})
		return
	}
	access, renewal, err := b.Login(body.Email, body.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]string{
		"access_token":  access,
		"refresh_token": renewal,
	}})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "missing refresh_token"})
		return
	}
	access, err := b.Refresh(body.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "invalid refresh token"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"access_token": access}})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.RefreshToken != "" {
		b.Revoke(body.RefreshToken)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "missing bearer token"})
		return
	}
	u, err := b.verifyAccess(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "invalid access token"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: u})
}
