package refresher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrschumacher/folio/internal/devbackend"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func newBackend(t *testing.T) (*devbackend.Backend, *httptest.Server) {
	t.Helper()
	b := devbackend.New("secret", time.Minute)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func TestRefreshSuccess(t *testing.T) {
	b, srv := newBackend(t)
	_, renewal, err := b.OpenSession(devbackend.User{Subject: "user-1", Role: "reader"})
	if err != nil {
		t.Fatal(err)
	}

	token, err := New(srv.URL).Refresh(context.Background(), renewal)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
}

func TestRefreshUnauthorizedIsRejected(t *testing.T) {
	_, srv := newBackend(t)

	token, err := New(srv.URL).Refresh(context.Background(), "revoked")
	if !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", err)
	}
	if token != "" {
		t.Fatalf("expected no token, got %q", token)
	}
}

func TestRefreshEmptyRenewalMakesNoCall(t *testing.T) {
	b, srv := newBackend(t)

	_, err := New(srv.URL).Refresh(context.Background(), "")
	if !errors.Is(err, ErrNoRenewalCredential) {
		t.Fatalf("expected ErrNoRenewalCredential, got %v", err)
	}
	if b.RefreshCalls() != 0 {
		t.Fatalf("expected no backend call, got %d", b.RefreshCalls())
	}
}

// signSubjectOnly signs a credential carrying sub and nothing else.
func signSubjectOnly(t *testing.T) string {
	t.Helper()
	tok := jwt.New()
	_ = tok.Set(jwt.SubjectKey, "user-1")
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("secret")))
	if err != nil {
		t.Fatal(err)
	}
	return string(signed)
}

func respondWith(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"access_token":"` + token + `"}}`))
	}
}

func TestRefreshFailures(t *testing.T) {
	now := time.Now()
	inverted, err := devbackend.MintToken([]byte("secret"), "user-1", "reader", now.Add(time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: ErrRefreshFailed,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			want: ErrRefreshRejected,
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":{}}`))
			},
			want: ErrRefreshFailed,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			want: ErrRefreshFailed,
		},
		{
			name: "malformed access token",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"access_token":"abc"}}`))
			},
			want: ErrRefreshFailed,
		},
		{
			name:    "access token without exp or iat",
			handler: respondWith(signSubjectOnly(t)),
			want:    ErrRefreshFailed,
		},
		{
			name:    "access token expiring before issue",
			handler: respondWith(inverted),
			want:    ErrRefreshFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			token, err := New(srv.URL).Refresh(context.Background(), "renewal")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if token != "" {
				t.Fatalf("expected no token, got %q", token)
			}
		})
	}
}

func TestRefreshTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Refresh(context.Background(), "renewal")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed on timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestRefreshConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := New(url).Refresh(context.Background(), "renewal"); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
}

func TestWithPath(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _ = New(srv.URL+"/", WithPath("/session/refresh")).Refresh(context.Background(), "renewal")
	if got != "/session/refresh" {
		t.Fatalf("request path = %q", got)
	}
}
