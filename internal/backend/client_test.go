package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrschumacher/folio/internal/devbackend"
	"github.com/jrschumacher/folio/internal/refresher"
	"github.com/jrschumacher/folio/internal/session"
	"golang.org/x/oauth2"
)

func newBackend(t *testing.T) (*devbackend.Backend, *Client) {
	t.Helper()
	b := devbackend.New("secret", 15*time.Minute)
	b.AddUser(devbackend.User{Email: "ada@example.com", Password: "pw", Subject: "user-1", Role: "admin"})
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, New(srv.URL + "/")
}

func TestLoginAndLogout(t *testing.T) {
	b, c := newBackend(t)
	ctx := context.Background()

	access, renewal, err := c.Login(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if access == "" || renewal == "" {
		t.Fatal("expected a credential pair")
	}

	if _, _, err := c.Login(ctx, "ada@example.com", "nope"); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("expected ErrInvalidLogin, got %v", err)
	}

	if err := c.Logout(ctx, renewal); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := b.Refresh(renewal); !errors.Is(err, devbackend.ErrInvalidRenewal) {
		t.Error("renewal credential still live after logout")
	}
	if err := c.Logout(ctx, ""); err != nil {
		t.Errorf("empty logout: %v", err)
	}
}

func TestMeWithStaticToken(t *testing.T) {
	_, c := newBackend(t)
	access, _, err := c.Login(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}

	p, err := c.Me(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access}))
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if p.Subject != "user-1" || p.Email != "ada@example.com" || p.Role != "admin" {
		t.Errorf("unexpected profile %+v", p)
	}

	_, err = c.Me(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "bogus"}))
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestMeRefreshesThroughTokenSource(t *testing.T) {
	b, c := newBackend(t)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()
	_, renewal, err := b.Login("ada@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}

	svc := session.New(refresher.New(srv.URL))
	ts := svc.TokenSource(context.Background(), session.Credentials{Renewal: renewal}, session.DefaultBuffer)

	p, err := c.Me(context.Background(), ts)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if p.Subject != "user-1" {
		t.Errorf("unexpected profile %+v", p)
	}
	if b.RefreshCalls() != 1 {
		t.Errorf("refresh calls = %d, want 1", b.RefreshCalls())
	}

	b.Revoke(renewal)
	ts = svc.TokenSource(context.Background(), session.Credentials{Renewal: renewal}, session.DefaultBuffer)
	if _, err := c.Me(context.Background(), ts); !errors.Is(err, refresher.ErrRefreshRejected) {
		t.Errorf("expected ErrRefreshRejected through the transport, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := New(srv.URL, WithTimeout(time.Second), WithHTTPClient(srv.Client()))

	if _, _, err := c.Login(context.Background(), "a", "b"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Login: expected ErrUnavailable, got %v", err)
	}
	if err := c.Logout(context.Background(), "r"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Logout: expected ErrUnavailable, got %v", err)
	}
}
