package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrschumacher/folio/internal/backend"
	"github.com/jrschumacher/folio/internal/db"
	"github.com/jrschumacher/folio/internal/middleware"
	"github.com/jrschumacher/folio/internal/session"
	"github.com/jrschumacher/folio/internal/svrlib"
	"golang.org/x/oauth2"
)

type fakeProfiles struct {
	profile *backend.Profile
	err     error
	token   string
}

func (f *fakeProfiles) Me(_ context.Context, ts oauth2.TokenSource) (*backend.Profile, error) {
	tok, err := ts.Token()
	if err != nil {
		return nil, err
	}
	f.token = tok.AccessToken
	return f.profile, f.err
}

type staticTokens struct{}

func (staticTokens) TokenSource(_ context.Context, creds session.Credentials, _ int64) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Access})
}

type fakeAudit struct {
	limit, offset int64
	err           error
}

func (f *fakeAudit) ListRefreshEvents(_ context.Context, limit, offset int64) ([]db.RefreshEvent, error) {
	f.limit, f.offset = limit, offset
	return []db.RefreshEvent{{ID: 1, Subject: "user-1", Outcome: session.OutcomeRefreshed}}, f.err
}

func (f *fakeAudit) RefreshOutcomeCounts(context.Context, time.Time) (map[string]int64, error) {
	return map[string]int64{session.OutcomeRefreshed: 1}, nil
}

func newRouter(p Profiles, a AuditLog) *Router {
	return RegisterRoutes(svrlib.NewRouter(http.NewServeMux(), "/", nil, middleware.Stack{}), p, staticTokens{}, a)
}

func signedIn(req *http.Request) *http.Request {
	ctx := middleware.WithCredentials(req.Context(), session.Credentials{Access: "access", Renewal: "renewal"})
	ctx = middleware.WithUserContext(ctx, &middleware.UserContext{Subject: "user-1", Role: "reader", AccessToken: "access"})
	return req.WithContext(ctx)
}

func TestAccountHandler(t *testing.T) {
	tests := []struct {
		name       string
		profiles   *fakeProfiles
		wantStatus int
		wantBody   string
	}{
		{"profile", &fakeProfiles{profile: &backend.Profile{Subject: "user-1", Email: "one@example.com", Role: "reader"}}, http.StatusOK, "one@example.com"},
		{"unauthorized", &fakeProfiles{err: backend.ErrUnauthorized}, http.StatusUnauthorized, "Session expired"},
		{"unavailable", &fakeProfiles{err: errors.New("dial tcp")}, http.StatusBadGateway, "Backend unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(tt.profiles, &fakeAudit{})
			rec := httptest.NewRecorder()
			r.AccountHandler(rec, signedIn(httptest.NewRequest(http.MethodGet, "/account", nil)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body missing %q: %s", tt.wantBody, rec.Body.String())
			}
			if tt.profiles.token != "access" {
				t.Errorf("backend saw token %q", tt.profiles.token)
			}
		})
	}
}

func TestHomeHandler(t *testing.T) {
	r := newRouter(&fakeProfiles{}, &fakeAudit{})

	rec := httptest.NewRecorder()
	r.HomeHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), "Sign in") {
		t.Errorf("anonymous home: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.HomeHandler(rec, signedIn(httptest.NewRequest(http.MethodGet, "/", nil)))
	if !strings.Contains(rec.Body.String(), "Welcome back, user-1") {
		t.Errorf("signed-in home: %s", rec.Body.String())
	}
}

func TestSessionsAPIHandler(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int64
		wantOffset int64
	}{
		{"", 50, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=9999&offset=-1", 50, 0},
		{"?limit=abc", 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			audit := &fakeAudit{}
			r := newRouter(&fakeProfiles{}, audit)
			rec := httptest.NewRecorder()
			r.SessionsAPIHandler(rec, httptest.NewRequest(http.MethodGet, "/server/admin/sessions"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if audit.limit != tt.wantLimit || audit.offset != tt.wantOffset {
				t.Errorf("limit/offset = %d/%d, want %d/%d", audit.limit, audit.offset, tt.wantLimit, tt.wantOffset)
			}
			var out struct {
				Data SessionsPage `json:"data"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(out.Data.Events) != 1 || out.Data.Counts["refreshed"] != 1 {
				t.Errorf("unexpected page %+v", out.Data)
			}
		})
	}
}

func TestSessionsAPIHandlerError(t *testing.T) {
	r := newRouter(&fakeProfiles{}, &fakeAudit{err: errors.New("db closed")})
	rec := httptest.NewRecorder()
	r.SessionsAPIHandler(rec, httptest.NewRequest(http.MethodGet, "/server/admin/sessions", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
