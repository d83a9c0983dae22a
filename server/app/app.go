// Package app provides the main application HTTP handlers
package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jrschumacher/folio/components"
	"github.com/jrschumacher/folio/internal/backend"
	"github.com/jrschumacher/folio/internal/db"
	"github.com/jrschumacher/folio/internal/httputil"
	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/middleware"
	"github.com/jrschumacher/folio/internal/session"
	"github.com/jrschumacher/folio/internal/svrlib"
	"github.com/jrschumacher/folio/internal/tokenpolicy"
	"golang.org/x/oauth2"
)

// Profiles fetches the signed-in user's profile from the backend.
type Profiles interface {
	Me(ctx context.Context, ts oauth2.TokenSource) (*backend.Profile, error)
}

// TokenSources hands out bearer tokens that renew themselves.
type TokenSources interface {
	TokenSource(ctx context.Context, creds session.Credentials, buffer int64) oauth2.TokenSource
}

// AuditLog is the refresh audit trail.
type AuditLog interface {
	ListRefreshEvents(ctx context.Context, limit, offset int64) ([]db.RefreshEvent, error)
	RefreshOutcomeCounts(ctx context.Context, since time.Time) (map[string]int64, error)
}

// Router handles application-specific HTTP routes
type Router struct {
	*svrlib.Router
	profiles Profiles
	tokens   TokenSources
	audit    AuditLog
	now      func() time.Time
}

// RegisterRoutes registers all application routes and returns a Router
func RegisterRoutes(r *svrlib.Router, profiles Profiles, tokens TokenSources, audit AuditLog) *Router {
	router := &Router{
		Router:   r,
		profiles: profiles,
		tokens:   tokens,
		audit:    audit,
		now:      time.Now,
	}

	r.Pages().HandleFunc("GET /{$}", router.HomeHandler)
	r.ProtectedPages().HandleFunc("GET /account", router.AccountHandler)
	r.ProtectedAPI().HandleFunc("GET /server/admin/sessions", router.SessionsAPIHandler)

	return router
}

// HomeHandler renders the landing page.
func (r *Router) HomeHandler(w http.ResponseWriter, req *http.Request) {
	var user *components.User
	if u, ok := middleware.GetUserContext(req); ok {
		user = &components.User{Subject: u.Subject, Role: u.Role}
	}
	middleware.SetTitle(w, "folio")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := components.Home(user).Render(req.Context(), w); err != nil {
		logger.Error("Failed to render home page", "error", err)
	}
}

// AccountHandler shows the backend's view of the signed-in user.
func (r *Router) AccountHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userCtx, _ := middleware.GetUserContext(req)
	creds, _ := middleware.CredentialsFrom(ctx)

	ts := r.tokens.TokenSource(ctx, creds, session.DefaultBuffer)
	profile, err := r.profiles.Me(ctx, ts)
	if err != nil {
		status := http.StatusBadGateway
		title, msg := "Backend unavailable", "Your account could not be loaded. Try again shortly."
		if errors.Is(err, backend.ErrUnauthorized) {
			status = http.StatusUnauthorized
			title, msg = "Session expired", "Sign in again to see your account."
		}
		logger.Warn("Failed to load profile", "subject", userCtx.Subject, "error", err)
		r.renderError(w, req, status, title, msg)
		return
	}

	claims, _ := jwtutil.Decode(userCtx.AccessToken)
	remaining := tokenpolicy.TimeRemaining(claims, r.now().Unix())

	middleware.SetTitle(w, "Account")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = components.Account(components.Profile{
		Subject:   profile.Subject,
		Role:      profile.Role,
		Email:     profile.Email,
		ExpiresIn: time.Duration(remaining) * time.Second,
	}).Render(ctx, w)
	if err != nil {
		logger.Error("Failed to render account page", "error", err)
	}
}

func (r *Router) renderError(w http.ResponseWriter, req *http.Request, status int, title, msg string) {
	middleware.SetTitle(w, title)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := components.ErrorPage(title, msg).Render(req.Context(), w); err != nil {
		logger.Error("Failed to render error page", "error", err)
	}
}

// SessionsPage is the admin view of recent refresh activity.
type SessionsPage struct {
	Events []db.RefreshEvent `json:"events"`
	Counts map[string]int64  `json:"counts"`
	Limit  int64             `json:"limit"`
	Offset int64             `json:"offset"`
}

// SessionsAPIHandler lists refresh audit events, newest first, with outcome
// counts for the last 24 hours.
func (r *Router) SessionsAPIHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	limit := int64(50) // default
	if l, err := strconv.ParseInt(req.URL.Query().Get("limit"), 10, 64); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	offset := int64(0) // default
	if o, err := strconv.ParseInt(req.URL.Query().Get("offset"), 10, 64); err == nil && o >= 0 {
		offset = o
	}

	events, err := r.audit.ListRefreshEvents(ctx, limit, offset)
	if err != nil {
		httputil.WriteInternalError(w, err, "Failed to list refresh events")
		return
	}
	counts, err := r.audit.RefreshOutcomeCounts(ctx, r.now().Add(-24*time.Hour))
	if err != nil {
		httputil.WriteInternalError(w, err, "Failed to count refresh events")
		return
	}
	if events == nil {
		events = []db.RefreshEvent{}
	}

	httputil.WriteData(w, http.StatusOK, SessionsPage{Events: events, Counts: counts, Limit: limit, Offset: offset})
}
