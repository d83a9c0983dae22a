// Package auth serves sign-in, sign-out and the session refresh endpoint.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jrschumacher/folio/components"
	"github.com/jrschumacher/folio/internal/backend"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/middleware"
	"github.com/jrschumacher/folio/internal/svrlib"
	"github.com/jrschumacher/folio/internal/validation"
	"github.com/jrschumacher/folio/internal/web"
)

// Accounts is the backend's login surface.
type Accounts interface {
	Login(ctx context.Context, email, password string) (access, renewal string, err error)
	Logout(ctx context.Context, renewal string) error
}

// Sessions renews access credentials.
type Sessions interface {
	Refresh(ctx context.Context, renewal string) (string, error)
}

// AuthRouter handles /auth/* and /session/*.
type AuthRouter struct {
	*svrlib.Router
	accounts Accounts
	sessions Sessions
	cookies  *web.Cookies
}

// RegisterRoutes registers the auth routes. prefix is normally "/auth".
func RegisterRoutes(r *svrlib.Router, prefix string, accounts Accounts, sessions Sessions, cookies *web.Cookies) *AuthRouter {
	router := &AuthRouter{Router: r, accounts: accounts, sessions: sessions, cookies: cookies}

	pages := r.Pages()
	pages.HandleFunc("GET "+prefix+"/login", router.LoginPageHandler)
	pages.HandleFunc("POST "+prefix+"/login", router.LoginHandler)

	raw := r.Raw()
	raw.HandleFunc(prefix+"/logout", router.LogoutHandler)
	raw.HandleFunc("POST /session/refresh", router.SessionRefreshHandler)

	return router
}

// LoginPageHandler renders the sign-in form.
func (rt *AuthRouter) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	rt.renderLogin(w, r, http.StatusOK, "")
}

func (rt *AuthRouter) renderLogin(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	middleware.SetTitle(w, "Sign in")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	next := SafeNext(r.FormValue("next"))
	if err := components.Login(next, errMsg).Render(r.Context(), w); err != nil {
		logger.Error("Failed to render login page", "error", err)
	}
}

// LoginHandler exchanges the submitted email and password for a credential
// pair and sends the user on to next.
func (rt *AuthRouter) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		rt.renderLogin(w, r, http.StatusBadRequest, "Could not read the form.")
		return
	}
	form := validation.LoginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if err := form.Validate(); err != nil {
		rt.renderLogin(w, r, http.StatusBadRequest, "Check the form: "+err.Error()+".")
		return
	}
	email := form.Email

	access, renewal, err := rt.accounts.Login(r.Context(), email, form.Password)
	switch {
	case errors.Is(err, backend.ErrInvalidLogin):
		logger.Info("Login refused", "email", email)
		rt.renderLogin(w, r, http.StatusUnauthorized, "Email or password is incorrect.")
		return
	case err != nil:
		logger.Error("Login failed", "error", err)
		rt.renderLogin(w, r, http.StatusBadGateway, "Sign-in is unavailable right now. Try again shortly.")
		return
	}

	rt.cookies.SetSession(w, access, renewal)
	logger.Info("User signed in", "email", email)
	http.Redirect(w, r, SafeNext(r.PostFormValue("next")), http.StatusSeeOther)
}

// LogoutHandler clears the session. The backend is told to invalidate the
// renewal credential, but a failure there does not keep the user signed in.
func (rt *AuthRouter) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	creds := rt.cookies.CredentialsFromRequest(r)
	if err := rt.accounts.Logout(r.Context(), creds.Renewal); err != nil {
		logger.Warn("Backend logout failed", "error", err)
	}
	rt.cookies.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SafeNext keeps post-login redirects on this site.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
