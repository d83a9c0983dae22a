// Package web reads and writes the credential cookie pair.
package web

import (
	"net/http"
	"time"

	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/session"
)

// Cookies knows the names and lifetimes of the credential cookies.
type Cookies struct {
	AccessName    string
	RenewalName   string
	AccessMaxAge  time.Duration
	RenewalMaxAge time.Duration
	Secure        bool
}

// NewCookies builds cookie settings from configuration. Cookies are Secure
// everywhere except development.
func NewCookies(cfg *config.Config) *Cookies {
	return &Cookies{
		AccessName:    cfg.AccessCookieName,
		RenewalName:   cfg.RenewalCookieName,
		AccessMaxAge:  cfg.AccessCookieMaxAge,
		RenewalMaxAge: cfg.RenewalCookieMaxAge,
		Secure:        !cfg.IsDev(),
	}
}

// CredentialsFromRequest reads the credential pair. Missing cookies yield empty fields.
func (c *Cookies) CredentialsFromRequest(r *http.Request) session.Credentials {
	return session.Credentials{
		Access:  cookieValue(r, c.AccessName),
		Renewal: cookieValue(r, c.RenewalName),
	}
}

// Access returns the access cookie value, if any.
func (c *Cookies) Access(r *http.Request) (string, bool) {
	v := cookieValue(r, c.AccessName)
	return v, v != ""
}

// SetAccess replaces the access cookie. It is readable by page script.
func (c *Cookies) SetAccess(w http.ResponseWriter, access string) {
	http.SetCookie(w, c.cookie(c.AccessName, access, c.AccessMaxAge, false))
}

// SetSession writes both cookies after a login.
func (c *Cookies) SetSession(w http.ResponseWriter, access, renewal string) {
	c.SetAccess(w, access)
	if renewal != "" {
		http.SetCookie(w, c.cookie(c.RenewalName, renewal, c.RenewalMaxAge, true))
	}
}

// Clear expires both cookies.
func (c *Cookies) Clear(w http.ResponseWriter) {
	for _, ck := range []*http.Cookie{
		c.cookie(c.AccessName, "", 0, false),
		c.cookie(c.RenewalName, "", 0, true),
	} {
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}

func (c *Cookies) cookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
