package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrschumacher/folio/internal/config"
)

func testCookies() *Cookies {
	return &Cookies{
		AccessName:    "a",
		RenewalName:   "r",
		AccessMaxAge:  15 * time.Minute,
		RenewalMaxAge: 24 * time.Hour,
		Secure:        true,
	}
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestCredentialsFromRequest(t *testing.T) {
	c := testCookies()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "a", Value: "access"})
	req.AddCookie(&http.Cookie{Name: "r", Value: "renewal"})

	creds := c.CredentialsFromRequest(req)
	if creds.Access != "access" || creds.Renewal != "renewal" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	empty := c.CredentialsFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	if empty.Access != "" || empty.Renewal != "" {
		t.Fatalf("expected empty credentials, got %+v", empty)
	}
	if _, ok := c.Access(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Fatal("expected no access cookie")
	}
}

func TestSetSession(t *testing.T) {
	rec := httptest.NewRecorder()
	testCookies().SetSession(rec, "access", "renewal")

	got := responseCookies(rec)
	access, renewal := got["a"], got["r"]
	if access == nil || renewal == nil {
		t.Fatalf("expected both cookies, got %v", got)
	}
	if access.HttpOnly {
		t.Error("access cookie must be readable by page script")
	}
	if !renewal.HttpOnly {
		t.Error("renewal cookie must be HttpOnly")
	}
	if access.MaxAge != 900 || renewal.MaxAge != 86400 {
		t.Errorf("max ages = %d, %d", access.MaxAge, renewal.MaxAge)
	}
	for _, ck := range got {
		if !ck.Secure || ck.SameSite != http.SameSiteLaxMode || ck.Path != "/" {
			t.Errorf("cookie %s has wrong attributes: %+v", ck.Name, ck)
		}
	}
}

func TestSetSessionWithoutRenewal(t *testing.T) {
	rec := httptest.NewRecorder()
	testCookies().SetSession(rec, "access", "")
	if _, ok := responseCookies(rec)["r"]; ok {
		t.Fatal("renewal cookie written without a value")
	}
}

func TestClear(t *testing.T) {
	rec := httptest.NewRecorder()
	testCookies().Clear(rec)

	got := responseCookies(rec)
	for _, name := range []string{"a", "r"} {
		ck, ok := got[name]
		if !ok || ck.MaxAge >= 0 || ck.Value != "" {
			t.Errorf("cookie %s not cleared: %+v", name, ck)
		}
	}
}

func TestNewCookiesFromConfig(t *testing.T) {
	cfg := &config.Config{
		AppEnv:              "development",
		AccessCookieName:    "folio_access",
		RenewalCookieName:   "folio_refresh",
		AccessCookieMaxAge:  time.Minute,
		RenewalCookieMaxAge: time.Hour,
	}
	c := NewCookies(cfg)
	if c.Secure {
		t.Error("development cookies should not be Secure")
	}
	if c.AccessName != "folio_access" || c.RenewalName != "folio_refresh" {
		t.Errorf("unexpected names %+v", c)
	}

	cfg.AppEnv = "production"
	if !NewCookies(cfg).Secure {
		t.Error("production cookies must be Secure")
	}
}
