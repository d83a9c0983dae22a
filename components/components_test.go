package components

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestPageAnonymous(t *testing.T) {
	html := render(t, Page(PageData{AppEnv: "production", Title: "Home"}, Home(nil)))

	if !strings.Contains(html, "<title>Home · folio</title>") {
		t.Error("missing title")
	}
	if strings.Contains(html, KeepaliveID) {
		t.Error("anonymous page must not run the refresh loop")
	}
	if !strings.Contains(html, `href="/auth/login"`) {
		t.Error("missing sign-in link")
	}
	if strings.Contains(html, "env-banner") {
		t.Error("production page shows env banner")
	}
}

func TestPageSignedIn(t *testing.T) {
	html := render(t, Page(PageData{
		AppEnv:     "development",
		User:       &User{Subject: "user-1", Role: "admin"},
		NextPollMS: 40000,
	}, Home(&User{Subject: "user-1"})))

	for _, want := range []string{
		`id="session-keepalive"`,
		`data-on-interval__duration.40000ms="@post(&#39;/session/refresh&#39;)"`,
		`next_poll_ms: 40000`,
		`/server/admin/sessions`,
		`action="/auth/logout"`,
		"env-banner",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestLoginEscapes(t *testing.T) {
	html := render(t, Login(`/x"><script>`, "<b>bad</b>"))
	if strings.Contains(html, "<script>") || strings.Contains(html, "<b>") {
		t.Fatalf("unescaped input in %s", html)
	}
	if !strings.Contains(html, `name="next"`) {
		t.Error("missing next field")
	}
}

func TestAccount(t *testing.T) {
	html := render(t, Account(Profile{Subject: "user-1", Email: "ada@example.com", ExpiresIn: 90 * time.Second}))
	for _, want := range []string{"user-1", "ada@example.com", "reader", "1m30s"} {
		if !strings.Contains(html, want) {
			t.Errorf("account page missing %q", want)
		}
	}
}

func TestSessionKeepaliveSingleTimer(t *testing.T) {
	html := render(t, SessionKeepalive(1000))
	if strings.Count(html, "data-on-interval") != 1 {
		t.Fatalf("expected exactly one interval attribute in %s", html)
	}
	if !strings.HasPrefix(html, `<div id="session-keepalive" data-on-interval__duration.1000ms=`) {
		t.Errorf("unexpected keepalive markup %s", html)
	}
}

func TestErrorPageEscapes(t *testing.T) {
	html := render(t, ErrorPage("Oops", "<i>nope</i>"))
	if strings.Contains(html, "<i>") || !strings.Contains(html, "<h1>Oops</h1>") {
		t.Fatalf("unexpected error page %s", html)
	}
}
