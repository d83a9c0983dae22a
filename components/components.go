// Package components holds the templ components for the page shell and the
// handful of pages folio renders itself.
package components

//go:generate templ generate

import (
	"fmt"
	"time"

	"github.com/a-h/templ"
)

// KeepaliveID is the element the session refresh endpoint morphs.
const KeepaliveID = "session-keepalive"

// User is the signed-in user as shown in the shell.
type User struct {
	Subject string
	Role    string
}

// PageData configures the page shell.
type PageData struct {
	AppEnv string
	Title  string
	User   *User
	// NextPollMS seeds the page-side refresh loop. Ignored without a User.
	NextPollMS int64
}

// Profile is the account page model.
type Profile struct {
	Subject   string
	Role      string
	Email     string
	ExpiresIn time.Duration
}

func pageTitle(title string) string {
	if title == "" {
		return "folio"
	}
	return title + " · folio"
}

func showEnvBanner(appEnv string) bool {
	return appEnv != "" && appEnv != "production"
}

func sessionSignals(nextPollMS int64) string {
	return fmt.Sprintf("{session: {expires_in: 0, next_poll_ms: %d, ok: true}}", nextPollMS)
}

// keepaliveAttrs carries the interval in the attribute name, which datastar
// reads once when the element is morphed in.
func keepaliveAttrs(nextPollMS int64) templ.Attributes {
	return templ.Attributes{
		fmt.Sprintf("data-on-interval__duration.%dms", nextPollMS): "@post('/session/refresh')",
	}
}

func roleOrDefault(role string) string {
	if role == "" {
		return "reader"
	}
	return role
}

func remaining(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
