package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/a-h/templ"
	"github.com/jrschumacher/folio/components"
	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/tokenpolicy"
)

// Clock returns unix seconds.
type Clock func() int64

// LayoutMiddleware wraps HTML output from the handler in components.Page.
// Non-HTML responses pass through untouched.
func LayoutMiddleware(appEnv string, now Clock) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, r)

			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			ct := rec.Header().Get("Content-Type")
			if (rec.Code >= 300 && rec.Code < 400) || (ct != "" && !strings.HasPrefix(ct, "text/html")) {
				w.WriteHeader(rec.Code)
				_, _ = w.Write(rec.Body.Bytes())
				return
			}

			data := components.PageData{AppEnv: appEnv, Title: rec.Header().Get("X-Page-Title")}
			w.Header().Del("X-Page-Title")
			if u, ok := GetUserContext(r); ok {
				data.User = &components.User{Subject: u.Subject, Role: u.Role}
				claims, _ := jwtutil.Decode(u.AccessToken)
				data.NextPollMS = tokenpolicy.RefreshPollIntervalMS(claims, now())
			}

			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(rec.Code)
			if err := components.Page(data, templ.Raw(rec.Body.String())).Render(r.Context(), w); err != nil {
				logger.Error("Failed to render page", "error", err)
			}
		})
	}
}

// SetTitle names the page for LayoutMiddleware.
func SetTitle(w http.ResponseWriter, title string) {
	w.Header().Set("X-Page-Title", title)
}
