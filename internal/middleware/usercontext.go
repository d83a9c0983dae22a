package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/routeguard"
)

// UserContext holds user information decoded from the access credential.
type UserContext struct {
	Subject     string
	Role        string
	AccessToken string
}

type contextKey string

const userContextKey contextKey = "user"

// WithUserContext stores u in ctx.
func WithUserContext(ctx context.Context, u *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserContextMiddleware decodes the credentials left by TokenRefreshMiddleware
// into a UserContext. Requests without a usable credential pass through bare.
func UserContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := CredentialsFrom(r.Context())
		if !ok || creds.Access == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := jwtutil.Decode(creds.Access)
		if err != nil {
			logger.Warn("Failed to decode access credential", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if claims.Subject == "" {
			logger.Warn("Access credential missing subject")
			next.ServeHTTP(w, r)
			return
		}

		u := &UserContext{Subject: claims.Subject, Role: claims.Role, AccessToken: creds.Access}
		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), u)))
	})
}

// GetUserContext extracts user context from request context
func GetUserContext(r *http.Request) (*UserContext, bool) {
	u, ok := r.Context().Value(userContextKey).(*UserContext)
	return u, ok && u != nil
}

// RequireUserContext redirects to login when no user context exists.
func RequireUserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserContext(r); !ok {
			target := routeguard.LoginPath + "?" + url.Values{routeguard.NextParam: {r.URL.Path}}.Encode()
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
