package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/refresher"
	"github.com/jrschumacher/folio/internal/session"
	"github.com/jrschumacher/folio/internal/tokenpolicy"
)

// Accessor hands out usable access credentials.
type Accessor interface {
	ValidAccessCredential(ctx context.Context, creds session.Credentials, buffer int64) (string, error)
}

// CookieStore reads and writes the credential cookies.
type CookieStore interface {
	AccessReader
	CredentialsFromRequest(r *http.Request) session.Credentials
	SetAccess(w http.ResponseWriter, access string)
	Clear(w http.ResponseWriter)
}

type credentialsKey struct{}

// WithCredentials stores the request's effective credentials.
func WithCredentials(ctx context.Context, creds session.Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFrom returns the credentials stored by TokenRefreshMiddleware.
func CredentialsFrom(ctx context.Context) (session.Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(session.Credentials)
	return creds, ok
}

// TokenRefreshMiddleware makes sure handlers see a usable access credential.
// A renewed credential is written back to the access cookie. On a transient
// refresh failure a stale credential that has not yet expired is kept; a
// rejected or missing renewal credential clears both cookies.
func TokenRefreshMiddleware(accessor Accessor, cookies CookieStore, buffer int64, now func() time.Time) Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := cookies.CredentialsFromRequest(r)
			if creds.Access == "" && creds.Renewal == "" {
				next.ServeHTTP(w, r)
				return
			}

			log := logger.FromContext(r.Context())
			access, err := accessor.ValidAccessCredential(r.Context(), creds, buffer)
			switch {
			case err == nil:
				if access != creds.Access {
					log.Debug("Access credential refreshed")
					cookies.SetAccess(w, access)
					creds.Access = access
				}
			case errors.Is(err, refresher.ErrRefreshFailed):
				if stillValid(creds.Access, now().Unix()) {
					log.Warn("Refresh failed, continuing with stale access credential", "error", err)
				} else {
					log.Warn("Refresh failed and no usable access credential", "error", err)
					creds.Access = ""
				}
			default:
				log.Info("Session ended, clearing credentials", "error", err)
				cookies.Clear(w)
				creds = session.Credentials{}
			}

			next.ServeHTTP(w, r.WithContext(WithCredentials(r.Context(), creds)))
		})
	}
}

func stillValid(access string, now int64) bool {
	if access == "" {
		return false
	}
	claims, err := jwtutil.Decode(access)
	if err != nil {
		return false
	}
	return tokenpolicy.Usable(claims, now, 0)
}
