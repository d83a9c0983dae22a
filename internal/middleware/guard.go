package middleware

import (
	"net/http"

	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/routeguard"
)

// AccessReader returns the access cookie value of a request.
type AccessReader interface {
	Access(r *http.Request) (string, bool)
}

// RequestState derives the guard state from the access cookie alone: present
// and decodable is authenticated, anything else is not.
func RequestState(r *http.Request, cookies AccessReader) routeguard.State {
	access, ok := cookies.Access(r)
	if !ok {
		return routeguard.Unauthenticated
	}
	claims, err := jwtutil.Decode(access)
	if err != nil {
		return routeguard.Unauthenticated
	}
	return routeguard.AuthenticatedAs(claims.Role)
}

// RouteGuard applies table to every request before any other session work.
// Redirects use 303 so a guarded POST is retried as a GET.
func RouteGuard(table *routeguard.Table, cookies AccessReader) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := table.Evaluate(r.URL.Path, RequestState(r, cookies))
			if d.Allow {
				next.ServeHTTP(w, r)
				return
			}
			logger.FromContext(r.Context()).Debug("Route guard redirect", "path", r.URL.Path, "location", d.Location())
			http.Redirect(w, r, d.Location(), http.StatusSeeOther)
		})
	}
}
