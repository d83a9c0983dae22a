package middleware

import (
	"net/http"
)

// TestUserContextMiddleware injects a fixed user, for handler tests that do
// not want to mint credentials.
func TestUserContextMiddleware(subject, role string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := &UserContext{Subject: subject, Role: role}
			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), u)))
		})
	}
}

// TestProtectedChain is ProtectedAPIGroup's chain with the session
// middlewares replaced by a fixed user.
func TestProtectedChain(subject, role string) *Chain {
	return NewChain(TestUserContextMiddleware(subject, role), RequireUserContext)
}
