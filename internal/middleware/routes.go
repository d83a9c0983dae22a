package middleware

import (
	"net/http"
)

// RouteGroup registers routes on a mux behind a shared chain.
type RouteGroup struct {
	mux   *http.ServeMux
	chain *Chain
}

// NewRouteGroup creates a group.
func NewRouteGroup(mux *http.ServeMux, middlewares ...Middleware) *RouteGroup {
	return &RouteGroup{mux: mux, chain: NewChain(middlewares...)}
}

// Handle registers handler behind the group's chain.
func (rg *RouteGroup) Handle(pattern string, handler http.Handler) {
	rg.mux.Handle(pattern, rg.chain.Then(handler))
}

// HandleFunc registers fn behind the group's chain.
func (rg *RouteGroup) HandleFunc(pattern string, fn http.HandlerFunc) {
	rg.mux.Handle(pattern, rg.chain.ThenFunc(fn))
}

// Group creates a sub-group with additional middleware.
func (rg *RouteGroup) Group(middlewares ...Middleware) *RouteGroup {
	return &RouteGroup{mux: rg.mux, chain: rg.chain.Append(middlewares...)}
}

// Stack is the set of session middlewares shared by every page route.
// Guard may be nil when the guard is mounted in front of the whole mux.
type Stack struct {
	Guard   Middleware
	Refresh Middleware
	Layout  Middleware
}

// PageGroup runs guard, token refresh, user context, then layout.
func PageGroup(mux *http.ServeMux, s Stack) *RouteGroup {
	return NewRouteGroup(mux, s.Guard, s.Refresh, UserContextMiddleware, s.Layout)
}

// ProtectedPageGroup is PageGroup with a hard requirement on a user context,
// for handlers that must not run anonymously even if the rule table allows it.
func ProtectedPageGroup(mux *http.ServeMux, s Stack) *RouteGroup {
	return NewRouteGroup(mux, s.Guard, s.Refresh, UserContextMiddleware, RequireUserContext, s.Layout)
}

// ProtectedAPIGroup is for JSON routes: no layout.
func ProtectedAPIGroup(mux *http.ServeMux, s Stack) *RouteGroup {
	return NewRouteGroup(mux, s.Guard, s.Refresh, UserContextMiddleware, RequireUserContext)
}

// RawGroup has no session middleware (health checks, the refresh endpoint).
func RawGroup(mux *http.ServeMux) *RouteGroup {
	return NewRouteGroup(mux)
}
