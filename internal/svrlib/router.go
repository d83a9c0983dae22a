// Package svrlib provides common server routing utilities
package svrlib

import (
	"net/http"

	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/middleware"
)

// Router carries what every route package needs to register handlers.
type Router struct {
	Config    *config.Config
	Mux       *http.ServeMux
	BaseRoute string
	Stack     middleware.Stack
}

// NewRouter creates a new Router with the given mux, base route, configuration
// and session middleware stack.
func NewRouter(mux *http.ServeMux, baseRoute string, cfg *config.Config, stack middleware.Stack) *Router {
	return &Router{Config: cfg, Mux: mux, BaseRoute: baseRoute, Stack: stack}
}

// Pages returns a group for HTML pages behind the full session stack.
func (r *Router) Pages() *middleware.RouteGroup {
	return middleware.PageGroup(r.Mux, r.Stack)
}

// ProtectedPages is Pages with a hard requirement on a signed-in user.
func (r *Router) ProtectedPages() *middleware.RouteGroup {
	return middleware.ProtectedPageGroup(r.Mux, r.Stack)
}

// ProtectedAPI returns a group for JSON routes that require a signed-in user.
func (r *Router) ProtectedAPI() *middleware.RouteGroup {
	return middleware.ProtectedAPIGroup(r.Mux, r.Stack)
}

// Raw returns a group without session middleware.
func (r *Router) Raw() *middleware.RouteGroup {
	return middleware.RawGroup(r.Mux)
}
