// Package middleware provides the HTTP middleware chain and the session-aware
// middlewares folio mounts in front of its pages.
package middleware

import (
	"net/http"
)

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Chain is an ordered middleware list; the first middleware runs first.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain. Nil middlewares are skipped.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: compact(nil, middlewares)}
}

// Then wraps handler with the chain.
func (c *Chain) Then(handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i](handler)
	}
	return handler
}

// ThenFunc wraps a handler function with the chain.
func (c *Chain) ThenFunc(fn http.HandlerFunc) http.Handler {
	return c.Then(fn)
}

// Append returns a new chain with middlewares added after the existing ones.
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	out := make([]Middleware, 0, len(c.middlewares)+len(middlewares))
	out = append(out, c.middlewares...)
	return &Chain{middlewares: compact(out, middlewares)}
}

func compact(dst, middlewares []Middleware) []Middleware {
	for _, m := range middlewares {
		if m != nil {
			dst = append(dst, m)
		}
	}
	return dst
}
