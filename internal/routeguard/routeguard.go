// Package routeguard decides whether a navigation may proceed, based on an
// ordered prefix rule table and the caller's authentication state.
package routeguard

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/jrschumacher/folio/internal/config"
)

// LoginPath is where unauthenticated users are sent.
const LoginPath = "/auth/login"

// HomePath is where users lacking a required role are sent.
const HomePath = "/"

// NextParam carries the originally requested path through login.
const NextParam = "next"

// ErrInvalidRule is returned by NewTable for a malformed rule.
var ErrInvalidRule = errors.New("invalid route rule")

// Rule guards every path starting with PathPrefix.
type Rule struct {
	PathPrefix              string
	RequireAuth             bool
	AllowedRoles            []string
	RedirectIfAuthenticated string
}

// State is the authentication state of one request.
type State struct {
	Authenticated bool
	Role          string
}

// Unauthenticated is the state of a request with no usable access credential.
var Unauthenticated = State{}

// AuthenticatedAs returns the state for a decoded credential carrying role.
func AuthenticatedAs(role string) State {
	return State{Authenticated: true, Role: role}
}

// Decision is the outcome of Evaluate. The zero value is not meaningful;
// use Allowed or Redirect.
type Decision struct {
	Allow  bool
	Path   string
	Params url.Values
}

// Allowed lets the navigation proceed.
func Allowed() Decision { return Decision{Allow: true} }

// Redirect sends the navigation to path with params.
func Redirect(path string, params url.Values) Decision {
	if params == nil {
		params = url.Values{}
	}
	return Decision{Path: path, Params: params}
}

// Location renders the redirect target with params as a query string.
func (d Decision) Location() string {
	if d.Allow {
		return ""
	}
	if len(d.Params) == 0 {
		return d.Path
	}
	return d.Path + "?" + d.Params.Encode()
}

func (d Decision) String() string {
	if d.Allow {
		return "allow"
	}
	return "redirect " + d.Location()
}

// Table is an immutable, ordered rule list. The first rule whose prefix
// matches wins; later rules for the same path are shadowed.
type Table struct {
	rules []Rule
}

// NewTable validates and copies rules.
func NewTable(rules []Rule) (*Table, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if !strings.HasPrefix(r.PathPrefix, "/") {
			return nil, fmt.Errorf("%w: rule %d: path_prefix %q must start with /", ErrInvalidRule, i, r.PathPrefix)
		}
		if r.RedirectIfAuthenticated != "" && !strings.HasPrefix(r.RedirectIfAuthenticated, "/") {
			return nil, fmt.Errorf("%w: rule %d: redirect target %q must start with /", ErrInvalidRule, i, r.RedirectIfAuthenticated)
		}
		r.AllowedRoles = slices.Clone(r.AllowedRoles)
		out = append(out, r)
	}
	return &Table{rules: out}, nil
}

// FromConfig builds a table from the configured rule list.
func FromConfig(rules []config.RouteRule) (*Table, error) {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{
			PathPrefix:              r.PathPrefix,
			RequireAuth:             r.RequireAuth,
			AllowedRoles:            r.AllowedRoles,
			RedirectIfAuthenticated: r.RedirectIfAuthenticated,
		}
	}
	return NewTable(out)
}

// Rules returns a copy of the table.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		r.AllowedRoles = slices.Clone(r.AllowedRoles)
		out[i] = r
	}
	return out
}

// Match returns the first rule whose prefix matches path.
func (t *Table) Match(path string) (Rule, bool) {
	for _, r := range t.rules {
		if strings.HasPrefix(path, r.PathPrefix) {
			return r, true
		}
	}
	return Rule{}, false
}

// Evaluate decides the navigation to path. It performs no I/O.
func (t *Table) Evaluate(path string, state State) Decision {
	rule, ok := t.Match(path)
	if !ok {
		return Allowed()
	}

	if rule.RequireAuth {
		if !state.Authenticated {
			return Redirect(LoginPath, url.Values{NextParam: {path}})
		}
		if len(rule.AllowedRoles) > 0 && !slices.Contains(rule.AllowedRoles, state.Role) {
			return Redirect(HomePath, nil)
		}
		return Allowed()
	}

	if rule.RedirectIfAuthenticated != "" && state.Authenticated {
		return Redirect(rule.RedirectIfAuthenticated, nil)
	}
	return Allowed()
}
