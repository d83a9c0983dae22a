// Package jwtutil decodes access credentials into claims without verifying signatures.
//
// Signature trust comes from transport security and backend-side issuance, so
// this package only answers "what does the credential say", never "is it authentic".
package jwtutil

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	// ErrMalformedCredential is returned when a credential cannot be parsed as a compact JWT.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrMissingSubject is returned when the credential carries no subject
	ErrMissingSubject = errors.New("missing subject in credential")
)

// RoleClaim is the private claim holding the user's role.
const RoleClaim = "role"

// Claims is the decoded view of an access credential. Expiry and issued-at are
// tracked with explicit presence so an absent claim is never mistaken for zero.
type Claims struct {
	Subject string
	Role    string

	exp, iat       int64
	hasExp, hasIat bool
}

// NewClaims builds a claims record with both lifetime claims present.
func NewClaims(subject, role string, iat, exp int64) *Claims {
	return &Claims{Subject: subject, Role: role, iat: iat, exp: exp, hasIat: true, hasExp: true}
}

// WithoutExpiry returns a copy with the exp claim removed.
func (c Claims) WithoutExpiry() *Claims {
	c.exp, c.hasExp = 0, false
	return &c
}

// WithoutIssuedAt returns a copy with the iat claim removed.
func (c Claims) WithoutIssuedAt() *Claims {
	c.iat, c.hasIat = 0, false
	return &c
}

// Expiry returns the exp claim in unix seconds and whether it was present.
func (c *Claims) Expiry() (int64, bool) {
	if c == nil {
		return 0, false
	}
	return c.exp, c.hasExp
}

// IssuedAt returns the iat claim in unix seconds and whether it was present.
func (c *Claims) IssuedAt() (int64, bool) {
	if c == nil {
		return 0, false
	}
	return c.iat, c.hasIat
}

// Decode parses credential into a claims record. It never panics: any
// structural problem yields an error wrapping ErrMalformedCredential.
func Decode(credential string) (claims *Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, fmt.Errorf("%w: %v", ErrMalformedCredential, r)
		}
	}()

	if strings.Count(credential, ".") != 2 {
		return nil, fmt.Errorf("%w: expected 3 segments", ErrMalformedCredential)
	}

	token, err := jwt.Parse([]byte(credential), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	claims = &Claims{Subject: token.Subject()}
	if v, ok := token.Get(jwt.ExpirationKey); ok {
		claims.exp, claims.hasExp = unixSeconds(v)
	}
	if v, ok := token.Get(jwt.IssuedAtKey); ok {
		claims.iat, claims.hasIat = unixSeconds(v)
	}
	if v, ok := token.Get(RoleClaim); ok {
		if role, ok := v.(string); ok {
			claims.Role = role
		}
	}

	return claims, nil
}

// ExtractSubject returns the subject of credential without verification.
func ExtractSubject(credential string) (string, error) {
	claims, err := Decode(credential)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// unixSeconds converts a jwx NumericDate value. Anything that is not a whole
// second is reported as absent.
func unixSeconds(v interface{}) (int64, bool) {
	t, ok := v.(time.Time)
	if !ok || t.IsZero() || t.Nanosecond() != 0 {
		return 0, false
	}
	return t.Unix(), true
}
