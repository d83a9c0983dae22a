// Package tokenpolicy computes credential lifetime decisions from decoded claims.
//
// Every function is pure: "now" is passed in as unix seconds so callers can
// inject a clock. Absent claims always fail closed.
package tokenpolicy

import (
	"errors"

	"github.com/jrschumacher/folio/internal/jwtutil"
)

var (
	// ErrMissingClaims is returned when exp or iat is absent.
	ErrMissingClaims = errors.New("credential missing exp or iat")
	// ErrInvalidLifetime is returned when exp does not come after iat.
	ErrInvalidLifetime = errors.New("credential exp must be after iat")
)

const (
	// MinRefreshThreshold is the floor, in seconds, of the refresh threshold.
	MinRefreshThreshold = 2
	// RefreshFraction is the share of the total lifetime below which a refresh is due.
	RefreshFraction = 0.2

	MinPollIntervalMS = 1000
	MaxPollIntervalMS = 120000
)

// ExpiresAt returns the exp claim, if present.
func ExpiresAt(c *jwtutil.Claims) (int64, bool) {
	return c.Expiry()
}

// IssuedAt returns the iat claim, if present.
func IssuedAt(c *jwtutil.Claims) (int64, bool) {
	return c.IssuedAt()
}

// TimeRemaining returns max(0, exp-now), or 0 when exp is absent.
func TimeRemaining(c *jwtutil.Claims, now int64) int64 {
	exp, ok := ExpiresAt(c)
	if !ok || exp <= now {
		return 0
	}
	return exp - now
}

// TTL returns exp-iat, or 0 when either claim is absent.
func TTL(c *jwtutil.Claims) int64 {
	exp, okExp := ExpiresAt(c)
	iat, okIat := IssuedAt(c)
	if !okExp || !okIat {
		return 0
	}
	return exp - iat
}

// Usable reports whether the credential is well formed and stays valid for at
// least buffer more seconds. Credentials failing Validate are never usable.
func Usable(c *jwtutil.Claims, now, buffer int64) bool {
	return Validate(c) == nil && IsValid(c, now, buffer)
}

// IsValid reports whether the credential stays valid for at least buffer more seconds.
func IsValid(c *jwtutil.Claims, now, buffer int64) bool {
	exp, ok := ExpiresAt(c)
	if !ok {
		return false
	}
	return exp-buffer > now
}

// RefreshThreshold is max(2, ttl*0.2) seconds.
func RefreshThreshold(c *jwtutil.Claims) float64 {
	threshold := float64(TTL(c)) * RefreshFraction
	if threshold < MinRefreshThreshold {
		return MinRefreshThreshold
	}
	return threshold
}

// ShouldRefresh reports whether a proactive refresh is due.
func ShouldRefresh(c *jwtutil.Claims, now int64) bool {
	remaining := TimeRemaining(c, now)
	if remaining == 0 {
		return true
	}
	return float64(remaining) < RefreshThreshold(c)
}

// RefreshPollIntervalMS returns how long to wait before the next refresh check:
// a third of the remaining lifetime, clamped to [1s, 120s]. Waiting a third
// leaves room for two more checks before natural expiry.
func RefreshPollIntervalMS(c *jwtutil.Claims, now int64) int64 {
	remaining := TimeRemaining(c, now)
	if remaining <= 0 {
		return MinPollIntervalMS
	}
	if remaining > MaxPollIntervalMS*3/1000 {
		return MaxPollIntervalMS
	}
	interval := remaining * 1000 / 3
	switch {
	case interval < MinPollIntervalMS:
		return MinPollIntervalMS
	case interval > MaxPollIntervalMS:
		return MaxPollIntervalMS
	default:
		return interval
	}
}

// Validate checks the claims a credential needs to ever be considered valid.
func Validate(c *jwtutil.Claims) error {
	exp, okExp := ExpiresAt(c)
	iat, okIat := IssuedAt(c)
	if !okExp || !okIat {
		return ErrMissingClaims
	}
	if exp <= iat {
		return ErrInvalidLifetime
	}
	return nil
}
