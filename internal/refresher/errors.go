package refresher

import "errors"

// Refresh outcomes. Every failure is returned as one of these, wrapped.
var (
	// ErrNoRenewalCredential means there is nothing to refresh with; the caller must re-authenticate.
	ErrNoRenewalCredential = errors.New("no renewal credential")
	// ErrRefreshFailed covers transport errors, timeouts, non-2xx responses and malformed bodies.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrRefreshRejected means the backend refused the renewal credential itself. It is terminal.
	ErrRefreshRejected = errors.New("renewal credential rejected")
)
