// Package session hands out usable access credentials for a request, renewing
// them through the backend when the current one is missing or about to expire.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/refresher"
	"github.com/jrschumacher/folio/internal/tokenpolicy"
	"golang.org/x/sync/singleflight"
)

// DefaultBuffer is the validity margin, in seconds, applied when none is configured.
const DefaultBuffer int64 = 60

// Audit outcomes.
const (
	OutcomeRefreshed = "refreshed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Credentials is the credential pair carried by one request.
type Credentials struct {
	Access  string
	Renewal string
}

// Refresher exchanges a renewal credential for a new access credential.
type Refresher interface {
	Refresh(ctx context.Context, renewal string) (string, error)
}

// Auditor records the outcome of a refresh attempt.
type Auditor interface {
	RecordRefresh(ctx context.Context, subject, outcome, reason string, at time.Time) error
}

// Service is the per-process accessor. It holds no per-session state; all
// session data arrives through Credentials.
type Service struct {
	refresher Refresher
	registry  Registry
	auditor   Auditor
	now       func() time.Time
	group     *singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRegistry remembers rejected renewal credentials so they are not replayed
// against the backend.
func WithRegistry(r Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithAuditor reports every refresh attempt to a.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithSingleFlight collapses concurrent refreshes of the same renewal
// credential into one backend call.
func WithSingleFlight(enabled bool) Option {
	return func(s *Service) {
		if enabled {
			s.group = &singleflight.Group{}
		} else {
			s.group = nil
		}
	}
}

// New creates an accessor backed by r.
func New(r Refresher, opts ...Option) *Service {
	s := &Service{
		refresher: r,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidAccessCredential returns creds.Access when it decodes and stays valid for
// at least buffer seconds, otherwise a freshly refreshed credential.
func (s *Service) ValidAccessCredential(ctx context.Context, creds Credentials, buffer int64) (string, error) {
	if creds.Access != "" {
		claims, err := jwtutil.Decode(creds.Access)
		if err == nil && tokenpolicy.Usable(claims, s.now().Unix(), buffer) {
			return creds.Access, nil
		}
		if err != nil {
			logger.Debug("Access credential undecodable, refreshing", "error", err)
		}
	}
	return s.Refresh(ctx, creds.Renewal)
}

// Refresh renews unconditionally. A renewal credential the backend has already
// rejected fails with refresher.ErrRefreshRejected without a network call.
func (s *Service) Refresh(ctx context.Context, renewal string) (string, error) {
	if renewal == "" {
		return "", refresher.ErrNoRenewalCredential
	}

	if s.registry != nil {
		rejected, err := s.registry.Rejected(ctx, renewal)
		if err != nil {
			logger.Warn("Rejection registry lookup failed", "error", err)
		} else if rejected {
			return "", fmt.Errorf("%w: previously rejected", refresher.ErrRefreshRejected)
		}
	}

	if s.group == nil {
		return s.refresh(ctx, renewal)
	}

	// The shared call outlives any single caller; the refresher timeout bounds it.
	v, err, shared := s.group.Do(Digest(renewal), func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx), renewal)
	})
	if shared {
		logger.Debug("Shared in-flight refresh")
	}
	token, _ := v.(string)
	return token, err
}

func (s *Service) refresh(ctx context.Context, renewal string) (string, error) {
	token, err := s.refresher.Refresh(ctx, renewal)
	switch {
	case err == nil:
		subject, _ := jwtutil.ExtractSubject(token)
		s.audit(ctx, subject, OutcomeRefreshed, "")
		return token, nil
	case errors.Is(err, refresher.ErrRefreshRejected):
		if s.registry != nil {
			if rerr := s.registry.Reject(ctx, renewal); rerr != nil {
				logger.Warn("Failed to record rejected renewal credential", "error", rerr)
			}
		}
		s.audit(ctx, "", OutcomeRejected, err.Error())
	default:
		s.audit(ctx, "", OutcomeFailed, err.Error())
	}
	return "", err
}

func (s *Service) audit(ctx context.Context, subject, outcome, reason string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.RecordRefresh(context.WithoutCancel(ctx), subject, outcome, reason, s.now()); err != nil {
		logger.Warn("Failed to record refresh audit", "outcome", outcome, "error", err)
	}
}
