// Package scheduler keeps a held access credential fresh on a single
// cooperative timer whose interval follows the credential's remaining lifetime.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/refresher"
	"github.com/jrschumacher/folio/internal/tokenpolicy"
)

// RefreshFunc asks the server for a new access credential.
type RefreshFunc func(ctx context.Context) (string, error)

// Store holds the current access credential.
type Store interface {
	Load() string
	Save(access string)
}

// Timer is the handle of a pending tick.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAfterFunc replaces the timer implementation.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = fn }
}

// WithClock overrides the wall clock used for interval computation.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithStopOnRejection deactivates the scheduler once the server reports the
// renewal credential rejected. Without it polling continues at the current interval.
func WithStopOnRejection() Option {
	return func(s *Scheduler) { s.stopOnReject = true }
}

// Result describes a finished cycle.
type Result struct {
	Err error
	// Next is the delay until the following cycle; zero when Discarded.
	Next time.Duration
	// Discarded is set when the scheduler was stopped while the cycle was in flight.
	Discarded bool
}

// WithObserver registers a hook called after every cycle, under the
// scheduler's lock. fn must not call back into the scheduler.
func WithObserver(fn func(Result)) Option {
	return func(s *Scheduler) { s.observe = fn }
}

// Scheduler runs refresh cycles until stopped. At most one timer is pending
// and at most one cycle is in flight.
type Scheduler struct {
	refresh   RefreshFunc
	store     Store
	afterFunc AfterFunc
	now       func() time.Time
	observe   func(Result)

	stopOnReject bool

	mu         sync.Mutex
	active     bool
	generation uint64
	inFlight   bool
	timer      Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates an inactive scheduler.
func New(refresh RefreshFunc, store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		refresh:   refresh,
		store:     store,
		afterFunc: realAfterFunc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start activates the scheduler and runs an immediate cycle in the background.
// Starting an active scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.inFlight = false
	s.generation++
	gen := s.generation
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Debug("Refresh scheduler started")
	go s.cycle(gen)
}

// Stop cancels the pending timer and any in-flight refresh. A result that
// arrives after Stop is discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.halt()
	logger.Debug("Refresh scheduler stopped")
}

// halt deactivates the scheduler. Callers hold s.mu.
func (s *Scheduler) halt() {
	s.active = false
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Trigger runs a cycle now unless one is already in flight.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.cycle(gen)
}

// Active reports whether the scheduler is running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) cycle(gen uint64) {
	s.mu.Lock()
	if !s.active || gen != s.generation {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.mu.Unlock()
		logger.Debug("Refresh cycle still in flight, skipping tick")
		return
	}
	s.inFlight = true
	ctx := s.ctx
	s.mu.Unlock()

	token, err := s.refresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || gen != s.generation {
		s.notify(Result{Err: err, Discarded: true})
		return
	}
	s.inFlight = false

	switch {
	case err == nil:
		s.store.Save(token)
	case errors.Is(err, refresher.ErrRefreshRejected) && s.stopOnReject:
		logger.Warn("Renewal credential rejected, stopping scheduler", "error", err)
		s.halt()
		s.notify(Result{Err: err})
		return
	case errors.Is(err, refresher.ErrRefreshRejected):
		logger.Warn("Renewal credential rejected, keeping current credential", "error", err)
	default:
		logger.Debug("Refresh cycle failed", "error", err)
	}

	next := s.interval()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.afterFunc(next, func() { s.cycle(gen) })

	s.notify(Result{Err: err, Next: next})
}

func (s *Scheduler) notify(r Result) {
	if s.observe != nil {
		s.observe(r)
	}
}

func (s *Scheduler) interval() time.Duration {
	claims, err := jwtutil.Decode(s.store.Load())
	if err != nil {
		claims = nil
	}
	return time.Duration(tokenpolicy.RefreshPollIntervalMS(claims, s.now().Unix())) * time.Millisecond
}

// MemoryStore is a concurrency-safe Store.
type MemoryStore struct {
	mu     sync.RWMutex
	access string
}

// NewMemoryStore seeds a store with access.
func NewMemoryStore(access string) *MemoryStore {
	return &MemoryStore{access: access}
}

// Load implements Store.
func (m *MemoryStore) Load() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// Save implements Store.
func (m *MemoryStore) Save(access string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = access
}
