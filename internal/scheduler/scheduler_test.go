package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrschumacher/folio/internal/devbackend"
	"github.com/jrschumacher/folio/internal/refresher"
)

var testNow = time.Unix(1_700_000_000, 0)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) pending() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped.Load() {
			out = append(out, t)
		}
	}
	return out
}

func mint(t *testing.T, lifetime time.Duration) string {
	t.Helper()
	tok, err := devbackend.MintToken([]byte("secret"), "user-1", "reader", testNow, testNow.Add(lifetime))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func newTestScheduler(refresh RefreshFunc, store Store, opts ...Option) (*Scheduler, *fakeTimers, chan Result) {
	timers := &fakeTimers{}
	results := make(chan Result, 16)
	s := New(refresh, store, append([]Option{
		WithAfterFunc(timers.afterFunc),
		WithClock(func() time.Time { return testNow }),
		WithObserver(func(r Result) { results <- r }),
	}, opts...)...)
	return s, timers, results
}

func waitResult(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle")
		return Result{}
	}
}

func TestStartRunsImmediateCycleAndReschedules(t *testing.T) {
	renewed := mint(t, 5*time.Minute)
	store := NewMemoryStore("")
	s, timers, results := newTestScheduler(func(context.Context) (string, error) {
		return renewed, nil
	}, store)

	s.Start()
	defer s.Stop()

	r := waitResult(t, results)
	if r.Err != nil || r.Discarded {
		t.Fatalf("unexpected result %+v", r)
	}
	if store.Load() != renewed {
		t.Fatal("expected store to hold the renewed credential")
	}
	// 300s remaining, a third of it.
	if r.Next != 100*time.Second {
		t.Errorf("next = %v, want 100s", r.Next)
	}
	if p := timers.pending(); len(p) != 1 || p[0].d != 100*time.Second {
		t.Fatalf("expected one pending 100s timer, got %d", len(p))
	}
}

func TestFailedCycleKeepsCredential(t *testing.T) {
	current := mint(t, 30*time.Second)
	store := NewMemoryStore(current)
	calls := 0
	s, timers, results := newTestScheduler(func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", refresher.ErrRefreshFailed
		}
		return "", refresher.ErrRefreshRejected
	}, store)

	s.Start()
	defer s.Stop()

	r := waitResult(t, results)
	if !errors.Is(r.Err, refresher.ErrRefreshFailed) {
		t.Fatalf("err = %v", r.Err)
	}
	if store.Load() != current {
		t.Fatal("credential replaced after failure")
	}
	if r.Next != 10*time.Second {
		t.Errorf("next = %v, want 10s", r.Next)
	}

	// Fire the pending timer: a rejection also leaves the credential alone.
	timers.pending()[0].f()
	r = waitResult(t, results)
	if !errors.Is(r.Err, refresher.ErrRefreshRejected) || store.Load() != current {
		t.Fatalf("unexpected result after rejection: %+v", r)
	}
	if !s.Active() {
		t.Fatal("rejection must not stop the scheduler")
	}
}

func TestStopOnRejection(t *testing.T) {
	current := mint(t, 30*time.Second)
	store := NewMemoryStore(current)
	var ctxs []context.Context
	s, timers, results := newTestScheduler(func(ctx context.Context) (string, error) {
		ctxs = append(ctxs, ctx)
		return "", refresher.ErrRefreshRejected
	}, store, WithStopOnRejection())

	s.Start()
	r := waitResult(t, results)
	if !errors.Is(r.Err, refresher.ErrRefreshRejected) {
		t.Fatalf("err = %v", r.Err)
	}
	if r.Next != 0 || r.Discarded {
		t.Errorf("unexpected result %+v", r)
	}
	if s.Active() {
		t.Fatal("scheduler still active after rejection")
	}
	if p := timers.pending(); len(p) != 0 {
		t.Fatalf("expected no pending timer, got %d", len(p))
	}
	if store.Load() != current {
		t.Fatal("credential replaced after rejection")
	}
	if len(ctxs) != 1 || ctxs[0].Err() == nil {
		t.Error("expected the cycle context to be cancelled")
	}

	// A transient failure with the option set still reschedules.
	s2, timers2, results2 := newTestScheduler(func(context.Context) (string, error) {
		return "", refresher.ErrRefreshFailed
	}, NewMemoryStore(current), WithStopOnRejection())
	s2.Start()
	defer s2.Stop()
	if r := waitResult(t, results2); !errors.Is(r.Err, refresher.ErrRefreshFailed) || r.Next == 0 {
		t.Fatalf("unexpected result %+v", r)
	}
	if !s2.Active() || len(timers2.pending()) != 1 {
		t.Fatal("transient failure must keep polling")
	}
}

func TestExpiredCredentialPollsAtFloor(t *testing.T) {
	store := NewMemoryStore("")
	s, _, results := newTestScheduler(func(context.Context) (string, error) {
		return "", refresher.ErrRefreshFailed
	}, store)
	s.Start()
	defer s.Stop()

	if r := waitResult(t, results); r.Next != time.Second {
		t.Errorf("next = %v, want 1s", r.Next)
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int64
	renewed := mint(t, time.Minute)

	s, timers, results := newTestScheduler(func(context.Context) (string, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return renewed, nil
	}, NewMemoryStore(""))

	s.Start()
	defer s.Stop()
	<-entered

	s.Trigger()
	if calls.Load() != 1 {
		t.Fatalf("overlapping cycle ran, calls = %d", calls.Load())
	}

	close(release)
	waitResult(t, results)
	if n := len(timers.pending()); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}
}

func TestTriggerReplacesPendingTimer(t *testing.T) {
	renewed := mint(t, time.Minute)
	s, timers, results := newTestScheduler(func(context.Context) (string, error) {
		return renewed, nil
	}, NewMemoryStore(""))

	s.Start()
	defer s.Stop()
	waitResult(t, results)

	s.Trigger()
	waitResult(t, results)
	if n := len(timers.pending()); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}
}

func TestStopDiscardsLateResult(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var sawCancel atomic.Bool
	old := mint(t, time.Minute)
	late := mint(t, time.Hour)
	store := NewMemoryStore(old)

	s, timers, results := newTestScheduler(func(ctx context.Context) (string, error) {
		entered <- struct{}{}
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return late, nil
	}, store)

	s.Start()
	<-entered
	s.Stop()
	close(release)

	r := waitResult(t, results)
	if !r.Discarded {
		t.Fatalf("expected discarded result, got %+v", r)
	}
	if store.Load() != old {
		t.Fatal("late result mutated the store")
	}
	if !sawCancel.Load() {
		t.Error("in-flight context was not cancelled")
	}
	if n := len(timers.pending()); n != 0 {
		t.Fatalf("pending timers after stop = %d", n)
	}
}

func TestStopCancelsPendingTimer(t *testing.T) {
	s, timers, results := newTestScheduler(func(context.Context) (string, error) {
		return "", refresher.ErrRefreshFailed
	}, NewMemoryStore(""))

	s.Start()
	waitResult(t, results)
	pending := timers.pending()
	if len(pending) != 1 {
		t.Fatalf("pending timers = %d", len(pending))
	}

	s.Stop()
	if len(timers.pending()) != 0 {
		t.Fatal("timer survived Stop")
	}

	// A timer that already fired before Stop took effect must not run a cycle.
	pending[0].f()
	select {
	case r := <-results:
		t.Fatalf("unexpected cycle after stop: %+v", r)
	default:
	}
}

func TestRestartAfterStop(t *testing.T) {
	var calls atomic.Int64
	s, _, results := newTestScheduler(func(context.Context) (string, error) {
		calls.Add(1)
		return "", refresher.ErrRefreshFailed
	}, NewMemoryStore(""))

	s.Start()
	s.Start()
	waitResult(t, results)
	s.Stop()
	s.Stop()
	s.Start()
	defer s.Stop()
	waitResult(t, results)

	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestRealTimer(t *testing.T) {
	// Credential already expired: the floor interval of one second applies.
	var calls atomic.Int64
	done := make(chan struct{})
	s := New(func(context.Context) (string, error) {
		if calls.Add(1) == 2 {
			close(done)
		}
		return "", refresher.ErrRefreshFailed
	}, NewMemoryStore(""))

	s.Start()
	defer s.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second cycle never ran")
	}
}
