package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrschumacher/folio/internal/devbackend"
	"github.com/redis/go-redis/v9"
)

func httptestServer(t *testing.T, b *devbackend.Backend) string {
	t.Helper()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestDigest(t *testing.T) {
	d := Digest("renewal")
	if len(d) != 64 {
		t.Fatalf("digest length = %d", len(d))
	}
	if strings.Contains(d, "renewal") || d != Digest("renewal") || d == Digest("other") {
		t.Fatal("digest is not a stable one-way value")
	}
}

func TestMemoryRegistryExpires(t *testing.T) {
	reg, err := NewMemoryRegistry(2, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	now := testNow
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := reg.Rejected(ctx, "a"); ok {
		t.Fatal("unexpected rejection before Reject")
	}
	_ = reg.Reject(ctx, "a")
	if ok, _ := reg.Rejected(ctx, "a"); !ok {
		t.Fatal("expected rejection")
	}

	now = now.Add(time.Minute)
	if ok, _ := reg.Rejected(ctx, "a"); ok {
		t.Fatal("expected rejection to expire")
	}
}

func TestMemoryRegistryEvictsOldest(t *testing.T) {
	reg, _ := NewMemoryRegistry(2, time.Hour)
	ctx := context.Background()
	for _, r := range []string{"a", "b", "c"} {
		_ = reg.Reject(ctx, r)
	}
	if ok, _ := reg.Rejected(ctx, "a"); ok {
		t.Error("expected oldest entry evicted")
	}
	if ok, _ := reg.Rejected(ctx, "c"); !ok {
		t.Error("expected newest entry kept")
	}
}

func TestRedisRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := NewRedisRegistry(client, time.Minute)
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	if err := reg.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := reg.Reject(ctx, "dead"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !mr.Exists(redisKeyPrefix + Digest("dead")) {
		t.Fatal("expected digest key in redis")
	}
	if ok, err := reg.Rejected(ctx, "dead"); err != nil || !ok {
		t.Fatalf("Rejected = %v, %v", ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := reg.Rejected(ctx, "dead"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestRedisRegistryFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	reg, err := NewRedisRegistryFromURL("redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()
	if err := reg.Reject(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}

	if _, err := NewRedisRegistryFromURL("://bad", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRedisRegistryDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	reg := NewRedisRegistry(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	mr.Close()

	f := &fakeRefresher{token: mint(t, "u", testNow, testNow.Add(time.Minute))}
	svc := New(f, WithRegistry(reg))
	if _, err := svc.Refresh(context.Background(), "r"); err != nil {
		t.Fatalf("expected refresh to proceed when registry is down, got %v", err)
	}
}
