package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
)

// DefaultRegistrySize bounds the in-memory registry.
const DefaultRegistrySize = 4096

const redisKeyPrefix = "folio:rejected:"

// Registry remembers renewal credentials the backend has rejected. Only a
// digest of the credential is ever stored.
type Registry interface {
	Reject(ctx context.Context, renewal string) error
	Rejected(ctx context.Context, renewal string) (bool, error)
}

// Digest returns the hex SHA-256 of a renewal credential.
func Digest(renewal string) string {
	sum := sha256.Sum256([]byte(renewal))
	return hex.EncodeToString(sum[:])
}

// MemoryRegistry is a bounded, process-local Registry.
type MemoryRegistry struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryRegistry creates a registry holding up to size digests for ttl each.
func NewMemoryRegistry(size int, ttl time.Duration) (*MemoryRegistry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create rejection cache: %w", err)
	}
	return &MemoryRegistry{cache: cache, ttl: ttl, now: time.Now}, nil
}

// Reject implements Registry.
func (m *MemoryRegistry) Reject(_ context.Context, renewal string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(Digest(renewal), m.now().Add(m.ttl))
	return nil
}

// Rejected implements Registry.
func (m *MemoryRegistry) Rejected(_ context.Context, renewal string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Digest(renewal)
	v, ok := m.cache.Get(key)
	if !ok {
		return false, nil
	}
	if until, _ := v.(time.Time); !m.now().Before(until) {
		m.cache.Remove(key)
		return false, nil
	}
	return true, nil
}

// RedisRegistry shares rejections between folio instances.
type RedisRegistry struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisRegistry wraps an existing client.
func NewRedisRegistry(client redis.UniversalClient, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

// NewRedisRegistryFromURL connects using a redis:// URL.
func NewRedisRegistryFromURL(url string, ttl time.Duration) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisRegistry(redis.NewClient(opts), ttl), nil
}

// Reject implements Registry.
func (r *RedisRegistry) Reject(ctx context.Context, renewal string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+Digest(renewal), 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Rejected implements Registry.
func (r *RedisRegistry) Rejected(ctx context.Context, renewal string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+Digest(renewal)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Ping checks connectivity.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
