package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

const (
	idempotencyKeyPrefix = "idem:place-order:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// RedisIdempotencyGuard claims request keys with SET NX so retried placements are rejected.
type RedisIdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyGuard(client *redis.Client) *RedisIdempotencyGuard {
	return &RedisIdempotencyGuard{client: client, ttl: idempotencyKeyTTL}
}

func (r *RedisIdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, domain.Transient("claim idempotency key", err)
	}
	return ok, nil
}

func (r *RedisIdempotencyGuard) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return domain.Transient("release idempotency key", err)
	}
	return nil
}

// MemoryIdempotencyGuard is the in-process counterpart used with the memory store.
type MemoryIdempotencyGuard struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
}

func NewMemoryIdempotencyGuard() *MemoryIdempotencyGuard {
	return &MemoryIdempotencyGuard{keys: make(map[string]time.Time), ttl: idempotencyKeyTTL}
}

func (m *MemoryIdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expires, ok := m.keys[key]; ok && time.Now().Before(expires) {
		return false, nil
	}
	m.keys[key] = time.Now().Add(m.ttl)
	return true, nil
}

func (m *MemoryIdempotencyGuard) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, key)
	return nil
}
