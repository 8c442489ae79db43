package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix      = "blog:session:revoked:"
	defaultRevokerTimeout = 3 * time.Second
)

// TokenRevoker remembers logged-out session ids (JWT jti) for as long as the
// token would otherwise stay valid.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryTokenRevoker is a single-process revoker for tests and the memory driver.
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{expires: make(map[string]time.Time), now: time.Now}
}

// Revoke is a no-op for tokens that have already expired.
func (r *MemoryTokenRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, until := range r.expires {
		if !now.Before(until) {
			delete(r.expires, id)
		}
	}
	r.expires[tokenID] = now.Add(ttl)
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.expires[tokenID]
	return ok && r.now().Before(until), nil
}

// RedisTokenRevoker keeps one key per revoked session, expiring with the token,
// so every blog instance sharing the Redis sees a logout.
type RedisTokenRevoker struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisTokenRevoker uses the process-wide Redis client.
func NewRedisTokenRevoker(client *redis.Client) *RedisTokenRevoker {
	return &RedisTokenRevoker{client: client, timeout: defaultRevokerTimeout}
}

func (r *RedisTokenRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Set(ctx, revokedKey(tokenID), 1, ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func revokedKey(tokenID string) string {
	return revokedKeyPrefix + tokenID
}
