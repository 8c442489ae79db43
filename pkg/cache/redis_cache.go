package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 3 * time.Second

// NewRedisClient builds the process-wide Redis client.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), nil
}

// RedisCache implements Cache on Redis string keys with EX expiry.
type RedisCache struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisCache wraps a shared client. timeout bounds each call on top of
// the caller's deadline; zero means 3s.
func NewRedisCache(client *redis.Client, timeout time.Duration) *RedisCache {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RedisCache{client: client, timeout: timeout}
}

// Get reads key; redis.Nil is reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, &CacheError{Op: "get", Key: key, Err: err}
	}
	return val, true, nil
}

// Set writes key with ttl.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return &CacheError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
