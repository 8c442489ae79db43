package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := NewRedisClient(srv.Addr(), "")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Second), srv
}

func TestRedisCacheSetGetDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "article:1"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "article:1", `{"title":"T"}`, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := c.Get(ctx, "article:1")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if val != `{"title":"T"}` {
		t.Fatalf("unexpected value: %q", val)
	}
	if err := c.Delete(ctx, "article:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "article:1"); ok {
		t.Fatalf("expected miss after delete")
	}
	if err := c.Delete(ctx, "article:1"); err != nil {
		t.Fatalf("delete of absent key should succeed: %v", err)
	}
}

func TestRedisCacheAppliesTTL(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "article:ttl", "v", 3600*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := srv.TTL("article:ttl"); got != 3600*time.Second {
		t.Fatalf("ttl = %v, want 1h", got)
	}
	srv.FastForward(3601 * time.Second)
	if _, ok, err := c.Get(ctx, "article:ttl"); err != nil || ok {
		t.Fatalf("expected expiry after ttl, ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheWrapsBackendErrors(t *testing.T) {
	c, srv := newTestCache(t)
	srv.Close()

	_, _, err := c.Get(context.Background(), "article:x")
	if !errors.Is(err, ErrCache) {
		t.Fatalf("expected ErrCache on get, got %v", err)
	}
	var cacheErr *CacheError
	if !errors.As(err, &cacheErr) || cacheErr.Op != "get" || cacheErr.Key != "article:x" {
		t.Fatalf("unexpected cache error: %#v", err)
	}
	if err := c.Delete(context.Background(), "article:x"); !errors.Is(err, ErrCache) {
		t.Fatalf("expected ErrCache on delete, got %v", err)
	}
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	if _, err := NewRedisClient("  ", ""); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
