// Package cache holds short-lived memoization of single-article reads.
// It is best-effort: callers must treat every error as non-authoritative.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache is a TTL key-value cache.
type Cache interface {
	// Get returns the value, or ok=false on a miss. A miss is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set overwrites key with value, expiring after ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// ErrCache marks cache I/O failures.
var ErrCache = errors.New("cache failure")

// CacheError wraps a cache backend failure.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool { return target == ErrCache }
