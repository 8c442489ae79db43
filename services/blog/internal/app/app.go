package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"blogstore/pkg/cache"
	"blogstore/pkg/store"
)

const (
	// DefaultCacheTTL bounds how long a single-article read is memoized.
	DefaultCacheTTL = 3600 * time.Second
)

// Config holds runtime dependencies for the core application. Store and
// Cache connections are process-wide and injected here once at startup.
type Config struct {
	Store    store.Store
	Cache    cache.Cache
	Sessions store.SessionStore
	// CacheTTL defaults to DefaultCacheTTL.
	CacheTTL time.Duration
	// StoreTimeout, when positive, bounds every Store call on top of the
	// caller's deadline.
	StoreTimeout time.Duration
}

// App is the article store service plus the thin account service that
// supplies owner ids to it.
type App struct {
	store        store.Store
	cache        cache.Cache
	sessions     store.SessionStore
	cacheTTL     time.Duration
	storeTimeout time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("cache required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &App{
		store:        cfg.Store,
		cache:        cfg.Cache,
		sessions:     cfg.Sessions,
		cacheTTL:     cfg.CacheTTL,
		storeTimeout: cfg.StoreTimeout,
	}, nil
}

func (a *App) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.storeTimeout)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
