package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"blogstore/internal/ratelimit"
	"blogstore/internal/util"
	"blogstore/pkg/cache"
	"blogstore/pkg/store"
	"blogstore/services/blog/internal/app"
	"blogstore/services/blog/internal/backend"
	"blogstore/services/blog/internal/config"
	"blogstore/services/blog/internal/server"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, err := backend.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer dataStore.Close()

	redisClient, err := backend.OpenRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init redis: %v", err)
	}
	defer redisClient.Close()

	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, store.NewRedisTokenRevoker(redisClient), store.JWTOptions{
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.SessionTTL,
	})
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:        dataStore,
		Cache:        cache.NewRedisCache(redisClient, cfg.CacheTimeout),
		Sessions:     sessions,
		CacheTTL:     cfg.CacheTTL,
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	srvCfg := server.Config{App: appCore, TrustedProxies: trusted}
	if cfg.SignupRateLimitPerMinute > 0 {
		if srvCfg.SignupLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "blog:ratelimit:signup", cfg.SignupRateLimitPerMinute, time.Minute); err != nil {
			log.Fatalf("failed to init signup limiter: %v", err)
		}
	}
	if cfg.LoginRateLimitPerMinute > 0 {
		if srvCfg.LoginLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "blog:ratelimit:login", cfg.LoginRateLimitPerMinute, time.Minute); err != nil {
			log.Fatalf("failed to init login limiter: %v", err)
		}
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("blog server listening", "addr", addr, "store", cfg.StoreDriver, "cache_ttl", cfg.CacheTTL.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("blog server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
