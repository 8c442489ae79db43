// Package backend opens the process-wide store and Redis connections
// selected by configuration.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"blogstore/pkg/cache"
	"blogstore/pkg/store"
	"blogstore/services/blog/internal/config"
)

// Store is a durable store plus its release hook.
type Store struct {
	store.Store
	Close func() error
}

func dynamoConfig(cfg config.FileConfig) store.DynamoConfig {
	return store.DynamoConfig{
		Endpoint:        cfg.DynamoEndpoint,
		Region:          cfg.DynamoRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Table:           cfg.DynamoTable,
	}
}

// OpenStore connects the configured driver. The postgres driver migrates
// its schema on open; DynamoDB tables are created by the migrate command.
func OpenStore(ctx context.Context, cfg config.FileConfig) (Store, error) {
	noop := func() error { return nil }
	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		s, err := store.NewDynamoStore(ctx, dynamoConfig(cfg))
		if err != nil {
			return Store{}, fmt.Errorf("init dynamodb store: %w", err)
		}
		return Store{Store: s, Close: noop}, nil
	case config.DriverPostgres:
		s, err := store.NewGormStore(cfg.DatabaseURL, store.WithGormLogLevel(gormLogLevel(cfg.LogLevel)))
		if err != nil {
			return Store{}, fmt.Errorf("init postgres store: %w", err)
		}
		return Store{Store: s, Close: s.Close}, nil
	case config.DriverMemory:
		return Store{Store: store.NewMemoryStore(), Close: noop}, nil
	default:
		return Store{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Migrate prepares the durable schema for the configured driver and
// reports what it did.
func Migrate(ctx context.Context, cfg config.FileConfig, wait time.Duration) (string, error) {
	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		client, err := store.NewDynamoClient(ctx, dynamoConfig(cfg))
		if err != nil {
			return "", err
		}
		created, err := store.EnsureTable(ctx, client, cfg.DynamoTable, wait)
		if err != nil {
			return "", err
		}
		if created {
			return "created table " + cfg.DynamoTable, nil
		}
		return "table " + cfg.DynamoTable + " already exists", nil
	case config.DriverPostgres:
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return "", err
		}
		defer s.Close()
		return "postgres schema migrated", nil
	case config.DriverMemory:
		return "memory store needs no migration", nil
	default:
		return "", fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenRedis builds the shared Redis client and checks it is reachable.
func OpenRedis(ctx context.Context, cfg config.FileConfig) (*redis.Client, error) {
	client, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		return gormlogger.Info
	}
	return gormlogger.Warn
}
