// Command migrate prepares the durable schema: the DynamoDB table with its
// secondary indexes, or the Postgres tables.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"blogstore/internal/util"
	"blogstore/services/blog/internal/backend"
	"blogstore/services/blog/internal/config"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	wait := flag.Duration("wait", 2*time.Minute, "how long to wait for a new DynamoDB table to become active (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *wait+time.Minute)
	defer cancel()
	result, err := backend.Migrate(ctx, cfg, *wait)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	slog.Info("migration complete", "driver", cfg.StoreDriver, "result", result)
}
