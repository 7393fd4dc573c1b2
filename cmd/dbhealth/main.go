// dbhealth is a connectivity probe: it connects with the configured DSN,
// pings, and exits non-zero on failure. Useful as a container healthcheck.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/repository"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database healthy")
}
