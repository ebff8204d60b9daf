// Command migrate applies the pending SQL migrations to DATABASE_URL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/archon-research/stl-trade/db/migrator"
	"github.com/archon-research/stl-trade/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl-trade/internal/pkg/env"
)

func main() {
	_ = godotenv.Load(".env")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: env.ParseLogLevel(slog.LevelInfo)}))
	if err := run(context.Background(), logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("all migrations up to date")
}

func run(ctx context.Context, logger *slog.Logger) error {
	dbURL := env.Get("DATABASE_URL", "")
	if dbURL == "" {
		return fmt.Errorf("required environment variable not set: DATABASE_URL")
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(dbURL))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	return migrator.New(pool, env.Get("MIGRATIONS_DIR", "./db/migrations"), logger).ApplyAll(ctx)
}
