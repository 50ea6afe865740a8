package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"studykit-backend/internal/shared/config"
	"studykit-backend/internal/shared/storage/db"
	"studykit-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.MigrateOptions())
	if err != nil {
		telemetry.Error("migrate.connect.failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err})
		os.Exit(1)
	}
	version, err := db.MigrationVersion(ctx, sqlDB)
	if err != nil {
		telemetry.Error("migrate.version.failed", map[string]any{"error": err})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"version": version})
}
