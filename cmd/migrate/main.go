package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
)

func main() {
	// Parse command line flags
	command := flag.String("command", "up", "Migration command: up, down or status")
	steps := flag.Int("steps", 1, "Number of migrations to roll back with down")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// migrations are driven by the command below, not on connect
	cfg.Postgres.AutoMigrate = false

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *command {
	case "up":
		err = postgres.Migrate(ctx, db)
	case "down":
		logger.Infow("Rolling back migrations", "steps", *steps)
		err = postgres.MigrateDown(ctx, db, *steps)
	case "status":
		err = postgres.MigrationStatus(ctx, db)
	default:
		logger.Fatalw("Unknown migration command", "command", *command)
	}
	if err != nil {
		logger.Fatalw("Migration failed", "command", *command, "error", err)
	}

	logger.Infow("Migration process completed", "command", *command)
}
