package postgres

import (
	"context"
	"embed"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

func setupGoose() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return ierr.WithError(err).
			WithHint("failed to set goose dialect").
			Mark(ierr.ErrSystem)
	}
	return nil
}

// Migrate applies every pending migration
func Migrate(ctx context.Context, db *DB) error {
	if err := setupGoose(); err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db.DB.DB)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to read migration version").
			Mark(ierr.ErrDatabase)
	}
	db.logger.Infow("running migrations", "from_version", current)

	if err := goose.UpContext(ctx, db.DB.DB, "migrations"); err != nil {
		db.logger.Errorw("migration failed", "error", err)
		return ierr.WithError(err).
			WithHint("failed to run migrations").
			Mark(ierr.ErrDatabase)
	}

	final, err := goose.GetDBVersionContext(ctx, db.DB.DB)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to read migration version").
			Mark(ierr.ErrDatabase)
	}
	db.logger.Infow("migrations completed", "from_version", current, "to_version", final)
	return nil
}

// MigrateDown rolls back the given number of migrations
func MigrateDown(ctx context.Context, db *DB, steps int) error {
	if err := setupGoose(); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, db.DB.DB, "migrations"); err != nil {
			return ierr.WithError(err).
				WithHint("failed to roll back migration").
				Mark(ierr.ErrDatabase)
		}
	}
	return nil
}

// MigrationStatus logs the state of every migration
func MigrationStatus(ctx context.Context, db *DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, db.DB.DB, "migrations"); err != nil {
		return ierr.WithError(err).
			WithHint("failed to read migration status").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
