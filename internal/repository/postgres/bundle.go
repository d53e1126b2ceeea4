package postgres

import (
	"context"

	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
)

type bundleRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBundleRepository(db *postgres.DB, logger *logger.Logger) subscription.BundleRepository {
	return &bundleRepository{db: db, logger: logger}
}

func (r *bundleRepository) Create(ctx context.Context, bundle *subscription.Bundle) error {
	query := `
	INSERT INTO bundles (
		id, account_id, external_key, start_date, updated_at, created_at
	) VALUES (
		:id, :account_id, :external_key, :start_date, :updated_at, :created_at
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, bundle); err != nil {
		return dbError(err, "failed to create bundle", map[string]any{"bundle_id": bundle.ID})
	}
	return nil
}

func (r *bundleRepository) Get(ctx context.Context, id string) (*subscription.Bundle, error) {
	query := `
	SELECT id, account_id, external_key, start_date, updated_at, created_at
	FROM bundles
	WHERE id = $1`

	var b subscription.Bundle
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &b, query, id); err != nil {
		return nil, dbError(err, "bundle not found", map[string]any{"bundle_id": id})
	}
	return &b, nil
}
