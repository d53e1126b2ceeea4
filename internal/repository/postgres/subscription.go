package postgres

import (
	"context"

	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `id, bundle_id, category, active_version, start_date, created_at, updated_at`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
	INSERT INTO subscriptions (
		id, bundle_id, category, active_version, start_date, created_at, updated_at
	) VALUES (
		:id, :bundle_id, :category, :active_version, :start_date, :created_at, :updated_at
	)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub); err != nil {
		return dbError(err, "failed to create subscription", map[string]any{
			"subscription_id": sub.ID,
			"bundle_id":       sub.BundleID,
		})
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	var s subscription.Subscription
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &s, query, id); err != nil {
		return nil, dbError(err, "subscription not found", map[string]any{"subscription_id": id})
	}
	return &s, nil
}

func (r *subscriptionRepository) ListByBundle(ctx context.Context, bundleID string) ([]*subscription.Subscription, error) {
	query := `
	SELECT ` + subscriptionColumns + `
	FROM subscriptions
	WHERE bundle_id = $1
	ORDER BY start_date, created_at`

	var subs []*subscription.Subscription
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query, bundleID); err != nil {
		return nil, dbError(err, "failed to list subscriptions", map[string]any{"bundle_id": bundleID})
	}
	return subscription.BundleSubscriptions(subs), nil
}
