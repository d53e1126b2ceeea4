package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
	"github.com/samber/lo"
)

type eventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewEventRepository(db *postgres.DB, logger *logger.Logger) subscription.EventRepository {
	return &eventRepository{db: db, logger: logger}
}

func (r *eventRepository) ReadEvents(ctx context.Context, subscriptionID string) ([]*subscription.Event, error) {
	query := `
	SELECT
		id, subscription_id, event_type, effective_date, requested_date, created_date,
		active_version, total_ordering, product_name, billing_period, price_list, phase_type
	FROM subscription_events
	WHERE subscription_id = $1
	ORDER BY active_version, effective_date, total_ordering`

	var events []*subscription.Event
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &events, query, subscriptionID); err != nil {
		return nil, dbError(err, "failed to read subscription events", map[string]any{
			"subscription_id": subscriptionID,
		})
	}
	return events, nil
}

func (r *eventRepository) Append(ctx context.Context, req *subscription.AppendRequest) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if err := r.checkView(ctx, req.BundleID, req.ExpectedViewID); err != nil {
			return err
		}

		for _, e := range req.Events {
			var version int64
			err := r.db.GetQuerier(ctx).GetContext(ctx, &version,
				`SELECT active_version FROM subscriptions WHERE id = $1 AND bundle_id = $2`,
				e.SubscriptionID, req.BundleID)
			if err != nil {
				return dbError(err, "subscription not found in bundle", map[string]any{
					"subscription_id": e.SubscriptionID,
					"bundle_id":       req.BundleID,
				})
			}
			e.ActiveVersion = version
			if err := r.insert(ctx, e); err != nil {
				return err
			}
		}
		return r.touchBundle(ctx, req.BundleID, req.UpdatedAt)
	})
}

func (r *eventRepository) Commit(ctx context.Context, req *subscription.CommitRequest) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if err := r.checkView(ctx, req.BundleID, req.ExpectedViewID); err != nil {
			return err
		}

		// Deterministic write order keeps lock acquisition stable across commits
		subIDs := lo.Keys(req.Changes)
		sort.Strings(subIDs)
		for _, subID := range subIDs {
			change := req.Changes[subID]
			res, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
				UPDATE subscriptions
				SET active_version = $1, updated_at = $2
				WHERE id = $3 AND bundle_id = $4 AND active_version = $1 - 1`,
				change.NewVersion, req.UpdatedAt, subID, req.BundleID)
			if err != nil {
				return dbError(err, "failed to bump subscription version", map[string]any{"subscription_id": subID})
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return ierr.NewError("subscription version moved during commit").
					WithHintf("Subscription %s changed concurrently, refetch the timeline", subID).
					WithReportableDetails(map[string]any{
						"bundle_id":       req.BundleID,
						"subscription_id": subID,
						"new_version":     change.NewVersion,
					}).
					Mark(ierr.ErrVersionConflict)
			}

			for _, e := range change.Events {
				e.SubscriptionID = subID
				e.ActiveVersion = change.NewVersion
				if err := r.insert(ctx, e); err != nil {
					return err
				}
			}
		}

		return r.touchBundle(ctx, req.BundleID, req.UpdatedAt)
	})
}

func (r *eventRepository) LockView(ctx context.Context, bundleID, expectedViewID string) error {
	return r.checkView(ctx, bundleID, expectedViewID)
}

// checkView locks the bundle row and compares its view id with the one the
// caller read. The row lock lasts until the enclosing transaction ends.
func (r *eventRepository) checkView(ctx context.Context, bundleID, expected string) error {
	updatedAt, err := r.lockBundle(ctx, bundleID)
	if err != nil {
		return err
	}

	var maxOrdering int64
	err = r.db.GetQuerier(ctx).GetContext(ctx, &maxOrdering, `
		SELECT COALESCE(MAX(e.total_ordering), 0)
		FROM subscription_events e
		JOIN subscriptions s ON s.id = e.subscription_id
		WHERE s.bundle_id = $1`, bundleID)
	if err != nil {
		return dbError(err, "failed to read bundle view", map[string]any{"bundle_id": bundleID})
	}

	if actual := subscription.FormatViewID(maxOrdering, updatedAt); actual != expected {
		return subscription.NewViewChangedError(bundleID, expected, actual)
	}
	return nil
}

func (r *eventRepository) insert(ctx context.Context, e *subscription.Event) error {
	query := `
	INSERT INTO subscription_events (
		id, subscription_id, event_type, effective_date, requested_date, created_date,
		active_version, product_name, billing_period, price_list, phase_type
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
	) RETURNING total_ordering`

	err := r.db.GetQuerier(ctx).GetContext(ctx, &e.TotalOrdering, query,
		e.ID,
		e.SubscriptionID,
		e.Type,
		e.EffectiveDate,
		e.RequestedDate,
		e.CreatedDate,
		e.ActiveVersion,
		e.ProductName,
		e.BillingPeriod,
		e.PriceList,
		e.PhaseType,
	)
	if err != nil {
		return dbError(err, "failed to insert subscription event", map[string]any{
			"event_id":        e.ID,
			"subscription_id": e.SubscriptionID,
		})
	}
	return nil
}

func (r *eventRepository) lockBundle(ctx context.Context, bundleID string) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.GetQuerier(ctx).GetContext(ctx, &updatedAt,
		`SELECT updated_at FROM bundles WHERE id = $1 FOR UPDATE`, bundleID)
	if err != nil {
		return time.Time{}, dbError(err, "bundle not found", map[string]any{"bundle_id": bundleID})
	}
	return updatedAt, nil
}

func (r *eventRepository) touchBundle(ctx context.Context, bundleID string, at time.Time) error {
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx,
		`UPDATE bundles SET updated_at = GREATEST(updated_at + INTERVAL '1 millisecond', $1) WHERE id = $2`,
		at, bundleID)
	if err != nil {
		return dbError(err, "failed to update bundle", map[string]any{"bundle_id": bundleID})
	}
	return nil
}
