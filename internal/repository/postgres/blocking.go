package postgres

import (
	"context"

	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
)

type blockingStateRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBlockingStateRepository(db *postgres.DB, logger *logger.Logger) blocking.Repository {
	return &blockingStateRepository{db: db, logger: logger}
}

func (r *blockingStateRepository) Append(ctx context.Context, state *blocking.BlockingState) error {
	query := `
	INSERT INTO blocking_states (
		id, blocked_id, type, service, state_name,
		block_change, block_entitlement, block_billing,
		effective_date, created_date
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
	) RETURNING total_ordering`

	err := r.db.GetQuerier(ctx).GetContext(ctx, &state.TotalOrdering, query,
		state.ID,
		state.BlockedID,
		state.Type,
		state.Service,
		state.StateName,
		state.BlockChange,
		state.BlockEntitlement,
		state.BlockBilling,
		state.EffectiveDate,
		state.CreatedDate,
	)
	if err != nil {
		return dbError(err, "failed to append blocking state", map[string]any{
			"blocked_id": state.BlockedID,
			"service":    state.Service,
			"state_name": state.StateName,
		})
	}
	return nil
}

func (r *blockingStateRepository) List(ctx context.Context, blockedID string, service string) ([]*blocking.BlockingState, error) {
	query := `
	SELECT
		id, blocked_id, type, service, state_name,
		block_change, block_entitlement, block_billing,
		effective_date, created_date, total_ordering
	FROM blocking_states
	WHERE blocked_id = $1 AND ($2 = '' OR service = $2)
	ORDER BY effective_date, created_date, total_ordering`

	var states []*blocking.BlockingState
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &states, query, blockedID, service); err != nil {
		return nil, dbError(err, "failed to list blocking states", map[string]any{
			"blocked_id": blockedID,
			"service":    service,
		})
	}
	return states, nil
}
