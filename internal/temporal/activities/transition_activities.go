package activities

import (
	"context"
	"time"

	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/publisher"
	"github.com/flexprice/timeline/internal/temporal/models"
	"github.com/flexprice/timeline/internal/types"
)

// TransitionActivities contains the activities of the pending transition workflow
type TransitionActivities struct {
	publisher publisher.EventPublisher
	logger    *logger.Logger
}

// NewTransitionActivities creates a new TransitionActivities instance
func NewTransitionActivities(publisher publisher.EventPublisher, logger *logger.Logger) *TransitionActivities {
	return &TransitionActivities{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishTransitionDue publishes the transition on the transitions topic where
// the consumer applies it
func (a *TransitionActivities) PublishTransitionDue(ctx context.Context, input models.PendingTransitionWorkflowInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if input.RequestID != "" {
		ctx = types.SetRequestID(ctx, input.RequestID)
	}

	t := input.Transition
	event, err := publisher.NewEvent(types.EventTransitionDue, t.BundleID, t, time.Now())
	if err != nil {
		return err
	}

	if err := a.publisher.Publish(ctx, event); err != nil {
		a.logger.Errorw("failed to publish due transition",
			"bundle_id", t.BundleID,
			"subscription_id", t.SubscriptionID,
			"event_id", t.EventID,
			"error", err,
		)
		return err
	}

	a.logger.Infow("published due transition",
		"bundle_id", t.BundleID,
		"subscription_id", t.SubscriptionID,
		"event_id", t.EventID,
		"message_id", event.ID,
	)
	return nil
}
