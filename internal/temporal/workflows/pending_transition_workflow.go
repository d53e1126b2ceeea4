package workflows

import (
	"time"

	"github.com/flexprice/timeline/internal/temporal/models"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// Workflow name - must match the function name
	WorkflowPendingTransition = "PendingTransitionWorkflow"
	// Activity names - must match the registered method names
	ActivityPublishTransitionDue = "PublishTransitionDue"
)

// PendingTransitionWorkflow sleeps until the transition is due and then hands
// it back to the timeline core through the transitions topic
func PendingTransitionWorkflow(ctx workflow.Context, input models.PendingTransitionWorkflowInput) error {
	if err := input.Validate(); err != nil {
		return err
	}

	logger := workflow.GetLogger(ctx)
	t := input.Transition

	if wait := input.DueAt.Sub(workflow.Now(ctx)); wait > 0 {
		logger.Info("Waiting for pending transition",
			"subscription_id", t.SubscriptionID,
			"event_id", t.EventID,
			"due_at", input.DueAt,
		)
		if err := workflow.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second * 5,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute * 5,
			MaximumAttempts:    10,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	if err := workflow.ExecuteActivity(ctx, ActivityPublishTransitionDue, input).Get(ctx, nil); err != nil {
		logger.Error("Failed to deliver pending transition",
			"subscription_id", t.SubscriptionID,
			"event_id", t.EventID,
			"error", err,
		)
		return err
	}

	logger.Info("Delivered pending transition",
		"subscription_id", t.SubscriptionID,
		"event_id", t.EventID,
	)
	return nil
}
