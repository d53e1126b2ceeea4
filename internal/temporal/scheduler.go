package temporal

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/temporal/models"
	"github.com/flexprice/timeline/internal/temporal/workflows"
	"github.com/flexprice/timeline/internal/types"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// TemporalScheduler schedules pending transitions as durable timer workflows.
// One workflow runs per (subscription, event, version), so scheduling the
// same transition again is a no-op.
type TemporalScheduler struct {
	client    *TemporalClient
	taskQueue types.TemporalTaskQueue
	logger    *logger.Logger
}

var _ subscription.Scheduler = (*TemporalScheduler)(nil)

func NewTemporalScheduler(client *TemporalClient, cfg *config.Configuration, logger *logger.Logger) *TemporalScheduler {
	return &TemporalScheduler{
		client:    client,
		taskQueue: cfg.Temporal.TaskQueue,
		logger:    logger,
	}
}

// WorkflowID returns the id of the workflow delivering t
func WorkflowID(t *subscription.PendingTransition) string {
	return types.TemporalPendingTransitionWorkflow.WorkflowID(
		t.SubscriptionID,
		t.EventID,
		strconv.FormatInt(t.ActiveVersion, 10),
	)
}

func (s *TemporalScheduler) ScheduleAt(ctx context.Context, effectiveDate time.Time, t *subscription.PendingTransition) error {
	input := models.PendingTransitionWorkflowInput{
		Transition: t,
		DueAt:      effectiveDate,
		RequestID:  types.GetRequestID(ctx),
	}
	if err := input.Validate(); err != nil {
		return err
	}

	options := client.StartWorkflowOptions{
		ID:                    WorkflowID(t),
		TaskQueue:             s.taskQueue.String(),
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}

	run, err := s.client.Client.ExecuteWorkflow(ctx, options, workflows.PendingTransitionWorkflow, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			s.logger.Debugw("pending transition already scheduled",
				"workflow_id", options.ID,
				"event_id", t.EventID,
			)
			return nil
		}
		return ierr.WithError(err).
			WithHint("Failed to start the pending transition workflow").
			WithReportableDetails(map[string]interface{}{
				"workflow_id":     options.ID,
				"subscription_id": t.SubscriptionID,
				"event_id":        t.EventID,
			}).
			Mark(ierr.ErrSystem)
	}

	s.logger.Debugw("started pending transition workflow",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"subscription_id", t.SubscriptionID,
		"event_id", t.EventID,
		"due_at", effectiveDate,
	)
	return nil
}
