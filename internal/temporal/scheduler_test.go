package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/temporal/models"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func newTestScheduler(c client.Client) *TemporalScheduler {
	return NewTemporalScheduler(&TemporalClient{Client: c}, config.GetDefaultConfig(), logger.NewNoopLogger())
}

func pendingTransition(dueAt time.Time) *subscription.PendingTransition {
	return &subscription.PendingTransition{
		BundleID:       "bun_1",
		SubscriptionID: "sub_1",
		EventID:        "evt_1",
		EventType:      types.SubscriptionEventTypeCancel,
		ActiveVersion:  3,
		EffectiveDate:  dueAt,
	}
}

func TestScheduleAtStartsWorkflow(t *testing.T) {
	dueAt := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	transition := pendingTransition(dueAt)
	ctx := types.SetRequestID(context.Background(), "req_1")

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(WorkflowID(transition))
	run.On("GetRunID").Return("run_1")

	c := &mocks.Client{}
	c.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "PendingTransitionWorkflow-sub_1-evt_1-3" &&
				o.TaskQueue == types.TemporalTaskQueueTimeline.String()
		}),
		mock.Anything,
		mock.MatchedBy(func(in models.PendingTransitionWorkflowInput) bool {
			return in.DueAt.Equal(dueAt) && in.RequestID == "req_1" && in.Transition.EventID == "evt_1"
		}),
	).Return(run, nil).Once()

	require.NoError(t, newTestScheduler(c).ScheduleAt(ctx, dueAt, transition))
	c.AssertExpectations(t)
}

func TestScheduleAtIgnoresRunningWorkflow(t *testing.T) {
	dueAt := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "req", "run_0")).
		Once()

	assert.NoError(t, newTestScheduler(c).ScheduleAt(context.Background(), dueAt, pendingTransition(dueAt)))
}

func TestScheduleAtFailures(t *testing.T) {
	dueAt := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	t.Run("frontend unavailable", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, serviceerror.NewUnavailable("frontend down")).
			Once()

		err := newTestScheduler(c).ScheduleAt(context.Background(), dueAt, pendingTransition(dueAt))
		require.Error(t, err)
		assert.True(t, ierr.Is(err, ierr.ErrSystem))
		assert.False(t, ierr.IsValidation(err))
	})

	t.Run("incomplete transition", func(t *testing.T) {
		c := &mocks.Client{}
		transition := pendingTransition(dueAt)
		transition.EventID = ""

		err := newTestScheduler(c).ScheduleAt(context.Background(), dueAt, transition)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
		c.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
