package workflows

import (
	"testing"
	"time"

	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/temporal/activities"
	"github.com/flexprice/timeline/internal/temporal/models"
	"github.com/flexprice/timeline/internal/testutil"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
)

type PendingTransitionWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env       *testsuite.TestWorkflowEnvironment
	publisher *testutil.InMemoryPublisherService
	start     time.Time
}

func TestPendingTransitionWorkflow(t *testing.T) {
	suite.Run(t, new(PendingTransitionWorkflowSuite))
}

func (s *PendingTransitionWorkflowSuite) SetupTest() {
	s.start = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	s.publisher = testutil.NewInMemoryEventPublisher()

	s.env = s.NewTestWorkflowEnvironment()
	s.env.SetStartTime(s.start)
	s.env.RegisterActivity(activities.NewTransitionActivities(s.publisher, logger.NewNoopLogger()))
}

func (s *PendingTransitionWorkflowSuite) input(dueAt time.Time) models.PendingTransitionWorkflowInput {
	return models.PendingTransitionWorkflowInput{
		Transition: &subscription.PendingTransition{
			BundleID:       "bun_1",
			SubscriptionID: "sub_1",
			EventID:        "evt_1",
			EventType:      types.SubscriptionEventTypeChange,
			ActiveVersion:  2,
			EffectiveDate:  dueAt,
		},
		DueAt:     dueAt,
		RequestID: "req_1",
	}
}

func (s *PendingTransitionWorkflowSuite) TestWaitsUntilDue() {
	input := s.input(s.start.AddDate(0, 0, 30))

	s.env.ExecuteWorkflow(PendingTransitionWorkflow, input)

	s.Require().True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())
	s.False(s.env.Now().Before(input.DueAt))

	events := s.publisher.EventsNamed(types.EventTransitionDue)
	s.Require().Len(events, 1)
	s.Equal("bun_1", events[0].BundleID)
	s.Equal("req_1", events[0].RequestID)

	var delivered subscription.PendingTransition
	s.Require().NoError(events[0].Decode(&delivered))
	s.Equal("evt_1", delivered.EventID)
	s.Equal(int64(2), delivered.ActiveVersion)
}

func (s *PendingTransitionWorkflowSuite) TestDeliversOverdueTransitionImmediately() {
	s.env.ExecuteWorkflow(PendingTransitionWorkflow, s.input(s.start.Add(-time.Hour)))

	s.Require().True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())
	s.Equal(s.start, s.env.Now().UTC())
	s.Len(s.publisher.EventsNamed(types.EventTransitionDue), 1)
}

func (s *PendingTransitionWorkflowSuite) TestRejectsIncompleteInput() {
	input := s.input(s.start)
	input.Transition.EventID = ""

	s.env.ExecuteWorkflow(PendingTransitionWorkflow, input)

	s.Require().True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	s.Empty(s.publisher.GetEvents())
}
