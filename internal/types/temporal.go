package types

import (
	"fmt"
	"strings"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/samber/lo"
)

// TemporalTaskQueue represents a logical grouping of workflows and activities
type TemporalTaskQueue string

const (
	TemporalTaskQueueTimeline TemporalTaskQueue = "timeline"
)

// String returns the string representation of the task queue
func (tq TemporalTaskQueue) String() string {
	return string(tq)
}

// Validate validates the task queue
func (tq TemporalTaskQueue) Validate() error {
	allowedQueues := []TemporalTaskQueue{
		TemporalTaskQueueTimeline,
	}
	if lo.Contains(allowedQueues, tq) {
		return nil
	}
	return ierr.NewError("invalid task queue").
		WithHint(fmt.Sprintf("Task queue must be one of: %s", strings.Join(lo.Map(allowedQueues, func(tq TemporalTaskQueue, _ int) string { return string(tq) }), ", "))).
		Mark(ierr.ErrValidation)
}

// TemporalWorkflowType represents the type of workflow
type TemporalWorkflowType string

const (
	TemporalPendingTransitionWorkflow TemporalWorkflowType = "PendingTransitionWorkflow"
)

// String returns the string representation of the workflow type
func (w TemporalWorkflowType) String() string {
	return string(w)
}

// WorkflowID builds a deterministic workflow id so that scheduling the same
// transition twice reuses the running workflow
func (w TemporalWorkflowType) WorkflowID(parts ...string) string {
	return fmt.Sprintf("%s-%s", w, strings.Join(parts, "-"))
}
