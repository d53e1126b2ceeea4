package models

import (
	"time"

	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
)

// PendingTransitionWorkflowInput carries a future event until it is due
type PendingTransitionWorkflowInput struct {
	Transition *subscription.PendingTransition `json:"transition"`
	DueAt      time.Time                       `json:"due_at"`
	RequestID  string                          `json:"request_id,omitempty"`
}

// Validate validates the pending transition workflow input
func (i PendingTransitionWorkflowInput) Validate() error {
	if i.Transition == nil {
		return ierr.NewError("transition is required").
			WithHint("A pending transition workflow needs the transition to deliver").
			Mark(ierr.ErrValidation)
	}

	t := i.Transition
	if t.BundleID == "" || t.SubscriptionID == "" || t.EventID == "" {
		return ierr.NewError("transition is incomplete").
			WithHint("Bundle, subscription and event ids are required").
			WithReportableDetails(map[string]interface{}{
				"bundle_id":       t.BundleID,
				"subscription_id": t.SubscriptionID,
				"event_id":        t.EventID,
			}).
			Mark(ierr.ErrValidation)
	}

	if i.DueAt.IsZero() {
		return ierr.NewError("due date is required").
			WithReportableDetails(map[string]interface{}{
				"event_id": t.EventID,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
