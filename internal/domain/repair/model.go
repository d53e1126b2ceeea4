package repair

import (
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"github.com/flexprice/timeline/internal/validator"
)

// BundleRepairRequest rewrites the recent history of some subscriptions of a
// bundle. ViewID is the view the operator edited; a stale one is rejected.
type BundleRepairRequest struct {
	BundleID      string                `json:"bundle_id" validate:"required"`
	ViewID        string                `json:"view_id" validate:"required"`
	Subscriptions []*SubscriptionRepair `json:"subscriptions" validate:"required,min=1,dive,required"`
	DryRun        bool                  `json:"dry_run"`
}

// SubscriptionRepair is the edit of one subscription: the most recent events
// to drop and the events to add in their place
type SubscriptionRepair struct {
	SubscriptionID string      `json:"subscription_id" validate:"required"`
	DeletedEvents  []string    `json:"deleted_events,omitempty"`
	NewEvents      []*NewEvent `json:"new_events,omitempty" validate:"dive,required"`
}

// NewEvent is an event requested by the operator. It takes effect on its
// requested date.
type NewEvent struct {
	Type          types.SubscriptionEventType `json:"type" validate:"required"`
	RequestedDate time.Time                   `json:"requested_date" validate:"required"`

	catalog.PlanPhaseSpecifier
}

// Validate checks the shape of the request. Semantic checks against the
// stored history happen while planning.
func (r *BundleRepairRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	seen := make(map[string]bool, len(r.Subscriptions))
	for _, sub := range r.Subscriptions {
		if seen[sub.SubscriptionID] {
			return ierr.NewError("subscription repaired twice").
				WithHint("Each subscription may appear once in a repair").
				WithReportableDetails(map[string]any{
					"bundle_id":       r.BundleID,
					"subscription_id": sub.SubscriptionID,
				}).
				Mark(ierr.ErrValidation)
		}
		seen[sub.SubscriptionID] = true
	}
	return nil
}

// IsRecreate reports whether the edit starts the subscription over
func (r *SubscriptionRepair) IsRecreate() bool {
	if len(r.NewEvents) == 0 {
		return false
	}
	first := r.NewEvents[0].Type
	return first == types.SubscriptionEventTypeCreate || first == types.SubscriptionEventTypeReCreate
}

// toEvent turns the request into an event of subscriptionID. Ids and
// versions are assigned when the plan is built.
func (e *NewEvent) toEvent(subscriptionID string) *subscription.Event {
	return &subscription.Event{
		SubscriptionID:     subscriptionID,
		Type:               e.Type,
		EffectiveDate:      e.RequestedDate,
		RequestedDate:      e.RequestedDate,
		PlanPhaseSpecifier: e.PlanPhaseSpecifier,
	}
}
