package subscription

import (
	"context"
	"time"

	"github.com/flexprice/timeline/internal/types"
)

// PendingTransition identifies a future event to apply once it becomes due
type PendingTransition struct {
	BundleID       string                      `json:"bundle_id"`
	SubscriptionID string                      `json:"subscription_id"`
	EventID        string                      `json:"event_id"`
	EventType      types.SubscriptionEventType `json:"event_type"`
	ActiveVersion  int64                       `json:"active_version"`
	EffectiveDate  time.Time                   `json:"effective_date"`
}

// NewPendingTransition describes e as a pending transition of its bundle
func NewPendingTransition(bundleID string, e *Event) *PendingTransition {
	return &PendingTransition{
		BundleID:       bundleID,
		SubscriptionID: e.SubscriptionID,
		EventID:        e.ID,
		EventType:      e.Type,
		ActiveVersion:  e.ActiveVersion,
		EffectiveDate:  e.EffectiveDate,
	}
}

// Scheduler delivers a pending transition back to the core at or after its
// effective date, at least once
type Scheduler interface {
	ScheduleAt(ctx context.Context, effectiveDate time.Time, transition *PendingTransition) error
}
