package timeline

import (
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/types"
	"github.com/samber/lo"
)

// EventOrigin tells where an event of a timeline comes from
type EventOrigin string

const (
	// OriginExisting events are committed in the event store
	OriginExisting EventOrigin = "existing"
	// OriginRequested events were submitted by the operator
	OriginRequested EventOrigin = "requested"
	// OriginCascade events were forced on an add-on by its base
	OriginCascade EventOrigin = "cascade"
	// OriginDerived events follow from plan phase durations
	OriginDerived EventOrigin = "derived"
)

// TimelineEvent is an event tagged with its origin
type TimelineEvent struct {
	*subscription.Event
	Origin EventOrigin `json:"origin"`
}

// IsNew reports whether the event is not committed yet
func (e *TimelineEvent) IsNew() bool {
	return e.Origin != OriginExisting
}

// SubscriptionTimeline is the full history of one subscription as seen by an
// operator: committed events followed by the ones a repair would add
type SubscriptionTimeline struct {
	SubscriptionID  string                `json:"subscription_id"`
	BundleID        string                `json:"bundle_id"`
	Category        types.ProductCategory `json:"category"`
	ActiveVersion   int64                 `json:"active_version"`
	Events          []*TimelineEvent      `json:"events"`
	DeletedEventIDs []string              `json:"deleted_event_ids,omitempty"`
	State           *SubscriptionState    `json:"-"`
}

// ExistingEvents returns the committed events that survive
func (s *SubscriptionTimeline) ExistingEvents() []*subscription.Event {
	return s.eventsWhere(func(e *TimelineEvent) bool { return !e.IsNew() })
}

// NewEvents returns the events that are not committed yet
func (s *SubscriptionTimeline) NewEvents() []*subscription.Event {
	return s.eventsWhere(func(e *TimelineEvent) bool { return e.IsNew() })
}

// AllEvents returns every event of the timeline
func (s *SubscriptionTimeline) AllEvents() []*subscription.Event {
	return s.eventsWhere(func(*TimelineEvent) bool { return true })
}

func (s *SubscriptionTimeline) eventsWhere(keep func(*TimelineEvent) bool) []*subscription.Event {
	return lo.FilterMap(s.Events, func(e *TimelineEvent, _ int) (*subscription.Event, bool) {
		return e.Event, keep(e)
	})
}

// BundleTimeline is the timeline of every subscription of a bundle, along
// with the view id it was read at
type BundleTimeline struct {
	BundleID      string                  `json:"bundle_id"`
	AccountID     string                  `json:"account_id"`
	ViewID        string                  `json:"view_id"`
	Subscriptions []*SubscriptionTimeline `json:"subscriptions"`
}

// Subscription returns the timeline of the subscription, nil if unknown
func (b *BundleTimeline) Subscription(id string) *SubscriptionTimeline {
	sub, _ := lo.Find(b.Subscriptions, func(s *SubscriptionTimeline) bool {
		return s.SubscriptionID == id
	})
	return sub
}

// Base returns the timeline of the BASE subscription, nil if there is none
func (b *BundleTimeline) Base() *SubscriptionTimeline {
	sub, _ := lo.Find(b.Subscriptions, func(s *SubscriptionTimeline) bool {
		return s.Category == types.ProductCategoryBase
	})
	return sub
}
