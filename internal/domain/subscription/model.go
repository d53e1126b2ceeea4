package subscription

import (
	"sort"
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/types"
)

// Bundle groups one BASE subscription with the ADD_ON subscriptions that
// depend on it
type Bundle struct {
	// ID is the unique identifier for the bundle
	ID string `db:"id" json:"id"`

	// AccountID is the account owning the bundle
	AccountID string `db:"account_id" json:"account_id"`

	// ExternalKey is the key the bundle is known by outside the system
	ExternalKey string `db:"external_key" json:"external_key"`

	// StartDate is when the first subscription of the bundle started
	StartDate time.Time `db:"start_date" json:"start_date"`

	// UpdatedAt moves forward on every commit touching the bundle. It is part
	// of the view id, so deletion only repairs still invalidate older views.
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// BundleID is the bundle owning the subscription
	BundleID string `db:"bundle_id" json:"bundle_id"`

	// Category is the role of the subscription in its bundle
	Category types.ProductCategory `db:"category" json:"category"`

	// ActiveVersion is the version of the event list currently in force.
	// Every repair that changes the subscription bumps it by one.
	ActiveVersion int64 `db:"active_version" json:"active_version"`

	// StartDate is the effective date of the first creation event
	StartDate time.Time `db:"start_date" json:"start_date"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Event is one immutable transition of a subscription. Events are never
// updated: a repair writes a new version of the list instead.
type Event struct {
	ID             string                      `db:"id" json:"id"`
	SubscriptionID string                      `db:"subscription_id" json:"subscription_id"`
	Type           types.SubscriptionEventType `db:"event_type" json:"event_type"`
	EffectiveDate  time.Time                   `db:"effective_date" json:"effective_date"`
	RequestedDate  time.Time                   `db:"requested_date" json:"requested_date"`
	CreatedDate    time.Time                   `db:"created_date" json:"created_date"`
	ActiveVersion  int64                       `db:"active_version" json:"active_version"`

	// TotalOrdering is the store assigned insertion sequence
	TotalOrdering int64 `db:"total_ordering" json:"total_ordering"`

	catalog.PlanPhaseSpecifier
}

// HasSpecifier reports whether the event names a plan
func (e *Event) HasSpecifier() bool {
	return e.ProductName != ""
}

// Copy returns a shallow copy of the event
func (e *Event) Copy() *Event {
	c := *e
	return &c
}

// Less orders events by active version, effective date and insertion order
func Less(a, b *Event) bool {
	if a.ActiveVersion != b.ActiveVersion {
		return a.ActiveVersion < b.ActiveVersion
	}
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.Before(b.EffectiveDate)
	}
	return a.TotalOrdering < b.TotalOrdering
}

// SortEvents sorts events in place by Less
func SortEvents(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return Less(events[i], events[j])
	})
}

// ActiveEvents returns, ordered, the events belonging to version
func ActiveEvents(events []*Event, version int64) []*Event {
	active := make([]*Event, 0, len(events))
	for _, e := range events {
		if e.ActiveVersion == version {
			active = append(active, e)
		}
	}
	SortEvents(active)
	return active
}

// BundleSubscriptions orders subscriptions BASE first, then by start date
func BundleSubscriptions(subs []*Subscription) []*Subscription {
	ordered := make([]*Subscription, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		bi := ordered[i].Category == types.ProductCategoryBase
		bj := ordered[j].Category == types.ProductCategoryBase
		if bi != bj {
			return bi
		}
		return ordered[i].StartDate.Before(ordered[j].StartDate)
	})
	return ordered
}

// Touch moves UpdatedAt to at, or one millisecond past its current value when
// at is not later. Every write to a bundle must change its view id.
func (b *Bundle) Touch(at time.Time) {
	next := b.UpdatedAt.Add(time.Millisecond)
	if at.After(next) {
		next = at
	}
	b.UpdatedAt = next
}
