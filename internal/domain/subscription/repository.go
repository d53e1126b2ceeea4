package subscription

import (
	"context"
	"time"
)

// BundleRepository provides access to bundles
type BundleRepository interface {
	Create(ctx context.Context, bundle *Bundle) error
	Get(ctx context.Context, id string) (*Bundle, error)
}

// Repository provides access to subscriptions
type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	ListByBundle(ctx context.Context, bundleID string) ([]*Subscription, error)
}

// EventRepository is the event store. Events of every version are kept;
// readers select the active one.
type EventRepository interface {
	// ReadEvents returns every event of the subscription, all versions, ordered by Less
	ReadEvents(ctx context.Context, subscriptionID string) ([]*Event, error)

	// Append adds events to the active version of their subscriptions. Like
	// Commit it re-checks the view id under the bundle lock and returns
	// ErrViewChanged on mismatch.
	Append(ctx context.Context, req *AppendRequest) error

	// Commit atomically replaces the event lists of the subscriptions in the
	// request. The view id is re-checked inside the write; on mismatch nothing
	// is written and ErrViewChanged is returned.
	Commit(ctx context.Context, req *CommitRequest) error

	// LockView checks the view id of a bundle and, inside a transaction,
	// holds the bundle until the transaction ends
	LockView(ctx context.Context, bundleID, expectedViewID string) error
}

// CommitRequest carries the new event lists of a repaired bundle
type CommitRequest struct {
	BundleID       string
	ExpectedViewID string
	// UpdatedAt becomes the bundle's new UpdatedAt
	UpdatedAt time.Time
	// Changes is keyed by subscription id
	Changes map[string]*SubscriptionChange
}

// AppendRequest carries events added to the active versions of a bundle
type AppendRequest struct {
	BundleID       string
	ExpectedViewID string
	// UpdatedAt becomes the bundle's new UpdatedAt
	UpdatedAt time.Time
	Events    []*Event
}

// SubscriptionChange is the replacement event list of one subscription
type SubscriptionChange struct {
	NewVersion int64
	Events     []*Event
}
