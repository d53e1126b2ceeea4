package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/samber/lo"
)

// InMemoryBundleStore implements subscription.BundleRepository
type InMemoryBundleStore struct {
	*InMemoryStore[*subscription.Bundle]
}

func NewInMemoryBundleStore() *InMemoryBundleStore {
	return &InMemoryBundleStore{
		InMemoryStore: NewInMemoryStore[*subscription.Bundle](),
	}
}

func (s *InMemoryBundleStore) Create(ctx context.Context, b *subscription.Bundle) error {
	c := *b
	return s.InMemoryStore.Create(ctx, b.ID, &c)
}

func (s *InMemoryBundleStore) Get(ctx context.Context, id string) (*subscription.Bundle, error) {
	b, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := *b
	return &c, nil
}

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	c := *sub
	return s.InMemoryStore.Create(ctx, sub.ID, &c)
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := *sub
	return &c, nil
}

func (s *InMemorySubscriptionStore) ListByBundle(ctx context.Context, bundleID string) ([]*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, func(_ context.Context, sub *subscription.Subscription) bool {
		return sub.BundleID == bundleID
	}, func(a, b *subscription.Subscription) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	copies := lo.Map(subs, func(sub *subscription.Subscription, _ int) *subscription.Subscription {
		c := *sub
		return &c
	})
	return subscription.BundleSubscriptions(copies), nil
}

// InMemorySubscriptionEventStore implements subscription.EventRepository.
// Writes are serialized by one lock; a commit stages every change before
// swapping it in, so a failure leaves the store untouched.
type InMemorySubscriptionEventStore struct {
	mu            sync.Mutex
	events        map[string][]*subscription.Event
	sequence      int64
	bundles       *InMemoryBundleStore
	subscriptions *InMemorySubscriptionStore

	// commitErr, when set, fails the next commit after validation
	commitErr error
}

func NewInMemorySubscriptionEventStore(bundles *InMemoryBundleStore, subscriptions *InMemorySubscriptionStore) *InMemorySubscriptionEventStore {
	return &InMemorySubscriptionEventStore{
		events:        make(map[string][]*subscription.Event),
		bundles:       bundles,
		subscriptions: subscriptions,
	}
}

// FailNextCommit makes the next Commit fail with err once the view id check
// passed, mimicking a store failure in the middle of the write
func (s *InMemorySubscriptionEventStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

func (s *InMemorySubscriptionEventStore) ReadEvents(ctx context.Context, subscriptionID string) ([]*subscription.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := lo.Map(s.events[subscriptionID], func(e *subscription.Event, _ int) *subscription.Event {
		return e.Copy()
	})
	subscription.SortEvents(events)
	return events, nil
}

func (s *InMemorySubscriptionEventStore) Append(ctx context.Context, req *subscription.AppendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, err := s.bundles.Get(ctx, req.BundleID)
	if err != nil {
		return err
	}
	if _, err := s.checkView(ctx, bundle, req.ExpectedViewID); err != nil {
		return err
	}

	staged := make(map[string][]*subscription.Event)
	seq := s.sequence
	for _, e := range req.Events {
		sub, err := s.subscriptions.Get(ctx, e.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.BundleID != req.BundleID {
			return ierr.NewError("subscription does not belong to bundle").
				WithReportableDetails(map[string]any{
					"subscription_id": sub.ID,
					"bundle_id":       req.BundleID,
				}).
				Mark(ierr.ErrValidation)
		}
		seq++
		e.ActiveVersion = sub.ActiveVersion
		e.TotalOrdering = seq
		staged[e.SubscriptionID] = append(staged[e.SubscriptionID], e.Copy())
	}

	for subID, added := range staged {
		s.events[subID] = append(s.events[subID], added...)
	}
	s.sequence = seq

	bundle.Touch(req.UpdatedAt)
	return s.bundles.Update(ctx, bundle.ID, bundle)
}

func (s *InMemorySubscriptionEventStore) LockView(ctx context.Context, bundleID, expectedViewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, err := s.bundles.Get(ctx, bundleID)
	if err != nil {
		return err
	}
	_, err = s.checkView(ctx, bundle, expectedViewID)
	return err
}

// checkView compares the stored view of the bundle with expected and returns
// the bundle's subscriptions. The caller holds the lock.
func (s *InMemorySubscriptionEventStore) checkView(ctx context.Context, bundle *subscription.Bundle, expected string) ([]*subscription.Subscription, error) {
	subs, err := s.subscriptions.ListByBundle(ctx, bundle.ID)
	if err != nil {
		return nil, err
	}

	var all []*subscription.Event
	for _, sub := range subs {
		all = append(all, s.events[sub.ID]...)
	}
	if actual := subscription.ViewID(bundle.UpdatedAt, all); actual != expected {
		return nil, subscription.NewViewChangedError(bundle.ID, expected, actual)
	}
	return subs, nil
}

func (s *InMemorySubscriptionEventStore) Commit(ctx context.Context, req *subscription.CommitRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, err := s.bundles.Get(ctx, req.BundleID)
	if err != nil {
		return err
	}
	subs, err := s.checkView(ctx, bundle, req.ExpectedViewID)
	if err != nil {
		return err
	}

	// stage
	seq := s.sequence
	stagedEvents := make(map[string][]*subscription.Event, len(req.Changes))
	stagedSubs := make(map[string]*subscription.Subscription, len(req.Changes))
	for subID, change := range req.Changes {
		sub, ok := lo.Find(subs, func(sub *subscription.Subscription) bool { return sub.ID == subID })
		if !ok {
			return ierr.NewError("subscription does not belong to bundle").
				WithReportableDetails(map[string]any{
					"subscription_id": subID,
					"bundle_id":       req.BundleID,
				}).
				Mark(ierr.ErrNotFound)
		}
		if change.NewVersion != sub.ActiveVersion+1 {
			return ierr.NewError("subscription version moved during commit").
				WithHintf("Subscription %s changed concurrently, refetch the timeline", subID).
				WithReportableDetails(map[string]any{
					"bundle_id":       req.BundleID,
					"subscription_id": subID,
					"new_version":     change.NewVersion,
				}).
				Mark(ierr.ErrVersionConflict)
		}

		written := make([]*subscription.Event, 0, len(change.Events))
		for _, e := range change.Events {
			seq++
			e.SubscriptionID = subID
			e.ActiveVersion = change.NewVersion
			e.TotalOrdering = seq
			written = append(written, e.Copy())
		}
		kept := make([]*subscription.Event, 0, len(s.events[subID])+len(written))
		stagedEvents[subID] = append(append(kept, s.events[subID]...), written...)

		updated := *sub
		updated.ActiveVersion = change.NewVersion
		updated.UpdatedAt = req.UpdatedAt
		stagedSubs[subID] = &updated
	}

	if s.commitErr != nil {
		err := s.commitErr
		s.commitErr = nil
		return ierr.WithError(err).
			WithHint("failed to commit bundle repair").
			Mark(ierr.ErrDatabase)
	}

	// swap
	for subID, events := range stagedEvents {
		s.events[subID] = events
		if err := s.subscriptions.Update(ctx, subID, stagedSubs[subID]); err != nil {
			return err
		}
	}
	s.sequence = seq

	bundle.Touch(req.UpdatedAt)
	return s.bundles.Update(ctx, bundle.ID, bundle)
}

// Clear removes every event
func (s *InMemorySubscriptionEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]*subscription.Event)
	s.sequence = 0
}
