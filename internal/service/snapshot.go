package service

import (
	"context"

	"github.com/flexprice/timeline/internal/domain/repair"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/publisher"
	"github.com/flexprice/timeline/internal/types"
)

// loadSnapshot reads a bundle with its subscriptions and every version of
// their events
func (p ServiceParams) loadSnapshot(ctx context.Context, bundleID string) (*repair.Snapshot, error) {
	bundle, err := p.BundleRepo.Get(ctx, bundleID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHint("The bundle does not exist").
				WithReportableDetails(map[string]any{
					"bundle_id": bundleID,
				}).
				WithMark(repair.ErrUnknownBundle).
				Mark(ierr.ErrNotFound)
		}
		return nil, err
	}

	subs, err := p.SubRepo.ListByBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	events := make(map[string][]*subscription.Event, len(subs))
	for _, sub := range subs {
		list, err := p.EventRepo.ReadEvents(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		events[sub.ID] = list
	}

	return &repair.Snapshot{
		Bundle:        bundle,
		Subscriptions: subscription.BundleSubscriptions(subs),
		Events:        events,
	}, nil
}

// planner returns a repair planner reading the service clock
func (p ServiceParams) planner() *repair.Planner {
	return &repair.Planner{
		Catalog: p.Catalog,
		Now:     p.Now(),
		NewID: func() string {
			return types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT)
		},
	}
}

// currentTimeline reads the stored timeline of a bundle, replayed at now
func (p ServiceParams) currentTimeline(ctx context.Context, bundleID string) (*timeline.BundleTimeline, error) {
	snap, err := p.loadSnapshot(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	return p.planner().Current(snap)
}

// publish sends a notification. The state change it reports is already
// stored, so a failure is logged and reported but not returned.
func (p ServiceParams) publish(ctx context.Context, name, bundleID string, payload interface{}) {
	event, err := publisher.NewEvent(name, bundleID, payload, p.Now())
	if err == nil {
		event.RequestID = types.GetRequestID(ctx)
		err = p.EventPublisher.Publish(ctx, event)
	}
	if err != nil {
		p.Sentry.CaptureException(err)
		p.Logger.Errorw("failed to publish event",
			"event_name", name,
			"bundle_id", bundleID,
			"error", err,
		)
	}
}
