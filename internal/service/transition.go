package service

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/domain/repair"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/publisher"
	"github.com/flexprice/timeline/internal/pubsub"
	"github.com/flexprice/timeline/internal/pubsub/router"
	"github.com/flexprice/timeline/internal/sentry"
	"github.com/flexprice/timeline/internal/types"
	"github.com/samber/lo"
)

// TransitionService applies future events once they become due and keeps
// the scheduler in sync with the event store
type TransitionService interface {
	// ApplyPendingTransition persists the side effects of a due event. It is
	// safe to call more than once for the same transition.
	ApplyPendingTransition(ctx context.Context, transition *subscription.PendingTransition) error

	// ScheduleFutureEvents schedules every future event of the active versions
	// of the given subscriptions, or of the whole bundle when none is given
	ScheduleFutureEvents(ctx context.Context, bundleID string, subscriptionIDs ...string) error

	// RegisterHandler consumes transition due notifications
	RegisterHandler(r *router.Router, subscriber pubsub.Subscriber)
}

type transitionService struct {
	ServiceParams
}

func NewTransitionService(params ServiceParams) TransitionService {
	return &transitionService{
		ServiceParams: params,
	}
}

// TransitionAppliedPayload is published once a due transition is applied
type TransitionAppliedPayload struct {
	Transition      *subscription.PendingTransition `json:"transition"`
	CancelledAddons []string                        `json:"cancelled_addons,omitempty"`
}

func (s *transitionService) ApplyPendingTransition(ctx context.Context, t *subscription.PendingTransition) (err error) {
	if t == nil || t.BundleID == "" || t.SubscriptionID == "" || t.EventID == "" {
		return ierr.NewError("pending transition is incomplete").
			WithHint("Bundle, subscription and event ids are required").
			Mark(ierr.ErrValidation)
	}

	now := s.Now()
	snap, err := s.loadSnapshot(ctx, t.BundleID)
	if err != nil {
		return err
	}

	sub, ok := lo.Find(snap.Subscriptions, func(sub *subscription.Subscription) bool {
		return sub.ID == t.SubscriptionID
	})
	if !ok {
		return ierr.NewError("subscription not found").
			WithHint("The subscription does not belong to the bundle").
			WithReportableDetails(map[string]any{
				"bundle_id":       t.BundleID,
				"subscription_id": t.SubscriptionID,
			}).
			WithMark(repair.ErrUnknownSubscription).
			Mark(ierr.ErrNotFound)
	}

	if sub.ActiveVersion != t.ActiveVersion {
		s.Logger.Infow("skipping transition of a repaired version",
			"subscription_id", sub.ID,
			"event_id", t.EventID,
			"scheduled_version", t.ActiveVersion,
			"active_version", sub.ActiveVersion,
		)
		return nil
	}
	event, ok := lo.Find(snap.Active(sub), func(e *subscription.Event) bool {
		return e.ID == t.EventID
	})
	if !ok {
		s.Logger.Infow("skipping transition of a removed event",
			"subscription_id", sub.ID,
			"event_id", t.EventID,
		)
		return nil
	}
	if event.EffectiveDate.After(now) {
		return ierr.NewError("transition is not due yet").
			WithHintf("The event takes effect at %s", event.EffectiveDate.Format(time.RFC3339)).
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"event_id":        event.ID,
				"effective_date":  event.EffectiveDate,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	span, ctx := s.Sentry.MonitorTransitionLag(ctx, event.EffectiveDate, now, map[string]interface{}{
		"bundle_id":       t.BundleID,
		"subscription_id": sub.ID,
		"event_type":      string(event.Type),
	})
	defer func() {
		sentry.FinishSpan(span, err)
	}()

	tl, err := s.planner().Current(snap)
	if err != nil {
		return err
	}

	var states []*blocking.BlockingState
	switch {
	case event.Type.IsCreation():
		states = append(states, newEntitlementState(sub.ID, types.BlockingStateEntitlementStarted, event.EffectiveDate, now))
	case event.Type == types.SubscriptionEventTypeCancel:
		states = append(states, newEntitlementState(sub.ID, types.BlockingStateEntitlementCancelled, event.EffectiveDate, now))
	}

	var cancels []*subscription.Event
	if sub.Category == types.ProductCategoryBase {
		cancels = s.cascade(tl, sub.ID, event.ID, now)
		for _, c := range cancels {
			states = append(states, newEntitlementState(c.SubscriptionID, types.BlockingStateEntitlementCancelled, c.EffectiveDate, now))
		}
	}

	states, err = s.missingStates(ctx, states)
	if err != nil {
		return err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		// snap must still be the stored view
		if len(cancels) > 0 {
			err := s.EventRepo.Append(ctx, &subscription.AppendRequest{
				BundleID:       t.BundleID,
				ExpectedViewID: snap.ViewID(),
				UpdatedAt:      now,
				Events:         cancels,
			})
			if err != nil {
				return err
			}
		} else if err := s.EventRepo.LockView(ctx, t.BundleID, snap.ViewID()); err != nil {
			return err
		}
		for _, state := range states {
			if err := s.BlockingStateRepo.Append(ctx, state); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.Logger.Errorw("failed to apply transition",
			"bundle_id", t.BundleID,
			"subscription_id", sub.ID,
			"event_id", event.ID,
			"error", err,
		)
		return err
	}

	cancelled := lo.Map(cancels, func(e *subscription.Event, _ int) string {
		return e.SubscriptionID
	})
	s.Logger.Infow("applied transition",
		"bundle_id", t.BundleID,
		"subscription_id", sub.ID,
		"event_id", event.ID,
		"event_type", event.Type,
		"cancelled_addons", cancelled,
	)

	for _, state := range states {
		s.publish(ctx, types.EventBlockingStateAppended, t.BundleID, state)
	}
	s.publish(ctx, types.EventTransitionApplied, t.BundleID, &TransitionAppliedPayload{
		Transition:      t,
		CancelledAddons: cancelled,
	})
	return nil
}

// cascade returns the CANCEL events the base event forces on its add-ons.
// Add-ons already without a plan at that date are left alone.
func (s *transitionService) cascade(tl *timeline.BundleTimeline, baseID, eventID string, now time.Time) []*subscription.Event {
	base := tl.Subscription(baseID)
	if base == nil || base.State == nil {
		return nil
	}

	var addons []*timeline.SubscriptionState
	for _, st := range tl.Subscriptions {
		if st.Category == types.ProductCategoryAddOn && st.State != nil {
			addons = append(addons, st.State)
		}
	}

	return lo.Map(timeline.CascadeCancellations(base.State.TransitionFor(eventID), addons), func(c *timeline.AddonCancellation, _ int) *subscription.Event {
		return &subscription.Event{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT),
			SubscriptionID: c.SubscriptionID,
			Type:           types.SubscriptionEventTypeCancel,
			EffectiveDate:  c.EffectiveDate,
			RequestedDate:  c.EffectiveDate,
			CreatedDate:    now,
		}
	})
}

// missingStates drops the records an earlier delivery already persisted
func (s *transitionService) missingStates(ctx context.Context, states []*blocking.BlockingState) ([]*blocking.BlockingState, error) {
	missing := make([]*blocking.BlockingState, 0, len(states))
	for _, state := range states {
		persisted, err := s.BlockingStateRepo.List(ctx, state.BlockedID, state.Service)
		if err != nil {
			return nil, err
		}
		_, found := lo.Find(persisted, func(p *blocking.BlockingState) bool {
			return p.StateName == state.StateName && p.EffectiveDate.Equal(state.EffectiveDate)
		})
		if !found {
			missing = append(missing, state)
		}
	}
	return missing, nil
}

func (s *transitionService) ScheduleFutureEvents(ctx context.Context, bundleID string, subscriptionIDs ...string) error {
	snap, err := s.loadSnapshot(ctx, bundleID)
	if err != nil {
		return err
	}

	now := s.Now()
	for _, sub := range snap.Subscriptions {
		if len(subscriptionIDs) > 0 && !lo.Contains(subscriptionIDs, sub.ID) {
			continue
		}
		for _, e := range snap.Active(sub) {
			if !e.EffectiveDate.After(now) {
				continue
			}
			if err := s.schedule(ctx, subscription.NewPendingTransition(bundleID, e)); err != nil {
				return err
			}
		}
	}
	return nil
}

// schedule hands one transition to the scheduler, retrying transient
// failures with exponential backoff
func (s *transitionService) schedule(ctx context.Context, t *subscription.PendingTransition) error {
	cfg := s.Config.Repair
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ScheduleInitialWait
	b.MaxElapsedTime = cfg.ScheduleMaxElapsed
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, cfg.ScheduleMaxRetries), ctx)

	operation := func() error {
		err := s.Scheduler.ScheduleAt(ctx, t.EffectiveDate, t)
		if err != nil && ierr.IsValidation(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.Logger.Warnw("retrying transition scheduling",
			"subscription_id", t.SubscriptionID,
			"event_id", t.EventID,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		s.Sentry.CaptureException(err)
		s.Logger.Errorw("failed to schedule transition",
			"bundle_id", t.BundleID,
			"subscription_id", t.SubscriptionID,
			"event_id", t.EventID,
			"error", err,
		)
		return ierr.WithError(err).
			WithHint("The event is stored but will not be applied until it is rescheduled").
			WithReportableDetails(map[string]any{
				"bundle_id":       t.BundleID,
				"subscription_id": t.SubscriptionID,
				"event_id":        t.EventID,
				"effective_date":  t.EffectiveDate,
			}).
			Mark(ierr.ErrTransitionUnscheduled)
	}

	s.Logger.Debugw("scheduled transition",
		"subscription_id", t.SubscriptionID,
		"event_id", t.EventID,
		"effective_date", t.EffectiveDate,
	)
	return nil
}

func (s *transitionService) RegisterHandler(r *router.Router, subscriber pubsub.Subscriber) {
	r.AddNoPublishHandler(
		"transition_due_handler",
		s.Config.Event.TopicTransitions,
		subscriber,
		s.handleTransitionDue,
	)
}

func (s *transitionService) handleTransitionDue(msg *message.Message) error {
	event, err := publisher.Unmarshal(msg.Payload)
	if err != nil {
		return err
	}

	var t subscription.PendingTransition
	if err := event.Decode(&t); err != nil {
		return err
	}

	ctx := msg.Context()
	if event.RequestID != "" {
		ctx = types.SetRequestID(ctx, event.RequestID)
	}
	return s.ApplyPendingTransition(ctx, &t)
}
