package service

import (
	"context"
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/repair"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"github.com/flexprice/timeline/internal/validator"
	"github.com/samber/lo"
)

// SubscriptionService is the live path: it creates bundles and
// subscriptions and appends plan changes and cancellations
type SubscriptionService interface {
	CreateBundle(ctx context.Context, req *CreateBundleRequest) (*subscription.Bundle, error)
	CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*subscription.Subscription, error)
	ChangePlan(ctx context.Context, req *ChangePlanRequest) error
	CancelSubscription(ctx context.Context, subscriptionID string, effectiveDate time.Time) error
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
	}
}

// CreateBundleRequest opens an empty bundle for an account
type CreateBundleRequest struct {
	AccountID   string `json:"account_id" validate:"required"`
	ExternalKey string `json:"external_key"`
}

func (r *CreateBundleRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// CreateSubscriptionRequest starts a subscription on a plan
type CreateSubscriptionRequest struct {
	BundleID  string                `json:"bundle_id" validate:"required"`
	Category  types.ProductCategory `json:"category" validate:"required"`
	StartDate time.Time             `json:"start_date" validate:"required"`

	catalog.PlanPhaseSpecifier
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Category.Validate(); err != nil {
		return err
	}
	return r.PlanPhaseSpecifier.Validate()
}

// ChangePlanRequest moves a subscription to another plan
type ChangePlanRequest struct {
	SubscriptionID string    `json:"subscription_id" validate:"required"`
	EffectiveDate  time.Time `json:"effective_date" validate:"required"`

	catalog.PlanPhaseSpecifier
}

func (r *ChangePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.PlanPhaseSpecifier.Validate()
}

func (s *subscriptionService) CreateBundle(ctx context.Context, req *CreateBundleRequest) (*subscription.Bundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.Now()
	bundle := &subscription.Bundle{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BUNDLE),
		AccountID:   req.AccountID,
		ExternalKey: req.ExternalKey,
		StartDate:   now,
		UpdatedAt:   now,
		CreatedAt:   now,
	}
	if err := s.BundleRepo.Create(ctx, bundle); err != nil {
		return nil, err
	}

	s.Logger.Infow("created bundle",
		"bundle_id", bundle.ID,
		"account_id", bundle.AccountID,
	)
	return bundle, nil
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*subscription.Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.loadSnapshot(ctx, req.BundleID)
	if err != nil {
		return nil, err
	}
	plan, err := catalog.Resolve(s.Catalog, req.PlanPhaseSpecifier, req.StartDate)
	if err != nil {
		return nil, err
	}
	if plan.Product.Category != req.Category {
		return nil, ierr.NewError("product category mismatch").
			WithHintf("%s is a %s product", plan.Product.Name, plan.Product.Category).
			WithReportableDetails(map[string]any{
				"bundle_id":    req.BundleID,
				"product_name": plan.Product.Name,
				"category":     req.Category,
			}).
			Mark(ierr.ErrValidation)
	}

	now := s.Now()
	sub := &subscription.Subscription{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		BundleID:      req.BundleID,
		Category:      req.Category,
		ActiveVersion: 1,
		StartDate:     req.StartDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.checkCategory(snap, sub, req.ProductName); err != nil {
		return nil, err
	}

	flags, err := NewBlockingService(s.ServiceParams).Aggregate(ctx, snap.Bundle.AccountID, snap.Bundle.ID, "", req.StartDate)
	if err != nil {
		return nil, err
	}
	if flags.BlockChange {
		return nil, ierr.NewError("action blocked").
			WithHint("The bundle does not accept new subscriptions").
			WithReportableDetails(map[string]any{
				"bundle_id": req.BundleID,
				"flag":      "block_change",
			}).
			Mark(ierr.ErrBlockedAction)
	}

	create := &subscription.Event{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT),
		SubscriptionID:     sub.ID,
		Type:               types.SubscriptionEventTypeCreate,
		EffectiveDate:      req.StartDate,
		RequestedDate:      req.StartDate,
		CreatedDate:        now,
		PlanPhaseSpecifier: req.PlanPhaseSpecifier,
	}
	events, err := s.withNextPhase(sub, nil, create, now)
	if err != nil {
		return nil, err
	}
	started := newEntitlementState(sub.ID, types.BlockingStateEntitlementStarted, req.StartDate, now)

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}
		err := s.EventRepo.Append(ctx, &subscription.AppendRequest{
			BundleID:       sub.BundleID,
			ExpectedViewID: snap.ViewID(),
			UpdatedAt:      now,
			Events:         events,
		})
		if err != nil {
			return err
		}
		return s.BlockingStateRepo.Append(ctx, started)
	})
	if err != nil {
		s.Logger.Errorw("failed to create subscription",
			"bundle_id", sub.BundleID,
			"product_name", req.ProductName,
			"error", err,
		)
		return nil, err
	}

	s.Logger.Infow("created subscription",
		"bundle_id", sub.BundleID,
		"subscription_id", sub.ID,
		"category", sub.Category,
		"product_name", req.ProductName,
		"start_date", sub.StartDate,
	)
	s.publish(ctx, types.EventBlockingStateAppended, sub.BundleID, started)

	if err := NewTransitionService(s.ServiceParams).ScheduleFutureEvents(ctx, sub.BundleID, sub.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

// checkCategory enforces one base per bundle and add-ons that the base
// offers from their first day
func (s *subscriptionService) checkCategory(snap *repair.Snapshot, sub *subscription.Subscription, productName string) error {
	base, hasBase := lo.Find(snap.Subscriptions, func(existing *subscription.Subscription) bool {
		return existing.Category == types.ProductCategoryBase
	})

	switch sub.Category {
	case types.ProductCategoryBase:
		if hasBase {
			return ierr.NewError("bundle already has a base subscription").
				WithHint("A bundle holds a single base subscription").
				WithReportableDetails(map[string]any{
					"bundle_id":       snap.Bundle.ID,
					"subscription_id": base.ID,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
	case types.ProductCategoryAddOn:
		if !hasBase {
			return ierr.NewError("bundle has no base subscription").
				WithHint("Create the base subscription before its add-ons").
				WithReportableDetails(map[string]any{
					"bundle_id": snap.Bundle.ID,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		if sub.StartDate.Before(base.StartDate) {
			return ierr.NewError(repair.ErrAddonCreateBeforeBaseStart.Message).
				WithHint("An add-on cannot start before its base subscription").
				WithReportableDetails(map[string]any{
					"bundle_id":       snap.Bundle.ID,
					"start_date":      sub.StartDate,
					"base_start_date": base.StartDate,
				}).
				WithMark(repair.ErrAddonCreateBeforeBaseStart).
				Mark(ierr.ErrValidation)
		}

		state, err := timeline.Replay(base, snap.Active(base), s.Catalog, s.Now())
		if err != nil {
			return err
		}
		var baseProduct *catalog.Product
		if plan := state.PlanAt(sub.StartDate); plan != nil {
			baseProduct = plan.Product
		}
		return repair.CheckAddonEligible(snap.Bundle.ID, sub.ID, baseProduct, productName, sub.StartDate)
	}
	return nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, req *ChangePlanRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := catalog.Resolve(s.Catalog, req.PlanPhaseSpecifier, req.EffectiveDate); err != nil {
		return err
	}

	return s.appendEvent(ctx, req.SubscriptionID, &subscription.Event{
		Type:               types.SubscriptionEventTypeChange,
		EffectiveDate:      req.EffectiveDate,
		RequestedDate:      req.EffectiveDate,
		PlanPhaseSpecifier: req.PlanPhaseSpecifier,
	})
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, subscriptionID string, effectiveDate time.Time) error {
	if subscriptionID == "" || effectiveDate.IsZero() {
		return ierr.NewError("subscription id and effective date are required").
			Mark(ierr.ErrValidation)
	}

	return s.appendEvent(ctx, subscriptionID, &subscription.Event{
		Type:          types.SubscriptionEventTypeCancel,
		EffectiveDate: effectiveDate,
		RequestedDate: effectiveDate,
	})
}

// appendEvent adds a change or cancel at the end of the active history. It
// is applied right away when already effective and scheduled otherwise.
func (s *subscriptionService) appendEvent(ctx context.Context, subscriptionID string, event *subscription.Event) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	snap, err := s.loadSnapshot(ctx, sub.BundleID)
	if err != nil {
		return err
	}
	if err := NewBlockingService(s.ServiceParams).CheckBlockedChange(ctx, sub.ID, event.EffectiveDate); err != nil {
		return err
	}

	now := s.Now()
	active := snap.Active(sub)
	state, err := timeline.Replay(sub, active, s.Catalog, now)
	if err != nil {
		return err
	}
	details := map[string]any{
		"bundle_id":       sub.BundleID,
		"subscription_id": sub.ID,
		"type":            event.Type,
		"effective_date":  event.EffectiveDate,
	}
	if state.PlanAt(event.EffectiveDate) == nil {
		return ierr.NewError("subscription is not active").
			WithHint("The subscription has no plan in force at that date").
			WithReportableDetails(details).
			Mark(ierr.ErrInvalidOperation)
	}

	// only phase changes may be pending past a cancellation, they become inert
	pending := lo.Filter(active, func(e *subscription.Event, _ int) bool {
		return e.EffectiveDate.After(event.EffectiveDate) &&
			(event.Type != types.SubscriptionEventTypeCancel || e.Type != types.SubscriptionEventTypePhase)
	})
	if len(pending) > 0 {
		return ierr.NewError("subscription has later events").
			WithHint("Repair the bundle to rewrite events that are still pending").
			WithReportableDetails(details).
			Mark(ierr.ErrInvalidOperation)
	}

	if sub.Category == types.ProductCategoryAddOn && event.Type == types.SubscriptionEventTypeChange {
		if err := s.checkAddonChange(snap, sub, event); err != nil {
			return err
		}
	}

	event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT)
	event.SubscriptionID = sub.ID
	event.CreatedDate = now
	events, err := s.withNextPhase(sub, active, event, now)
	if err != nil {
		return err
	}

	if err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.EventRepo.Append(ctx, &subscription.AppendRequest{
			BundleID:       sub.BundleID,
			ExpectedViewID: snap.ViewID(),
			UpdatedAt:      now,
			Events:         events,
		})
	}); err != nil {
		return err
	}

	s.Logger.Infow("appended subscription event",
		"bundle_id", sub.BundleID,
		"subscription_id", sub.ID,
		"event_id", event.ID,
		"type", event.Type,
		"effective_date", event.EffectiveDate,
	)

	transitions := NewTransitionService(s.ServiceParams)
	if !event.EffectiveDate.After(now) {
		if err := transitions.ApplyPendingTransition(ctx, subscription.NewPendingTransition(sub.BundleID, event)); err != nil {
			return err
		}
	}
	return transitions.ScheduleFutureEvents(ctx, sub.BundleID, sub.ID)
}

func (s *subscriptionService) checkAddonChange(snap *repair.Snapshot, addon *subscription.Subscription, event *subscription.Event) error {
	base, ok := lo.Find(snap.Subscriptions, func(existing *subscription.Subscription) bool {
		return existing.Category == types.ProductCategoryBase
	})
	if !ok {
		return nil
	}
	state, err := timeline.Replay(base, snap.Active(base), s.Catalog, s.Now())
	if err != nil {
		return err
	}
	var baseProduct *catalog.Product
	if plan := state.PlanAt(event.EffectiveDate); plan != nil {
		baseProduct = plan.Product
	}
	return repair.CheckAddonEligible(snap.Bundle.ID, addon.ID, baseProduct, event.ProductName, event.EffectiveDate)
}

// withNextPhase returns event followed by the phase change the plan it
// starts implies, if any
func (s *subscriptionService) withNextPhase(sub *subscription.Subscription, active []*subscription.Event, event *subscription.Event, now time.Time) ([]*subscription.Event, error) {
	last := event.Copy()
	for _, e := range active {
		if e.TotalOrdering >= last.TotalOrdering {
			last.TotalOrdering = e.TotalOrdering + 1
		}
	}
	state, err := timeline.Replay(sub, append(append([]*subscription.Event{}, active...), last), s.Catalog, now)
	if err != nil {
		return nil, err
	}

	events := []*subscription.Event{event}
	if next := timeline.NextPhaseEvent(state); next != nil {
		next.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT)
		next.CreatedDate = now
		events = append(events, next)
	}
	return events, nil
}
