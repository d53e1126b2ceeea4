package service

import (
	"context"
	"time"

	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"github.com/samber/lo"
)

// BlockingService reads and writes the blocking history of accounts, bundles
// and subscriptions
type BlockingService interface {
	// SetBlockingState appends a record and notifies listeners
	SetBlockingState(ctx context.Context, state *blocking.BlockingState) error

	// CurrentState returns the persisted record of the service in force at asOf
	CurrentState(ctx context.Context, blockedID string, stateType types.BlockingStateType, service string, asOf time.Time) (*blocking.BlockingState, error)

	// History returns the persisted records of an entity merged with the
	// add-on cancellations its bundle's pending base change implies. An empty
	// service means every service.
	History(ctx context.Context, blockedID string, stateType types.BlockingStateType, service string) ([]*blocking.BlockingState, error)

	// Aggregate combines the flags of every service across the three levels.
	// Empty ids skip their level.
	Aggregate(ctx context.Context, accountID, bundleID, subscriptionID string, asOf time.Time) (blocking.Flags, error)

	// AggregateForSubscription resolves the bundle and account of the
	// subscription and aggregates all three levels
	AggregateForSubscription(ctx context.Context, subscriptionID string, asOf time.Time) (blocking.Flags, error)

	CheckBlockedChange(ctx context.Context, subscriptionID string, asOf time.Time) error
	CheckBlockedEntitlement(ctx context.Context, subscriptionID string, asOf time.Time) error
	CheckBlockedBilling(ctx context.Context, subscriptionID string, asOf time.Time) error
}

type blockingService struct {
	ServiceParams
}

func NewBlockingService(params ServiceParams) BlockingService {
	return &blockingService{
		ServiceParams: params,
	}
}

// newEntitlementState builds an entitlement record of a subscription. A
// cancellation blocks changes and entitlement, never billing.
func newEntitlementState(subscriptionID, stateName string, effectiveDate, now time.Time) *blocking.BlockingState {
	cancelled := stateName == types.BlockingStateEntitlementCancelled
	return &blocking.BlockingState{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BLOCKING_STATE),
		BlockedID:        subscriptionID,
		Type:             types.BlockingStateTypeSubscription,
		Service:          types.EntitlementService,
		StateName:        stateName,
		BlockChange:      cancelled,
		BlockEntitlement: cancelled,
		EffectiveDate:    effectiveDate,
		CreatedDate:      now,
	}
}

func (s *blockingService) SetBlockingState(ctx context.Context, state *blocking.BlockingState) error {
	if state == nil {
		return ierr.NewError("blocking state is required").
			Mark(ierr.ErrValidation)
	}
	if state.IsSynthetic {
		return ierr.NewError("synthetic blocking states cannot be persisted").
			WithHint("Synthetic records are derived on read").
			Mark(ierr.ErrInvalidOperation)
	}
	if state.ID == "" {
		state.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BLOCKING_STATE)
	}
	if state.CreatedDate.IsZero() {
		state.CreatedDate = s.Now()
	}
	if err := state.Validate(); err != nil {
		return err
	}

	if err := s.BlockingStateRepo.Append(ctx, state); err != nil {
		s.Logger.Errorw("failed to append blocking state",
			"blocked_id", state.BlockedID,
			"service", state.Service,
			"state_name", state.StateName,
			"error", err,
		)
		return err
	}

	s.Logger.Infow("appended blocking state",
		"blocking_state_id", state.ID,
		"blocked_id", state.BlockedID,
		"type", state.Type,
		"service", state.Service,
		"state_name", state.StateName,
		"effective_date", state.EffectiveDate,
	)
	s.publish(ctx, types.EventBlockingStateAppended, "", state)
	return nil
}

func (s *blockingService) CurrentState(ctx context.Context, blockedID string, stateType types.BlockingStateType, service string, asOf time.Time) (*blocking.BlockingState, error) {
	if err := stateType.Validate(); err != nil {
		return nil, err
	}
	if service == "" {
		return nil, ierr.NewError("service is required").
			WithHint("The current state is tracked per service").
			Mark(ierr.ErrValidation)
	}

	states, err := s.BlockingStateRepo.List(ctx, blockedID, service)
	if err != nil {
		return nil, err
	}
	current := blocking.CurrentState(states, service, asOf)
	if current == nil {
		return nil, ierr.NewError("blocking state not found").
			WithHintf("No %s state in force for the entity", service).
			WithReportableDetails(map[string]any{
				"blocked_id": blockedID,
				"service":    service,
				"as_of":      asOf,
			}).
			Mark(ierr.ErrNotFound)
	}
	return current, nil
}

func (s *blockingService) History(ctx context.Context, blockedID string, stateType types.BlockingStateType, service string) ([]*blocking.BlockingState, error) {
	if err := stateType.Validate(); err != nil {
		return nil, err
	}

	persisted, err := s.BlockingStateRepo.List(ctx, blockedID, service)
	if err != nil {
		return nil, err
	}
	if stateType != types.BlockingStateTypeSubscription || (service != "" && service != types.EntitlementService) {
		return persisted, nil
	}

	sub, err := s.SubRepo.Get(ctx, blockedID)
	if err != nil {
		return nil, err
	}
	synthetic, err := s.syntheticCancellations(ctx, sub)
	if err != nil {
		return nil, err
	}
	if len(synthetic) == 0 {
		return persisted, nil
	}

	// the records of the add-ons decide which synthetic ones survive
	known := append([]*blocking.BlockingState{}, persisted...)
	for _, addonID := range lo.Uniq(lo.Map(synthetic, func(st *blocking.BlockingState, _ int) string { return st.BlockedID })) {
		if addonID == sub.ID {
			continue
		}
		addonStates, err := s.BlockingStateRepo.List(ctx, addonID, types.EntitlementService)
		if err != nil {
			return nil, err
		}
		known = append(known, addonStates...)
	}

	return lo.Filter(blocking.Merge(known, synthetic), func(st *blocking.BlockingState, _ int) bool {
		return st.BlockedID == sub.ID || st.IsSynthetic
	}), nil
}

// syntheticCancellations derives the add-on cancellations the bundle's base
// implies. A base sees those of every add-on, an add-on only its own.
func (s *blockingService) syntheticCancellations(ctx context.Context, sub *subscription.Subscription) ([]*blocking.BlockingState, error) {
	if sub.Category == types.ProductCategoryStandalone {
		return nil, nil
	}

	tl, err := s.currentTimeline(ctx, sub.BundleID)
	if err != nil {
		return nil, err
	}
	base := tl.Base()
	if base == nil || base.State == nil {
		return nil, nil
	}

	addons := lo.FilterMap(tl.Subscriptions, func(st *timeline.SubscriptionTimeline, _ int) (*timeline.SubscriptionState, bool) {
		return st.State, st.Category == types.ProductCategoryAddOn && st.State != nil
	})
	synthetic := blocking.SyntheticAddonCancellations(base.State, addons, s.Now())
	if sub.Category == types.ProductCategoryAddOn {
		synthetic = lo.Filter(synthetic, func(st *blocking.BlockingState, _ int) bool {
			return st.BlockedID == sub.ID
		})
	}
	return synthetic, nil
}

func (s *blockingService) Aggregate(ctx context.Context, accountID, bundleID, subscriptionID string, asOf time.Time) (blocking.Flags, error) {
	var levels [][]*blocking.BlockingState
	for _, id := range []string{accountID, bundleID} {
		if id == "" {
			continue
		}
		states, err := s.BlockingStateRepo.List(ctx, id, "")
		if err != nil {
			return blocking.Flags{}, err
		}
		levels = append(levels, states)
	}

	if subscriptionID != "" {
		history, err := s.History(ctx, subscriptionID, types.BlockingStateTypeSubscription, "")
		if err != nil {
			return blocking.Flags{}, err
		}
		levels = append(levels, lo.Filter(history, func(st *blocking.BlockingState, _ int) bool {
			return st.BlockedID == subscriptionID
		}))
	}

	return blocking.Aggregate(asOf, levels...), nil
}

func (s *blockingService) AggregateForSubscription(ctx context.Context, subscriptionID string, asOf time.Time) (blocking.Flags, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return blocking.Flags{}, err
	}
	bundle, err := s.BundleRepo.Get(ctx, sub.BundleID)
	if err != nil {
		return blocking.Flags{}, err
	}
	return s.Aggregate(ctx, bundle.AccountID, bundle.ID, sub.ID, asOf)
}

func (s *blockingService) CheckBlockedChange(ctx context.Context, subscriptionID string, asOf time.Time) error {
	return s.checkBlocked(ctx, subscriptionID, asOf, "block_change", func(f blocking.Flags) bool {
		return f.BlockChange
	})
}

func (s *blockingService) CheckBlockedEntitlement(ctx context.Context, subscriptionID string, asOf time.Time) error {
	return s.checkBlocked(ctx, subscriptionID, asOf, "block_entitlement", func(f blocking.Flags) bool {
		return f.BlockEntitlement
	})
}

func (s *blockingService) CheckBlockedBilling(ctx context.Context, subscriptionID string, asOf time.Time) error {
	return s.checkBlocked(ctx, subscriptionID, asOf, "block_billing", func(f blocking.Flags) bool {
		return f.BlockBilling
	})
}

func (s *blockingService) checkBlocked(ctx context.Context, subscriptionID string, asOf time.Time, flag string, blocked func(blocking.Flags) bool) error {
	flags, err := s.AggregateForSubscription(ctx, subscriptionID, asOf)
	if err != nil {
		return err
	}
	if !blocked(flags) {
		return nil
	}
	return ierr.NewError("action blocked").
		WithHintf("The subscription is blocked by %s", flag).
		WithReportableDetails(map[string]any{
			"subscription_id": subscriptionID,
			"flag":            flag,
			"as_of":           asOf,
		}).
		Mark(ierr.ErrBlockedAction)
}
