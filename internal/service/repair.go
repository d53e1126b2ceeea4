package service

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/domain/repair"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/sentry"
	"github.com/flexprice/timeline/internal/types"
)

// RepairService lets operators inspect and rewrite the event history of a
// bundle
type RepairService interface {
	// GetBundleTimeline returns the stored timeline and the view id a repair
	// must quote
	GetBundleTimeline(ctx context.Context, bundleID string) (*timeline.BundleTimeline, error)

	// RepairBundle validates and applies a repair. A dry run returns the
	// projected timeline without writing anything.
	RepairBundle(ctx context.Context, req *repair.BundleRepairRequest) (*timeline.BundleTimeline, error)
}

type repairService struct {
	ServiceParams
}

func NewRepairService(params ServiceParams) RepairService {
	return &repairService{
		ServiceParams: params,
	}
}

// BundleRepairedPayload is published after a repair is committed
type BundleRepairedPayload struct {
	BundleID      string   `json:"bundle_id"`
	ViewID        string   `json:"view_id"`
	PreviousView  string   `json:"previous_view_id"`
	Subscriptions []string `json:"subscriptions"`
	Operator      string   `json:"operator,omitempty"`
}

func (s *repairService) GetBundleTimeline(ctx context.Context, bundleID string) (*timeline.BundleTimeline, error) {
	return s.currentTimeline(ctx, bundleID)
}

func (s *repairService) RepairBundle(ctx context.Context, req *repair.BundleRepairRequest) (tl *timeline.BundleTimeline, err error) {
	if req == nil {
		return nil, ierr.NewError("repair request is required").
			Mark(ierr.ErrValidation)
	}

	span, ctx := s.Sentry.StartRepairSpan(ctx, req.BundleID, req.DryRun)
	defer func() {
		sentry.FinishSpan(span, err)
	}()

	snap, err := s.loadSnapshot(ctx, req.BundleID)
	if err != nil {
		return nil, err
	}

	planner := s.planner()
	result, err := planner.Plan(snap, req)
	if err != nil {
		s.Logger.Infow("rejected bundle repair",
			"bundle_id", req.BundleID,
			"view_id", req.ViewID,
			"code", ierr.Code(err),
			"error", err,
		)
		return nil, err
	}

	changed := result.ChangedSubscriptions()
	if req.DryRun {
		s.Logger.Debugw("planned bundle repair",
			"bundle_id", req.BundleID,
			"view_id", req.ViewID,
			"subscriptions", changed,
		)
		return result.Timeline, nil
	}
	if len(changed) == 0 {
		return result.Timeline, nil
	}

	restored, err := s.restoredEntitlements(ctx, result.Timeline, changed, planner.Now)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		err := s.EventRepo.Commit(ctx, &subscription.CommitRequest{
			BundleID:       req.BundleID,
			ExpectedViewID: req.ViewID,
			UpdatedAt:      planner.Now,
			Changes:        result.Changes,
		})
		if err != nil {
			return err
		}
		for _, state := range restored {
			if err := s.BlockingStateRepo.Append(ctx, state); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !ierr.IsVersionConflict(err) {
			s.Sentry.CaptureException(err)
		}
		s.Logger.Errorw("failed to commit bundle repair",
			"bundle_id", req.BundleID,
			"view_id", req.ViewID,
			"subscriptions", changed,
			"error", err,
		)
		return nil, err
	}

	tl, err = s.currentTimeline(ctx, req.BundleID)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("committed bundle repair",
		"bundle_id", req.BundleID,
		"previous_view_id", req.ViewID,
		"view_id", tl.ViewID,
		"subscriptions", changed,
	)
	for _, state := range restored {
		s.publish(ctx, types.EventBlockingStateAppended, req.BundleID, state)
	}
	s.publish(ctx, types.EventBundleRepaired, req.BundleID, &BundleRepairedPayload{
		BundleID:      req.BundleID,
		ViewID:        tl.ViewID,
		PreviousView:  req.ViewID,
		Subscriptions: changed,
		Operator:      types.GetOperator(ctx),
	})

	transitions := NewTransitionService(s.ServiceParams)
	if err := s.applyDueEvents(ctx, transitions, result.Timeline, planner.Now); err != nil {
		return nil, err
	}
	if err := transitions.ScheduleFutureEvents(ctx, req.BundleID, changed...); err != nil {
		return nil, err
	}
	return tl, nil
}

// restoredEntitlements returns the records that lift an applied cancellation
// the repair removed: the subscription is cancelled in the entitlement history
// but active again in the projected timeline
func (s *repairService) restoredEntitlements(ctx context.Context, projected *timeline.BundleTimeline, changed []string, now time.Time) ([]*blocking.BlockingState, error) {
	var restored []*blocking.BlockingState
	for _, subID := range changed {
		st := projected.Subscription(subID)
		if st == nil || st.State == nil || st.State.PlanAt(now) == nil {
			continue
		}

		states, err := s.BlockingStateRepo.List(ctx, subID, types.EntitlementService)
		if err != nil {
			return nil, err
		}
		current := blocking.CurrentState(states, types.EntitlementService, now)
		if current == nil || current.StateName != types.BlockingStateEntitlementCancelled {
			continue
		}
		restored = append(restored, newEntitlementState(subID, types.BlockingStateEntitlementStarted, now, now))
	}
	return restored, nil
}

// applyDueEvents applies right away the added events that already took
// effect, oldest first
func (s *repairService) applyDueEvents(ctx context.Context, transitions TransitionService, projected *timeline.BundleTimeline, now time.Time) error {
	var due []*subscription.Event
	for _, st := range projected.Subscriptions {
		for _, e := range st.NewEvents() {
			if !e.EffectiveDate.After(now) {
				due = append(due, e)
			}
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].EffectiveDate.Before(due[j].EffectiveDate)
	})

	for _, e := range due {
		if err := transitions.ApplyPendingTransition(ctx, subscription.NewPendingTransition(projected.BundleID, e)); err != nil {
			return err
		}
	}
	return nil
}
