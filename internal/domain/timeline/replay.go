package timeline

import (
	"sort"
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
)

// Transition is the visible effect of one event
type Transition struct {
	EventID        string
	SubscriptionID string
	Type           types.SubscriptionEventType
	EffectiveDate  time.Time
	RequestedDate  time.Time

	PreviousPlan  *catalog.Plan
	PreviousPhase types.PhaseType
	NextPlan      *catalog.Plan
	NextPhase     types.PhaseType
	NextPriceList string
}

// NextProduct is the product in force after the transition, nil once cancelled
func (t *Transition) NextProduct() *catalog.Product {
	if t.NextPlan == nil {
		return nil
	}
	return t.NextPlan.Product
}

// IsPlanChange reports whether the transition can alter add-on eligibility
func (t *Transition) IsPlanChange() bool {
	return t.Type == types.SubscriptionEventTypeChange || t.Type == types.SubscriptionEventTypeCancel
}

// SubscriptionState is the projection of an event list at a given now
type SubscriptionState struct {
	SubscriptionID string
	Category       types.ProductCategory
	StartDate      time.Time

	// current projection, events effective at or before now
	CurrentPlan      *catalog.Plan
	CurrentPhase     types.PhaseType
	CurrentPriceList string
	CancelledDate    *time.Time
	LastActivePlan   *catalog.Plan

	// PendingTransition is the first transition effective after now
	PendingTransition *Transition

	// Transitions holds every transition, past and future, in timeline order
	Transitions []*Transition
}

// IsActive reports whether a plan is in force at now
func (s *SubscriptionState) IsActive() bool {
	return s.CurrentPlan != nil
}

// LastTransition returns the last transition of the timeline
func (s *SubscriptionState) LastTransition() *Transition {
	if len(s.Transitions) == 0 {
		return nil
	}
	return s.Transitions[len(s.Transitions)-1]
}

// PlanAt returns the plan in force at t, transitions effective at t included
func (s *SubscriptionState) PlanAt(t time.Time) *catalog.Plan {
	var plan *catalog.Plan
	for _, tr := range s.Transitions {
		if tr.EffectiveDate.After(t) {
			break
		}
		plan = tr.NextPlan
	}
	return plan
}

// ProductName returns the product of the current plan, or of the last plan
// before cancellation
func (s *SubscriptionState) ProductName() string {
	switch {
	case s.CurrentPlan != nil:
		return s.CurrentPlan.Product.Name
	case s.LastActivePlan != nil:
		return s.LastActivePlan.Product.Name
	}
	if last := s.lastPlan(); last != nil {
		return last.Product.Name
	}
	return ""
}

func (s *SubscriptionState) lastPlan() *catalog.Plan {
	for i := len(s.Transitions) - 1; i >= 0; i-- {
		if s.Transitions[i].NextPlan != nil {
			return s.Transitions[i].NextPlan
		}
	}
	return nil
}

// TransitionFor returns the transition produced by the event, if any
func (s *SubscriptionState) TransitionFor(eventID string) *Transition {
	for _, tr := range s.Transitions {
		if tr.EventID == eventID {
			return tr
		}
	}
	return nil
}

type rollingState struct {
	plan      *catalog.Plan
	phase     types.PhaseType
	priceList string
}

// Replay folds events into the subscription state seen at now. Events are
// ordered by effective date then insertion sequence; the input slice is not
// modified. Change, cancel and phase events on a subscription with no plan
// in force leave no transition.
func Replay(sub *subscription.Subscription, events []*subscription.Event, cat catalog.Catalog, now time.Time) (*SubscriptionState, error) {
	ordered := make([]*subscription.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		return a.TotalOrdering < b.TotalOrdering
	})

	state := &SubscriptionState{
		SubscriptionID: sub.ID,
		Category:       sub.Category,
		Transitions:    make([]*Transition, 0, len(ordered)),
	}

	var rolling rollingState
	for _, e := range ordered {
		tr, err := nextTransition(e, rolling, cat)
		if err != nil {
			return nil, err
		}
		if tr == nil {
			continue
		}

		rolling = rollingState{plan: tr.NextPlan, phase: tr.NextPhase, priceList: tr.NextPriceList}
		state.Transitions = append(state.Transitions, tr)

		if e.Type.IsCreation() && state.StartDate.IsZero() {
			state.StartDate = e.EffectiveDate
		}

		if e.EffectiveDate.After(now) {
			if state.PendingTransition == nil {
				state.PendingTransition = tr
			}
			continue
		}

		state.CurrentPlan = tr.NextPlan
		state.CurrentPhase = tr.NextPhase
		state.CurrentPriceList = tr.NextPriceList
		if tr.Type == types.SubscriptionEventTypeCancel {
			cancelled := tr.EffectiveDate
			state.CancelledDate = &cancelled
			state.LastActivePlan = tr.PreviousPlan
		} else {
			state.CancelledDate = nil
		}
	}

	return state, nil
}

func nextTransition(e *subscription.Event, rolling rollingState, cat catalog.Catalog) (*Transition, error) {
	tr := &Transition{
		EventID:        e.ID,
		SubscriptionID: e.SubscriptionID,
		Type:           e.Type,
		EffectiveDate:  e.EffectiveDate,
		RequestedDate:  e.RequestedDate,
		PreviousPlan:   rolling.plan,
		PreviousPhase:  rolling.phase,
	}

	switch {
	case e.Type.IsCreation(), e.Type == types.SubscriptionEventTypeChange:
		if e.Type == types.SubscriptionEventTypeChange && rolling.plan == nil {
			return nil, nil
		}
		plan, err := catalog.Resolve(cat, e.PlanPhaseSpecifier, e.EffectiveDate)
		if err != nil {
			return nil, ierr.WithError(err).
				WithReportableDetails(map[string]any{
					"subscription_id": e.SubscriptionID,
					"event_id":        e.ID,
				}).
				Mark(ierr.ErrNotFound)
		}
		tr.NextPlan = plan
		tr.NextPhase = e.PhaseType
		if tr.NextPhase == "" {
			tr.NextPhase = plan.InitialPhase().Type
		}
		tr.NextPriceList = plan.PriceList

	case e.Type == types.SubscriptionEventTypeCancel:
		if rolling.plan == nil {
			return nil, nil
		}

	case e.Type == types.SubscriptionEventTypePhase:
		if rolling.plan == nil {
			return nil, nil
		}
		phase := e.PhaseType
		if phase == "" {
			next, ok := rolling.plan.NextPhase(rolling.phase)
			if !ok {
				return nil, nil
			}
			phase = next.Type
		}
		tr.NextPlan = rolling.plan
		tr.NextPhase = phase
		tr.NextPriceList = rolling.priceList

	default:
		return nil, ierr.NewError("unknown event type").
			WithHintf("Event %s has unknown type %s", e.ID, e.Type).
			WithReportableDetails(map[string]any{
				"subscription_id": e.SubscriptionID,
				"event_id":        e.ID,
				"type":            e.Type,
			}).
			Mark(ierr.ErrValidation)
	}

	return tr, nil
}

// NextPhaseEvent derives the PHASE event implied by the phase durations of
// the plan in force after the last transition. It returns nil when that
// phase never ends or the subscription is cancelled.
func NextPhaseEvent(state *SubscriptionState) *subscription.Event {
	last := state.LastTransition()
	if last == nil || last.NextPlan == nil {
		return nil
	}

	current, err := last.NextPlan.FindPhase(last.NextPhase)
	if err != nil || current.Duration.IsUnlimited() {
		return nil
	}
	next, ok := last.NextPlan.NextPhase(last.NextPhase)
	if !ok {
		return nil
	}

	effective := current.Duration.AddTo(last.EffectiveDate)
	return &subscription.Event{
		SubscriptionID: state.SubscriptionID,
		Type:           types.SubscriptionEventTypePhase,
		EffectiveDate:  effective,
		RequestedDate:  effective,
		PlanPhaseSpecifier: catalog.PlanPhaseSpecifier{
			ProductName:   last.NextPlan.Product.Name,
			BillingPeriod: last.NextPlan.BillingPeriod,
			PriceList:     last.NextPriceList,
			PhaseType:     next.Type,
		},
	}
}
