package repair

import (
	"sort"
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"github.com/samber/lo"
)

// Snapshot is everything a repair reads from the stores
type Snapshot struct {
	Bundle *subscription.Bundle
	// Subscriptions are ordered BASE first
	Subscriptions []*subscription.Subscription
	// Events holds every event of every version, keyed by subscription id
	Events map[string][]*subscription.Event
}

// ViewID fingerprints the snapshot
func (s *Snapshot) ViewID() string {
	var all []*subscription.Event
	for _, sub := range s.Subscriptions {
		all = append(all, s.Events[sub.ID]...)
	}
	return subscription.ViewID(s.Bundle.UpdatedAt, all)
}

// Active returns the events of the subscription's active version
func (s *Snapshot) Active(sub *subscription.Subscription) []*subscription.Event {
	return subscription.ActiveEvents(s.Events[sub.ID], sub.ActiveVersion)
}

func (s *Snapshot) maxOrdering() int64 {
	var highest int64
	for _, events := range s.Events {
		for _, e := range events {
			if e.TotalOrdering > highest {
				highest = e.TotalOrdering
			}
		}
	}
	return highest
}

// Result is a planned repair: the projected timeline and, for every
// subscription that changes, its next event list
type Result struct {
	Timeline *timeline.BundleTimeline
	Changes  map[string]*subscription.SubscriptionChange
}

// ChangedSubscriptions returns the ids of the subscriptions the repair
// rewrites, sorted
func (r *Result) ChangedSubscriptions() []string {
	ids := lo.Keys(r.Changes)
	sort.Strings(ids)
	return ids
}

// Planner turns a repair request into a Result without touching any store
type Planner struct {
	Catalog catalog.Catalog
	Now     time.Time
	// NewID generates ids for the events a repair adds
	NewID func() string
}

// work is the in-progress event list of one subscription
type work struct {
	sub     *subscription.Subscription
	edit    *SubscriptionRepair
	deleted []*subscription.Event
	events  []*timeline.TimelineEvent
	changed bool
}

func (w *work) list() []*subscription.Event {
	return lo.Map(w.events, func(e *timeline.TimelineEvent, _ int) *subscription.Event {
		return e.Event
	})
}

// dropDerivedAfter removes derived phase events a later event supersedes
func (w *work) dropDerivedAfter(t time.Time) {
	w.events = lo.Reject(w.events, func(e *timeline.TimelineEvent, _ int) bool {
		return e.Origin == timeline.OriginDerived && e.EffectiveDate.After(t)
	})
}

type pendingEvent struct {
	w *work
	e *NewEvent
}

// Current builds the timeline of a bundle as it is stored
func (p *Planner) Current(snap *Snapshot) (*timeline.BundleTimeline, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}

	works := make([]*work, 0, len(snap.Subscriptions))
	for _, sub := range snap.Subscriptions {
		works = append(works, &work{sub: sub, events: existing(snap.Active(sub))})
	}
	return p.project(snap, snap.ViewID(), works)
}

// Plan validates req against snap and computes the repaired timeline. Every
// check runs before any result is returned, so a failed plan leaves nothing
// to undo.
func (p *Planner) Plan(snap *Snapshot, req *BundleRepairRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}

	bundleID := snap.Bundle.ID
	if actual := snap.ViewID(); actual != req.ViewID {
		return nil, subscription.NewViewChangedError(bundleID, req.ViewID, actual)
	}

	edits := make(map[string]*SubscriptionRepair, len(req.Subscriptions))
	for _, edit := range req.Subscriptions {
		if _, ok := lo.Find(snap.Subscriptions, func(s *subscription.Subscription) bool { return s.ID == edit.SubscriptionID }); !ok {
			return nil, newError(ErrUnknownSubscription, ierr.ErrNotFound,
				"The subscription does not belong to the bundle",
				map[string]any{
					"bundle_id":       bundleID,
					"subscription_id": edit.SubscriptionID,
				})
		}
		edits[edit.SubscriptionID] = edit
	}

	works, err := p.prepare(snap, edits)
	if err != nil {
		return nil, err
	}

	ordering := snap.maxOrdering()
	// a history cut back without new events resumes the phases of the plan
	// its last remaining event left in force
	for _, w := range works {
		if w.edit == nil || len(w.edit.NewEvents) > 0 || len(w.deleted) == 0 {
			continue
		}
		if err := p.derivePhase(w, &ordering); err != nil {
			return nil, err
		}
	}
	for _, pe := range orderNewEvents(works) {
		if err := p.apply(bundleID, works, pe, &ordering); err != nil {
			return nil, err
		}
	}

	projected, err := p.project(snap, req.ViewID, works)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]*subscription.SubscriptionChange)
	for _, w := range works {
		if !w.changed {
			continue
		}
		changes[w.sub.ID] = &subscription.SubscriptionChange{
			NewVersion: w.sub.ActiveVersion + 1,
			Events:     w.list(),
		}
	}
	return &Result{Timeline: projected, Changes: changes}, nil
}

func checkSnapshot(snap *Snapshot) error {
	if snap == nil || snap.Bundle == nil {
		return newError(ErrUnknownBundle, ierr.ErrNotFound, "The bundle does not exist", nil)
	}
	if len(snap.Subscriptions) == 0 {
		return newError(ErrNoActiveSubscriptions, ierr.ErrNotFound,
			"The bundle has no subscriptions to repair",
			map[string]any{"bundle_id": snap.Bundle.ID})
	}
	return nil
}

func existing(events []*subscription.Event) []*timeline.TimelineEvent {
	return lo.Map(events, func(e *subscription.Event, _ int) *timeline.TimelineEvent {
		return &timeline.TimelineEvent{Event: e.Copy(), Origin: timeline.OriginExisting}
	})
}

// prepare applies deletions and runs every check that does not need a replay
func (p *Planner) prepare(snap *Snapshot, edits map[string]*SubscriptionRepair) ([]*work, error) {
	bundleID := snap.Bundle.ID
	works := make([]*work, 0, len(snap.Subscriptions))

	for _, sub := range snap.Subscriptions {
		if sub.Category != types.ProductCategoryBase {
			continue
		}
		if edit := edits[sub.ID]; edit != nil && edit.IsRecreate() {
			if err := CheckBaseRecreate(bundleID, snap.Subscriptions, edits); err != nil {
				return nil, err
			}
		}
	}

	var (
		firstBaseDelete   time.Time
		lastRemainingBase time.Time
		baseStart         time.Time
	)

	for _, sub := range snap.Subscriptions {
		active := snap.Active(sub)
		edit := edits[sub.ID]
		w := &work{sub: sub, edit: edit}

		if sub.Category == types.ProductCategoryBase {
			baseStart = sub.StartDate
		}

		if sub.Category == types.ProductCategoryAddOn && !firstBaseDelete.IsZero() {
			var deletedIDs []string
			if edit != nil {
				deletedIDs = edit.DeletedEvents
			}
			if err := CheckAddonDeletes(bundleID, sub, active, deletedIDs, firstBaseDelete); err != nil {
				return nil, err
			}
		}

		if edit == nil {
			w.events = existing(active)
			works = append(works, w)
			continue
		}

		remaining, deleted, err := SplitDeleted(bundleID, sub, active, edit.DeletedEvents)
		if err != nil {
			return nil, err
		}
		if err := CheckEditShape(bundleID, sub, edit, remaining); err != nil {
			return nil, err
		}
		if err := CheckNewEvents(bundleID, sub, edit); err != nil {
			return nil, err
		}

		var lastRemaining time.Time
		if len(remaining) > 0 {
			lastRemaining = remaining[len(remaining)-1].EffectiveDate
		}

		switch sub.Category {
		case types.ProductCategoryBase:
			if len(deleted) > 0 {
				firstBaseDelete = deleted[0].EffectiveDate
			}
			lastRemainingBase = lastRemaining
			if edit.IsRecreate() {
				baseStart = edit.NewEvents[0].RequestedDate
			}
			if err := CheckFirstNewEvent(bundleID, sub, edit, lastRemaining, time.Time{}); err != nil {
				return nil, err
			}
		case types.ProductCategoryAddOn:
			if err := CheckFirstNewEvent(bundleID, sub, edit, lastRemaining, lastRemainingBase); err != nil {
				return nil, err
			}
			if err := CheckAddonStart(bundleID, sub, edit, baseStart); err != nil {
				return nil, err
			}
		default:
			if err := CheckFirstNewEvent(bundleID, sub, edit, lastRemaining, time.Time{}); err != nil {
				return nil, err
			}
		}

		w.deleted = deleted
		w.events = existing(remaining)
		w.changed = len(deleted) > 0 || len(edit.NewEvents) > 0
		works = append(works, w)
	}
	return works, nil
}

// orderNewEvents sorts the new events of every edit by requested date. Ties
// keep the order of each edit, then the bundle order, BASE first.
func orderNewEvents(works []*work) []pendingEvent {
	var pending []pendingEvent
	for _, w := range works {
		if w.edit == nil {
			continue
		}
		for _, e := range w.edit.NewEvents {
			pending = append(pending, pendingEvent{w: w, e: e})
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].e.RequestedDate.Before(pending[j].e.RequestedDate)
	})
	return pending
}

func (p *Planner) newEvent(e *subscription.Event, ordering int64) *subscription.Event {
	e.ID = p.NewID()
	e.CreatedDate = p.Now
	e.TotalOrdering = ordering
	return e
}

func (p *Planner) replay(w *work) (*timeline.SubscriptionState, error) {
	return timeline.Replay(w.sub, w.list(), p.Catalog, p.Now)
}

func baseWork(works []*work) *work {
	w, _ := lo.Find(works, func(w *work) bool {
		return w.sub.Category == types.ProductCategoryBase
	})
	return w
}

// apply adds one new event to its subscription and cascades base plan
// changes to the add-ons
func (p *Planner) apply(bundleID string, works []*work, pe pendingEvent, ordering *int64) error {
	w := pe.w
	*ordering++
	e := p.newEvent(pe.e.toEvent(w.sub.ID), *ordering)

	base := baseWork(works)
	if w.sub.Category == types.ProductCategoryAddOn && base != nil && e.Type != types.SubscriptionEventTypeCancel {
		baseState, err := p.replay(base)
		if err != nil {
			return err
		}
		var baseProduct *catalog.Product
		if plan := baseState.PlanAt(e.EffectiveDate); plan != nil {
			baseProduct = plan.Product
		}
		if err := CheckAddonEligible(bundleID, w.sub.ID, baseProduct, e.ProductName, e.EffectiveDate); err != nil {
			return err
		}
	}

	w.dropDerivedAfter(e.EffectiveDate)
	w.events = append(w.events, &timeline.TimelineEvent{Event: e, Origin: timeline.OriginRequested})
	w.changed = true
	if err := p.derivePhase(w, ordering); err != nil {
		return err
	}

	if w.sub.Category != types.ProductCategoryBase {
		return nil
	}
	return p.cascade(works, w, e.ID, ordering)
}

// derivePhase appends the phase change implied by the plan in force after
// the last event, if any
func (p *Planner) derivePhase(w *work, ordering *int64) error {
	state, err := p.replay(w)
	if err != nil {
		return err
	}
	next := timeline.NextPhaseEvent(state)
	if next == nil {
		return nil
	}
	*ordering++
	w.events = append(w.events, &timeline.TimelineEvent{
		Event:  p.newEvent(next, *ordering),
		Origin: timeline.OriginDerived,
	})
	return nil
}

// cascade cancels the add-ons the base event forces out
func (p *Planner) cascade(works []*work, base *work, eventID string, ordering *int64) error {
	baseState, err := p.replay(base)
	if err != nil {
		return err
	}
	tr := baseState.TransitionFor(eventID)

	addons := lo.Filter(works, func(w *work, _ int) bool {
		return w.sub.Category == types.ProductCategoryAddOn
	})
	states := make([]*timeline.SubscriptionState, 0, len(addons))
	byID := make(map[string]*work, len(addons))
	for _, w := range addons {
		state, err := p.replay(w)
		if err != nil {
			return err
		}
		states = append(states, state)
		byID[w.sub.ID] = w
	}

	for _, c := range timeline.CascadeCancellations(tr, states) {
		w := byID[c.SubscriptionID]
		*ordering++
		cancel := p.newEvent(&subscription.Event{
			SubscriptionID: w.sub.ID,
			Type:           types.SubscriptionEventTypeCancel,
			EffectiveDate:  c.EffectiveDate,
			RequestedDate:  c.EffectiveDate,
		}, *ordering)
		w.dropDerivedAfter(c.EffectiveDate)
		w.events = append(w.events, &timeline.TimelineEvent{Event: cancel, Origin: timeline.OriginCascade})
		w.changed = true
	}
	return nil
}

// project replays every subscription and assembles the bundle timeline
func (p *Planner) project(snap *Snapshot, viewID string, works []*work) (*timeline.BundleTimeline, error) {
	out := &timeline.BundleTimeline{
		BundleID:      snap.Bundle.ID,
		AccountID:     snap.Bundle.AccountID,
		ViewID:        viewID,
		Subscriptions: make([]*timeline.SubscriptionTimeline, 0, len(works)),
	}

	for _, w := range works {
		version := w.sub.ActiveVersion
		if w.changed {
			version++
		}
		for _, e := range w.events {
			e.ActiveVersion = version
		}
		sortTimeline(w.events)

		state, err := p.replay(w)
		if err != nil {
			return nil, err
		}
		deleted := lo.Map(w.deleted, func(e *subscription.Event, _ int) string {
			return e.ID
		})
		out.Subscriptions = append(out.Subscriptions, &timeline.SubscriptionTimeline{
			SubscriptionID:  w.sub.ID,
			BundleID:        w.sub.BundleID,
			Category:        w.sub.Category,
			ActiveVersion:   version,
			Events:          w.events,
			DeletedEventIDs: deleted,
			State:           state,
		})
	}
	return out, nil
}

func sortTimeline(events []*timeline.TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return subscription.Less(events[i].Event, events[j].Event)
	})
}
