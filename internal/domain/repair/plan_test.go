package repair

import (
	"fmt"
	"testing"
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/testutil"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func monthly(product string) catalog.PlanPhaseSpecifier {
	return catalog.PlanPhaseSpecifier{ProductName: product, BillingPeriod: types.BillingPeriodMonthly}
}

// fixture is a Shotgun base with a Telescopic-Scope add-on, both past their
// first phase change
func fixture() *Snapshot {
	bundle := &subscription.Bundle{ID: "bun_1", AccountID: "acc_1", StartDate: day0, UpdatedAt: day0}
	base := &subscription.Subscription{ID: "sub_bp", BundleID: "bun_1", Category: types.ProductCategoryBase, ActiveVersion: 1, StartDate: day0}
	addon := &subscription.Subscription{ID: "sub_ao", BundleID: "bun_1", Category: types.ProductCategoryAddOn, ActiveVersion: 1, StartDate: day(5)}

	event := func(id, subID string, typ types.SubscriptionEventType, at time.Time, ordering int64, spec catalog.PlanPhaseSpecifier) *subscription.Event {
		return &subscription.Event{
			ID:                 id,
			SubscriptionID:     subID,
			Type:               typ,
			EffectiveDate:      at,
			RequestedDate:      at,
			CreatedDate:        at,
			ActiveVersion:      1,
			TotalOrdering:      ordering,
			PlanPhaseSpecifier: spec,
		}
	}
	evergreen := catalog.PlanPhaseSpecifier{PhaseType: types.PhaseTypeEvergreen}

	return &Snapshot{
		Bundle:        bundle,
		Subscriptions: []*subscription.Subscription{base, addon},
		Events: map[string][]*subscription.Event{
			"sub_bp": {
				event("evt_b1", "sub_bp", types.SubscriptionEventTypeCreate, day(0), 1, monthly(testutil.ProductShotgun)),
				event("evt_b2", "sub_bp", types.SubscriptionEventTypePhase, day(30), 3, evergreen),
			},
			"sub_ao": {
				event("evt_a1", "sub_ao", types.SubscriptionEventTypeCreate, day(5), 2, monthly(testutil.ProductTelescopicScope)),
				event("evt_a2", "sub_ao", types.SubscriptionEventTypePhase, day(36), 4, evergreen),
			},
		},
	}
}

func newPlanner() *Planner {
	var n int
	return &Planner{
		Catalog: testutil.NewTestCatalog(),
		Now:     day(10),
		NewID: func() string {
			n++
			return fmt.Sprintf("evt_new_%d", n)
		},
	}
}

func request(snap *Snapshot, subs ...*SubscriptionRepair) *BundleRepairRequest {
	return &BundleRepairRequest{
		BundleID:      snap.Bundle.ID,
		ViewID:        snap.ViewID(),
		Subscriptions: subs,
		DryRun:        true,
	}
}

func edit(subID string, deleted []string, events ...*NewEvent) *SubscriptionRepair {
	return &SubscriptionRepair{SubscriptionID: subID, DeletedEvents: deleted, NewEvents: events}
}

func newEvent(typ types.SubscriptionEventType, at time.Time, product string) *NewEvent {
	e := &NewEvent{Type: typ, RequestedDate: at}
	if product != "" {
		e.PlanPhaseSpecifier = monthly(product)
	}
	return e
}

func TestSnapshotViewID(t *testing.T) {
	snap := fixture()
	assert.Equal(t, fmt.Sprintf("4-%d", day0.UnixMilli()), snap.ViewID())

	snap.Bundle.Touch(day0)
	assert.Equal(t, fmt.Sprintf("4-%d", day0.Add(time.Millisecond).UnixMilli()), snap.ViewID())
}

func TestCurrent(t *testing.T) {
	snap := fixture()
	tl, err := newPlanner().Current(snap)
	require.NoError(t, err)

	assert.Equal(t, snap.ViewID(), tl.ViewID)
	assert.Equal(t, "acc_1", tl.AccountID)
	require.Len(t, tl.Subscriptions, 2)
	assert.Equal(t, "sub_bp", tl.Base().SubscriptionID)

	for _, sub := range tl.Subscriptions {
		assert.Len(t, sub.Events, 2)
		assert.Empty(t, sub.NewEvents())
		assert.Equal(t, int64(1), sub.ActiveVersion)
	}
	assert.Equal(t, testutil.ProductShotgun, tl.Base().State.ProductName())
	assert.Equal(t, types.PhaseTypeTrial, tl.Base().State.CurrentPhase)
}

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   func(snap *Snapshot) *BundleRepairRequest
		code  error
		class error
	}{
		{
			name: "stale view",
			req: func(snap *Snapshot) *BundleRepairRequest {
				req := request(snap, edit("sub_ao", []string{"evt_a2"}))
				req.ViewID = "3-0"
				return req
			},
			code:  ErrViewChanged,
			class: ierr.ErrVersionConflict,
		},
		{
			name: "unknown subscription",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_missing", []string{"evt_x"}))
			},
			code:  ErrUnknownSubscription,
			class: ierr.ErrNotFound,
		},
		{
			name: "deleting an event that is not the most recent",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_bp", []string{"evt_b1"}))
			},
			code:  ErrInvalidDeleteSet,
			class: ierr.ErrValidation,
		},
		{
			name: "deleting an unknown event",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_bp", []string{"evt_nope"}))
			},
			code:  ErrNonExistentDeleteEvent,
			class: ierr.ErrValidation,
		},
		{
			name: "base delete leaves a later add-on event",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_bp", []string{"evt_b2"},
					newEvent(types.SubscriptionEventTypeChange, day(30), testutil.ProductAssaultRifle)))
			},
			code:  ErrMissingAddonDeleteEvent,
			class: ierr.ErrValidation,
		},
		{
			name: "new event before the last remaining one",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_bp", nil,
					newEvent(types.SubscriptionEventTypeChange, day(20), testutil.ProductAssaultRifle)))
			},
			code:  ErrNewEventBeforeLastRemaining,
			class: ierr.ErrValidation,
		},
		{
			name: "add-on event before its last remaining event",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap,
					edit("sub_bp", []string{"evt_b2"}, newEvent(types.SubscriptionEventTypeChange, day(40), testutil.ProductPistol)),
					edit("sub_ao", []string{"evt_a2"}, newEvent(types.SubscriptionEventTypeCancel, day(3), "")),
				)
			},
			code:  ErrNewEventBeforeLastRemaining,
			class: ierr.ErrValidation,
		},
		{
			name: "phase events cannot be requested",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_ao", []string{"evt_a2"},
					newEvent(types.SubscriptionEventTypePhase, day(40), testutil.ProductTelescopicScope)))
			},
			code:  ErrUnknownType,
			class: ierr.ErrValidation,
		},
		{
			name: "recreate with surviving events",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_ao", nil,
					newEvent(types.SubscriptionEventTypeReCreate, day(40), testutil.ProductTelescopicScope)))
			},
			code:  ErrRecreateNotEmpty,
			class: ierr.ErrValidation,
		},
		{
			name: "deleting everything without recreating",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_ao", []string{"evt_a1", "evt_a2"}))
			},
			code:  ErrSubscriptionEmpty,
			class: ierr.ErrValidation,
		},
		{
			name: "base recreate without its add-on",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap, edit("sub_bp", []string{"evt_b1", "evt_b2"},
					newEvent(types.SubscriptionEventTypeReCreate, day(10), testutil.ProductShotgun)))
			},
			code:  ErrBaseRecreateMissingAddon,
			class: ierr.ErrValidation,
		},
		{
			name: "base recreate with an add-on that does not start over",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap,
					edit("sub_bp", []string{"evt_b1", "evt_b2"}, newEvent(types.SubscriptionEventTypeReCreate, day(10), testutil.ProductShotgun)),
					edit("sub_ao", []string{"evt_a1", "evt_a2"}, newEvent(types.SubscriptionEventTypeChange, day(12), testutil.ProductLaserScope)),
				)
			},
			code:  ErrBaseRecreateMissingAddonCreate,
			class: ierr.ErrValidation,
		},
		{
			name: "add-on recreated before the base starts",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap,
					edit("sub_bp", []string{"evt_b1", "evt_b2"}, newEvent(types.SubscriptionEventTypeReCreate, day(10), testutil.ProductShotgun)),
					edit("sub_ao", []string{"evt_a1", "evt_a2"}, newEvent(types.SubscriptionEventTypeCreate, day(8), testutil.ProductTelescopicScope)),
				)
			},
			code:  ErrAddonCreateBeforeBaseStart,
			class: ierr.ErrValidation,
		},
		{
			name: "add-on not offered by the new base product",
			req: func(snap *Snapshot) *BundleRepairRequest {
				return request(snap,
					edit("sub_bp", []string{"evt_b2"}, newEvent(types.SubscriptionEventTypeChange, day(30), testutil.ProductPistol)),
					edit("sub_ao", []string{"evt_a2"}, newEvent(types.SubscriptionEventTypeChange, day(40), testutil.ProductTelescopicScope)),
				)
			},
			code:  ErrAddonNotEligible,
			class: ierr.ErrCascadeInconsistency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := fixture()
			result, err := newPlanner().Plan(snap, tt.req(snap))
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, ierr.Is(err, tt.code), "expected %v, got %v", tt.code, err)
			assert.True(t, ierr.Is(err, tt.class), "expected class %v, got %v", tt.class, err)
			assert.Equal(t, "bun_1", ierr.Details(err)["bundle_id"])
		})
	}
}

func TestPlanViewChangedDetails(t *testing.T) {
	snap := fixture()
	req := request(snap, edit("sub_ao", []string{"evt_a2"}))
	req.ViewID = "3-0"

	_, err := newPlanner().Plan(snap, req)
	require.Error(t, err)
	details := ierr.Details(err)
	assert.Equal(t, "3-0", details["expected"])
	assert.Equal(t, snap.ViewID(), details["actual"])
}

func TestPlanRejectsMalformedRequests(t *testing.T) {
	snap := fixture()

	_, err := newPlanner().Plan(snap, request(snap))
	assert.True(t, ierr.IsValidation(err))

	_, err = newPlanner().Plan(snap, request(snap, edit("sub_ao", nil), edit("sub_ao", nil)))
	assert.True(t, ierr.IsValidation(err))
}

func TestPlanEmptyBundle(t *testing.T) {
	_, err := newPlanner().Plan(nil, &BundleRepairRequest{
		BundleID:      "bun_x",
		ViewID:        "0-0",
		Subscriptions: []*SubscriptionRepair{edit("sub_x", nil)},
	})
	assert.True(t, ierr.Is(err, ErrUnknownBundle))

	snap := fixture()
	snap.Subscriptions = nil
	_, err = newPlanner().Plan(snap, request(snap, edit("sub_bp", nil)))
	assert.True(t, ierr.Is(err, ErrNoActiveSubscriptions))
}

func TestPlanBaseChangeCascades(t *testing.T) {
	snap := fixture()
	req := request(snap,
		edit("sub_bp", []string{"evt_b2"}, newEvent(types.SubscriptionEventTypeChange, day(30), testutil.ProductAssaultRifle)),
		edit("sub_ao", []string{"evt_a2"}),
	)

	result, err := newPlanner().Plan(snap, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_ao", "sub_bp"}, result.ChangedSubscriptions())
	assert.Equal(t, req.ViewID, result.Timeline.ViewID)

	base := result.Timeline.Subscription("sub_bp")
	require.Len(t, base.Events, 2)
	assert.Equal(t, int64(2), base.ActiveVersion)
	assert.Equal(t, []string{"evt_b2"}, base.DeletedEventIDs)
	assert.Equal(t, timeline.OriginExisting, base.Events[0].Origin)
	assert.Equal(t, timeline.OriginRequested, base.Events[1].Origin)
	assert.Equal(t, types.SubscriptionEventTypeChange, base.Events[1].Type)
	require.NotNil(t, base.State.PendingTransition)
	assert.Equal(t, day(30), base.State.PendingTransition.EffectiveDate)

	addon := result.Timeline.Subscription("sub_ao")
	require.Len(t, addon.Events, 2)
	assert.Equal(t, []string{"evt_a2"}, addon.DeletedEventIDs)
	cancel := addon.Events[1]
	assert.Equal(t, timeline.OriginCascade, cancel.Origin)
	assert.Equal(t, types.SubscriptionEventTypeCancel, cancel.Type)
	assert.Equal(t, day(30), cancel.EffectiveDate)
	assert.Equal(t, int64(2), cancel.ActiveVersion)

	change := result.Changes["sub_ao"]
	require.NotNil(t, change)
	assert.Equal(t, int64(2), change.NewVersion)
	assert.Equal(t, []string{"evt_a1", cancel.ID}, eventIDs(change.Events))
}

func TestPlanCascadeSkipsCancelledAddons(t *testing.T) {
	snap := fixture()
	req := request(snap,
		edit("sub_bp", []string{"evt_b2"}, newEvent(types.SubscriptionEventTypeCancel, day(30), "")),
		edit("sub_ao", []string{"evt_a2"}, newEvent(types.SubscriptionEventTypeCancel, day(20), "")),
	)

	result, err := newPlanner().Plan(snap, req)
	require.NoError(t, err)

	addon := result.Timeline.Subscription("sub_ao")
	require.Len(t, addon.Events, 2)
	assert.Equal(t, timeline.OriginRequested, addon.Events[1].Origin)
	assert.Equal(t, day(20), addon.Events[1].EffectiveDate)
}

func TestPlanAddonRecreateDerivesPhase(t *testing.T) {
	snap := fixture()
	req := request(snap, edit("sub_ao", []string{"evt_a1", "evt_a2"},
		newEvent(types.SubscriptionEventTypeCreate, day(10), testutil.ProductTelescopicScope)))

	result, err := newPlanner().Plan(snap, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_ao"}, result.ChangedSubscriptions())

	addon := result.Timeline.Subscription("sub_ao")
	require.Len(t, addon.Events, 2)
	assert.Equal(t, timeline.OriginRequested, addon.Events[0].Origin)
	assert.Equal(t, timeline.OriginDerived, addon.Events[1].Origin)
	assert.Equal(t, types.SubscriptionEventTypePhase, addon.Events[1].Type)
	assert.Equal(t, day(41), addon.Events[1].EffectiveDate)
	assert.Equal(t, types.PhaseTypeEvergreen, addon.Events[1].PhaseType)

	base := result.Timeline.Subscription("sub_bp")
	assert.Equal(t, int64(1), base.ActiveVersion)
	assert.Empty(t, base.NewEvents())
}

func TestPlanUncancelResumesPhases(t *testing.T) {
	snap := fixture()
	snap.Events["sub_ao"] = append(snap.Events["sub_ao"], &subscription.Event{
		ID:             "evt_a3",
		SubscriptionID: "sub_ao",
		Type:           types.SubscriptionEventTypeCancel,
		EffectiveDate:  day(8),
		RequestedDate:  day(8),
		CreatedDate:    day(8),
		ActiveVersion:  1,
		TotalOrdering:  5,
	})
	subscription.SortEvents(snap.Events["sub_ao"])

	result, err := newPlanner().Plan(snap, request(snap, edit("sub_ao", []string{"evt_a3", "evt_a2"})))
	require.NoError(t, err)

	addon := result.Timeline.Subscription("sub_ao")
	assert.ElementsMatch(t, []string{"evt_a3", "evt_a2"}, addon.DeletedEventIDs)
	require.Len(t, addon.Events, 2)
	assert.Equal(t, timeline.OriginDerived, addon.Events[1].Origin)
	assert.Equal(t, types.SubscriptionEventTypePhase, addon.Events[1].Type)
	assert.Equal(t, types.PhaseTypeEvergreen, addon.Events[1].PhaseType)
	assert.Equal(t, day(36), addon.Events[1].EffectiveDate)
	assert.True(t, addon.State.IsActive())
	assert.Equal(t, types.PhaseTypeDiscount, addon.State.CurrentPhase)

	change := result.Changes["sub_ao"]
	require.NotNil(t, change)
	assert.Equal(t, []string{"evt_a1", addon.Events[1].ID}, eventIDs(change.Events))
}

func TestPlanDoesNotModifySnapshot(t *testing.T) {
	snap := fixture()
	before := snap.ViewID()
	req := request(snap,
		edit("sub_bp", []string{"evt_b2"}, newEvent(types.SubscriptionEventTypeChange, day(30), testutil.ProductAssaultRifle)),
		edit("sub_ao", []string{"evt_a2"}),
	)

	_, err := newPlanner().Plan(snap, req)
	require.NoError(t, err)
	assert.Equal(t, before, snap.ViewID())
	for _, events := range snap.Events {
		for _, e := range events {
			assert.Equal(t, int64(1), e.ActiveVersion)
		}
	}
}

func eventIDs(events []*subscription.Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}
