package blocking_test

import (
	"testing"
	"time"

	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	"github.com/flexprice/timeline/internal/testutil"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func record(id, blockedID, service, state string, effective, created time.Time, ordering int64, flags blocking.Flags) *blocking.BlockingState {
	return &blocking.BlockingState{
		ID:               id,
		BlockedID:        blockedID,
		Type:             types.BlockingStateTypeSubscription,
		Service:          service,
		StateName:        state,
		BlockChange:      flags.BlockChange,
		BlockEntitlement: flags.BlockEntitlement,
		BlockBilling:     flags.BlockBilling,
		EffectiveDate:    effective,
		CreatedDate:      created,
		TotalOrdering:    ordering,
	}
}

var (
	open    = blocking.Flags{}
	blocked = blocking.Flags{BlockChange: true, BlockEntitlement: true}
)

func TestCurrentState(t *testing.T) {
	states := []*blocking.BlockingState{
		record("bst_1", "sub_1", "svc", "A", day(0), day(0), 1, open),
		record("bst_2", "sub_1", "svc", "B", day(10), day(1), 2, blocked),
		record("bst_3", "sub_1", "svc", "C", day(10), day(2), 3, open),
		record("bst_4", "sub_1", "svc", "D", day(20), day(3), 4, blocked),
		record("bst_5", "sub_1", "svc", "E", day(20), day(3), 5, open),
		record("bst_6", "sub_1", "other", "X", day(5), day(0), 6, blocked),
	}

	tests := []struct {
		name string
		asOf time.Time
		want string
	}{
		{"before anything", day(-1), ""},
		{"first record", day(5), "bst_1"},
		{"tie on effective date, later created wins", day(10), "bst_3"},
		{"full tie, later insertion wins", day(25), "bst_5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := blocking.CurrentState(states, "svc", tt.asOf)
			if tt.want == "" {
				assert.Nil(t, current)
				return
			}
			require.NotNil(t, current)
			assert.Equal(t, tt.want, current.ID)
		})
	}

	t.Run("synthetic records are not current", func(t *testing.T) {
		synthetic := record("synthetic", "sub_1", "svc", "S", day(30), day(30), 0, blocked)
		synthetic.IsSynthetic = true
		current := blocking.CurrentState(append(states, synthetic), "svc", day(31))
		require.NotNil(t, current)
		assert.Equal(t, "bst_5", current.ID)
	})
}

func TestAggregateMonotonicity(t *testing.T) {
	account := []*blocking.BlockingState{
		record("bst_a1", "acc_1", "billing", "OVERDUE", day(10), day(10), 1, blocking.Flags{BlockChange: true}),
		record("bst_a2", "acc_1", "billing", "CLEAR", day(40), day(40), 4, open),
	}
	bundle := []*blocking.BlockingState{
		record("bst_b1", "bun_1", "ops", "OPEN", day(0), day(0), 2, open),
	}
	sub := []*blocking.BlockingState{
		record("bst_s1", "sub_1", "ops", "OPEN", day(0), day(0), 3, open),
		record("bst_s2", "sub_1", "ops", "REOPEN", day(20), day(20), 5, open),
	}

	for n := 0; n < 50; n++ {
		flags := blocking.Aggregate(day(n), account, bundle, sub)
		want := n >= 10 && n < 40
		assert.Equal(t, want, flags.BlockChange, "day %d", n)
		assert.False(t, flags.BlockEntitlement, "day %d", n)
	}
}

func TestAggregateOrsServicesAndLevels(t *testing.T) {
	sub := []*blocking.BlockingState{
		record("bst_1", "sub_1", "entitlement", "CANCELLED", day(0), day(0), 1, blocking.Flags{BlockEntitlement: true}),
		record("bst_2", "sub_1", "billing", "STOP", day(0), day(0), 2, blocking.Flags{BlockBilling: true}),
	}
	account := []*blocking.BlockingState{
		record("bst_3", "acc_1", "ops", "FROZEN", day(0), day(0), 3, blocking.Flags{BlockChange: true}),
	}

	flags := blocking.Aggregate(day(1), account, nil, sub)
	assert.Equal(t, blocking.Flags{BlockChange: true, BlockEntitlement: true, BlockBilling: true}, flags)
	assert.Equal(t, blocking.Flags{}, blocking.Aggregate(day(-1), account, nil, sub))
}

func TestMerge(t *testing.T) {
	started := record("bst_1", "sub_ao", types.EntitlementService, types.BlockingStateEntitlementStarted, day(0), day(0), 1, open)
	synthetic := blocking.NewSyntheticCancellation(&timeline.AddonCancellation{
		SubscriptionID: "sub_ao",
		EffectiveDate:  day(30),
	})

	t.Run("adds the synthetic record", func(t *testing.T) {
		merged := blocking.Merge([]*blocking.BlockingState{started}, []*blocking.BlockingState{synthetic})
		require.Len(t, merged, 2)
		assert.Equal(t, "bst_1", merged[0].ID)
		assert.True(t, merged[1].IsSynthetic)
		assert.Equal(t, day(30), merged[1].EffectiveDate)
		assert.True(t, merged[1].BlockEntitlement)
		assert.True(t, merged[1].BlockChange)
		assert.False(t, merged[1].BlockBilling)
	})

	t.Run("drops it when a persisted cancellation exists", func(t *testing.T) {
		persisted := record("bst_2", "sub_ao", types.EntitlementService, types.BlockingStateEntitlementCancelled, day(30), day(30), 2, blocked)
		merged := blocking.Merge([]*blocking.BlockingState{started, persisted}, []*blocking.BlockingState{synthetic})
		require.Len(t, merged, 2)
		assert.False(t, merged[1].IsSynthetic)
		assert.Equal(t, "bst_2", merged[1].ID)
	})

	t.Run("replaces a later persisted cancellation", func(t *testing.T) {
		later := record("bst_2", "sub_ao", types.EntitlementService, types.BlockingStateEntitlementCancelled, day(45), day(45), 2, blocked)
		merged := blocking.Merge([]*blocking.BlockingState{started, later}, []*blocking.BlockingState{synthetic})
		require.Len(t, merged, 2)
		assert.True(t, merged[1].IsSynthetic)
		assert.Equal(t, day(30), merged[1].EffectiveDate)
	})

	t.Run("deduplicates repeated derivations", func(t *testing.T) {
		again := blocking.NewSyntheticCancellation(&timeline.AddonCancellation{
			SubscriptionID: "sub_ao",
			EffectiveDate:  day(30),
		})
		merged := blocking.Merge([]*blocking.BlockingState{started}, []*blocking.BlockingState{synthetic, again})
		assert.Len(t, merged, 2)
	})
}

func TestSyntheticAddonCancellations(t *testing.T) {
	cat := testutil.NewTestCatalog()
	replay := func(id string, category types.ProductCategory, events ...*subscription.Event) *timeline.SubscriptionState {
		state, err := timeline.Replay(&subscription.Subscription{ID: id, Category: category, ActiveVersion: 1}, events, cat, day(10))
		require.NoError(t, err)
		return state
	}
	event := func(id, subID string, typ types.SubscriptionEventType, at time.Time, product string, ordering int64) *subscription.Event {
		e := &subscription.Event{ID: id, SubscriptionID: subID, Type: typ, EffectiveDate: at, ActiveVersion: 1, TotalOrdering: ordering}
		if product != "" {
			e.PlanPhaseSpecifier = catalog.PlanPhaseSpecifier{ProductName: product, BillingPeriod: types.BillingPeriodMonthly}
		}
		return e
	}

	base := replay("sub_bp", types.ProductCategoryBase,
		event("evt_1", "sub_bp", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun, 1),
		event("evt_2", "sub_bp", types.SubscriptionEventTypeCancel, day(30), "", 4),
	)
	telescopic := replay("sub_ts", types.ProductCategoryAddOn,
		event("evt_3", "sub_ts", types.SubscriptionEventTypeCreate, day(0), testutil.ProductTelescopicScope, 2),
	)
	laser := replay("sub_ls", types.ProductCategoryAddOn,
		event("evt_4", "sub_ls", types.SubscriptionEventTypeCreate, day(0), testutil.ProductLaserScope, 3),
	)

	synthetic := blocking.SyntheticAddonCancellations(base, []*timeline.SubscriptionState{telescopic, laser}, day(10))
	require.Len(t, synthetic, 2)
	for _, s := range synthetic {
		assert.True(t, s.IsSynthetic)
		assert.Equal(t, day(30), s.EffectiveDate)
		assert.Equal(t, types.BlockingStateTypeSubscription, s.Type)
		assert.Equal(t, types.EntitlementService, s.Service)
		assert.Equal(t, types.BlockingStateEntitlementCancelled, s.StateName)
	}

	again := blocking.SyntheticAddonCancellations(base, []*timeline.SubscriptionState{telescopic, laser}, day(10))
	assert.Equal(t, synthetic, again)
}
