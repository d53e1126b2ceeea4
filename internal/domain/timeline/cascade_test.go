package timeline_test

import (
	"testing"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	"github.com/flexprice/timeline/internal/testutil"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddonCancelled(t *testing.T) {
	cat := testutil.NewTestCatalog()
	product := func(name string) *catalog.Product {
		p, err := cat.FindProduct(name, day0)
		require.NoError(t, err)
		return p
	}

	tests := []struct {
		name  string
		base  *catalog.Product
		addon string
		want  bool
	}{
		{"base cancelled", nil, testutil.ProductTelescopicScope, true},
		{"available", product(testutil.ProductShotgun), testutil.ProductTelescopicScope, false},
		{"included", product(testutil.ProductAssaultRifle), testutil.ProductTelescopicScope, true},
		{"not offered", product(testutil.ProductPistol), testutil.ProductTelescopicScope, true},
		{"offered elsewhere", product(testutil.ProductPistol), testutil.ProductLaserScope, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timeline.AddonCancelled(tt.base, tt.addon))
		})
	}
}

func addonState(t *testing.T, product string, extra ...*subscription.Event) *timeline.SubscriptionState {
	b := &eventBuilder{subID: "sub_" + product}
	events := append([]*subscription.Event{
		b.event("evt_"+product, types.SubscriptionEventTypeCreate, day(0), product),
	}, extra...)

	sub := &subscription.Subscription{
		ID:            "sub_" + product,
		BundleID:      "bun_1",
		Category:      types.ProductCategoryAddOn,
		ActiveVersion: 1,
	}
	state, err := timeline.Replay(sub, events, testutil.NewTestCatalog(), day(0))
	require.NoError(t, err)
	return state
}

func TestCascadeCancellations(t *testing.T) {
	cat := testutil.NewTestCatalog()
	b := &eventBuilder{subID: "sub_base"}
	events := []*subscription.Event{
		b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
		b.event("evt_2", types.SubscriptionEventTypeChange, day(20), testutil.ProductPistol),
	}
	base, err := timeline.Replay(baseSubscription(), events, cat, day(0))
	require.NoError(t, err)

	change := timeline.PendingBaseChange(base, day(0))
	require.NotNil(t, change)
	assert.Equal(t, "evt_2", change.EventID)

	telescopic := addonState(t, testutil.ProductTelescopicScope)
	laser := addonState(t, testutil.ProductLaserScope)

	cancellations := timeline.CascadeCancellations(change, []*timeline.SubscriptionState{telescopic, laser})
	require.Len(t, cancellations, 1)
	assert.Equal(t, telescopic.SubscriptionID, cancellations[0].SubscriptionID)
	assert.Equal(t, day(20), cancellations[0].EffectiveDate)
	assert.Equal(t, "evt_2", cancellations[0].BaseEventID)
}

func TestCascadeIsIdempotent(t *testing.T) {
	cat := testutil.NewTestCatalog()
	b := &eventBuilder{subID: "sub_base"}
	events := []*subscription.Event{
		b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
		b.event("evt_2", types.SubscriptionEventTypeCancel, day(30), ""),
	}
	base, err := timeline.Replay(baseSubscription(), events, cat, day(0))
	require.NoError(t, err)
	change := timeline.PendingBaseChange(base, day(0))

	addon := addonState(t, testutil.ProductTelescopicScope)
	first := timeline.CascadeCancellations(change, []*timeline.SubscriptionState{addon})
	require.Len(t, first, 1)

	// apply the cascade to the add-on, then run it again
	ab := &eventBuilder{subID: addon.SubscriptionID, ordering: 1}
	cancelled := addonState(t, testutil.ProductTelescopicScope,
		ab.event("evt_cascade", types.SubscriptionEventTypeCancel, first[0].EffectiveDate, ""))

	second := timeline.CascadeCancellations(change, []*timeline.SubscriptionState{cancelled})
	assert.Empty(t, second)
}

func TestCascadeIgnoresNonPlanChanges(t *testing.T) {
	b := &eventBuilder{subID: "sub_base"}
	events := []*subscription.Event{
		b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
		b.event("evt_2", types.SubscriptionEventTypePhase, day(30), ""),
	}
	base, err := timeline.Replay(baseSubscription(), events, testutil.NewTestCatalog(), day(0))
	require.NoError(t, err)

	assert.Nil(t, timeline.PendingBaseChange(base, day(0)))
	assert.Empty(t, timeline.CascadeCancellations(base.TransitionFor("evt_2"), []*timeline.SubscriptionState{
		addonState(t, testutil.ProductTelescopicScope),
	}))
}
