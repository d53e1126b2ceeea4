package timeline_test

import (
	"math/rand"
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

type eventBuilder struct {
	subID    string
	ordering int64
}

func (b *eventBuilder) event(id string, typ types.SubscriptionEventType, at time.Time, product string) *subscription.Event {
	b.ordering++
	e := &subscription.Event{
		ID:             id,
		SubscriptionID: b.subID,
		Type:           typ,
		EffectiveDate:  at,
		RequestedDate:  at,
		CreatedDate:    at,
		ActiveVersion:  1,
		TotalOrdering:  b.ordering,
	}
	if product != "" {
		e.PlanPhaseSpecifier = catalog.PlanPhaseSpecifier{
			ProductName:   product,
			BillingPeriod: types.BillingPeriodMonthly,
		}
	}
	return e
}

func baseSubscription() *subscription.Subscription {
	return &subscription.Subscription{
		ID:            "sub_base",
		BundleID:      "bun_1",
		Category:      types.ProductCategoryBase,
		ActiveVersion: 1,
		StartDate:     day0,
	}
}

func baseEvents() []*subscription.Event {
	b := &eventBuilder{subID: "sub_base"}
	return []*subscription.Event{
		b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
		b.event("evt_2", types.SubscriptionEventTypePhase, day(30), ""),
		b.event("evt_3", types.SubscriptionEventTypeChange, day(45), testutil.ProductAssaultRifle),
		b.event("evt_4", types.SubscriptionEventTypeCancel, day(60), ""),
	}
}

func TestReplayDeterminism(t *testing.T) {
	cat := testutil.NewTestCatalog()
	sub := baseSubscription()
	events := baseEvents()
	now := day(50)

	first, err := timeline.Replay(sub, events, cat, now)
	require.NoError(t, err)
	second, err := timeline.Replay(sub, events, cat, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := append([]*subscription.Event(nil), events...)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		state, err := timeline.Replay(sub, shuffled, cat, now)
		require.NoError(t, err)
		assert.Equal(t, first, state)
	}

	// the input slice is left untouched
	assert.Equal(t, "evt_1", events[0].ID)
}

func TestReplayProjection(t *testing.T) {
	cat := testutil.NewTestCatalog()
	sub := baseSubscription()

	tests := []struct {
		name          string
		now           time.Time
		wantProduct   string
		wantPhase     types.PhaseType
		wantPending   string
		wantCancelled bool
	}{
		{"during trial", day(10), testutil.ProductShotgun, types.PhaseTypeTrial, "evt_2", false},
		{"after phase", day(40), testutil.ProductShotgun, types.PhaseTypeEvergreen, "evt_3", false},
		{"after change", day(50), testutil.ProductAssaultRifle, types.PhaseTypeEvergreen, "evt_4", false},
		{"after cancel", day(70), "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := timeline.Replay(sub, baseEvents(), cat, tt.now)
			require.NoError(t, err)

			assert.Equal(t, day(0), state.StartDate)
			assert.Len(t, state.Transitions, 4)
			if tt.wantProduct == "" {
				assert.Nil(t, state.CurrentPlan)
			} else {
				require.NotNil(t, state.CurrentPlan)
				assert.Equal(t, tt.wantProduct, state.CurrentPlan.Product.Name)
				assert.Equal(t, tt.wantPhase, state.CurrentPhase)
			}
			if tt.wantPending == "" {
				assert.Nil(t, state.PendingTransition)
			} else {
				require.NotNil(t, state.PendingTransition)
				assert.Equal(t, tt.wantPending, state.PendingTransition.EventID)
			}
			assert.Equal(t, tt.wantCancelled, state.CancelledDate != nil)
		})
	}
}

func TestReplayCancelledKeepsLastProduct(t *testing.T) {
	state, err := timeline.Replay(baseSubscription(), baseEvents(), testutil.NewTestCatalog(), day(70))
	require.NoError(t, err)

	assert.False(t, state.IsActive())
	assert.Equal(t, testutil.ProductAssaultRifle, state.ProductName())
	assert.Nil(t, state.PlanAt(day(60)))
	require.NotNil(t, state.PlanAt(day(59)))
	assert.Equal(t, testutil.ProductAssaultRifle, state.PlanAt(day(59)).Product.Name)
}

func TestReplayIgnoresEventsAfterCancel(t *testing.T) {
	b := &eventBuilder{subID: "sub_base"}
	events := []*subscription.Event{
		b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
		b.event("evt_2", types.SubscriptionEventTypeCancel, day(10), ""),
		b.event("evt_3", types.SubscriptionEventTypeChange, day(20), testutil.ProductPistol),
		b.event("evt_4", types.SubscriptionEventTypeCancel, day(30), ""),
	}

	state, err := timeline.Replay(baseSubscription(), events, testutil.NewTestCatalog(), day(40))
	require.NoError(t, err)
	assert.Len(t, state.Transitions, 2)
	assert.Nil(t, state.TransitionFor("evt_3"))
	require.NotNil(t, state.CancelledDate)
	assert.Equal(t, day(10), *state.CancelledDate)
}

func TestReplayRecreateAfterCancel(t *testing.T) {
	b := &eventBuilder{subID: "sub_base"}
	events := []*subscription.Event{
		b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
		b.event("evt_2", types.SubscriptionEventTypeCancel, day(10), ""),
		b.event("evt_3", types.SubscriptionEventTypeReCreate, day(20), testutil.ProductPistol),
	}

	state, err := timeline.Replay(baseSubscription(), events, testutil.NewTestCatalog(), day(25))
	require.NoError(t, err)
	require.True(t, state.IsActive())
	assert.Equal(t, testutil.ProductPistol, state.CurrentPlan.Product.Name)
	assert.Nil(t, state.CancelledDate)
	assert.Equal(t, day(0), state.StartDate)
}

func TestReplayErrors(t *testing.T) {
	cat := testutil.NewTestCatalog()

	t.Run("unknown type", func(t *testing.T) {
		b := &eventBuilder{subID: "sub_base"}
		events := []*subscription.Event{
			b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
			b.event("evt_2", types.SubscriptionEventType("PAUSE"), day(5), ""),
		}
		_, err := timeline.Replay(baseSubscription(), events, cat, day(10))
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("unknown plan", func(t *testing.T) {
		b := &eventBuilder{subID: "sub_base"}
		events := []*subscription.Event{
			b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), "Crossbow"),
		}
		_, err := timeline.Replay(baseSubscription(), events, cat, day(10))
		require.Error(t, err)
		assert.True(t, ierr.IsNotFound(err))
		assert.Equal(t, "evt_1", ierr.Details(err)["event_id"])
	})
}

func TestNextPhaseEvent(t *testing.T) {
	cat := testutil.NewTestCatalog()

	t.Run("trial ends after its duration", func(t *testing.T) {
		b := &eventBuilder{subID: "sub_base"}
		events := []*subscription.Event{
			b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductShotgun),
		}
		state, err := timeline.Replay(baseSubscription(), events, cat, day(1))
		require.NoError(t, err)

		next := timeline.NextPhaseEvent(state)
		require.NotNil(t, next)
		assert.Equal(t, types.SubscriptionEventTypePhase, next.Type)
		assert.Equal(t, day(30), next.EffectiveDate)
		assert.Equal(t, types.PhaseTypeEvergreen, next.PhaseType)
		assert.Equal(t, testutil.ProductShotgun, next.ProductName)
	})

	t.Run("evergreen never ends", func(t *testing.T) {
		b := &eventBuilder{subID: "sub_base"}
		events := []*subscription.Event{
			b.event("evt_1", types.SubscriptionEventTypeCreate, day(0), testutil.ProductPistol),
		}
		state, err := timeline.Replay(baseSubscription(), events, cat, day(1))
		require.NoError(t, err)
		assert.Nil(t, timeline.NextPhaseEvent(state))
	})

	t.Run("cancelled", func(t *testing.T) {
		state, err := timeline.Replay(baseSubscription(), baseEvents(), cat, day(70))
		require.NoError(t, err)
		assert.Nil(t, timeline.NextPhaseEvent(state))
	})
}
