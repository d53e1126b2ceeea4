package subscription

import (
	"testing"
	"time"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2012, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestActiveEventsOrdering(t *testing.T) {
	events := []*Event{
		{ID: "e4", ActiveVersion: 2, EffectiveDate: day(10), TotalOrdering: 7},
		{ID: "e1", ActiveVersion: 1, EffectiveDate: day(0), TotalOrdering: 1},
		{ID: "e3", ActiveVersion: 2, EffectiveDate: day(0), TotalOrdering: 6},
		{ID: "e2", ActiveVersion: 2, EffectiveDate: day(0), TotalOrdering: 5},
	}

	active := ActiveEvents(events, 2)
	require.Len(t, active, 3)
	assert.Equal(t, []string{"e2", "e3", "e4"}, []string{active[0].ID, active[1].ID, active[2].ID})

	SortEvents(events)
	assert.Equal(t, "e1", events[0].ID)
}

func TestBundleSubscriptionsBaseFirst(t *testing.T) {
	subs := []*Subscription{
		{ID: "ao", Category: types.ProductCategoryAddOn, StartDate: day(0)},
		{ID: "base", Category: types.ProductCategoryBase, StartDate: day(1)},
		{ID: "ao2", Category: types.ProductCategoryAddOn, StartDate: day(-1)},
	}

	ordered := BundleSubscriptions(subs)
	assert.Equal(t, "base", ordered[0].ID)
	assert.Equal(t, "ao2", ordered[1].ID)
	assert.Equal(t, "ao", ordered[2].ID)
	assert.Equal(t, "ao", subs[0].ID)
}

func TestViewID(t *testing.T) {
	updated := time.UnixMilli(1700000000000)
	events := []*Event{{TotalOrdering: 3}, {TotalOrdering: 9}, {TotalOrdering: 4}}

	assert.Equal(t, "9-1700000000000", ViewID(updated, events))
	assert.Equal(t, "0-1700000000000", ViewID(updated, nil))

	err := NewViewChangedError("bun_1", "1-1", "9-1700000000000")
	assert.True(t, ierr.Is(err, ErrViewChanged))
	assert.True(t, ierr.IsVersionConflict(err))
	assert.Equal(t, "9-1700000000000", ierr.Details(err)["actual"])
}
