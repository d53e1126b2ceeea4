package subscription

import (
	"fmt"
	"time"

	ierr "github.com/flexprice/timeline/internal/errors"
)

// ErrViewChanged is returned when a caller works against a stale view of a
// bundle. The caller has to refetch the timeline and retry.
var ErrViewChanged = ierr.NewSentinel("VIEW_CHANGED", "bundle view changed")

// ViewID fingerprints the state of a bundle as the highest event insertion
// sequence across its subscriptions and the bundle's last update.
func ViewID(bundleUpdatedAt time.Time, events []*Event) string {
	var maxOrdering int64
	for _, e := range events {
		if e.TotalOrdering > maxOrdering {
			maxOrdering = e.TotalOrdering
		}
	}
	return FormatViewID(maxOrdering, bundleUpdatedAt)
}

// FormatViewID renders a view id from its two components
func FormatViewID(maxOrdering int64, bundleUpdatedAt time.Time) string {
	return fmt.Sprintf("%d-%d", maxOrdering, bundleUpdatedAt.UnixMilli())
}

// NewViewChangedError builds the error returned on a view mismatch
func NewViewChangedError(bundleID, expected, actual string) error {
	return ierr.NewError("bundle view changed").
		WithHintf("Bundle %s changed since view %s was read, refetch the timeline", bundleID, expected).
		WithReportableDetails(map[string]any{
			"bundle_id": bundleID,
			"expected":  expected,
			"actual":    actual,
		}).
		WithMark(ErrViewChanged).
		Mark(ierr.ErrVersionConflict)
}
