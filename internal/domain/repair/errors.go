package repair

import (
	"github.com/flexprice/timeline/internal/domain/subscription"
	ierr "github.com/flexprice/timeline/internal/errors"
)

// Repair error codes. Every repair failure is marked with one of these on top
// of its error class, so callers can test for the exact cause with errors.Is.
var (
	ErrUnknownBundle                  = ierr.NewSentinel("UNKNOWN_BUNDLE", "unknown bundle")
	ErrNoActiveSubscriptions          = ierr.NewSentinel("NO_ACTIVE_SUBSCRIPTIONS", "bundle has no subscriptions")
	ErrViewChanged                    = subscription.ErrViewChanged
	ErrUnknownSubscription            = ierr.NewSentinel("UNKNOWN_SUBSCRIPTION", "unknown subscription")
	ErrInvalidDeleteSet               = ierr.NewSentinel("INVALID_DELETE_SET", "deleted events are not the most recent ones")
	ErrNonExistentDeleteEvent         = ierr.NewSentinel("NON_EXISTENT_DELETE_EVENT", "deleted event does not exist")
	ErrMissingAddonDeleteEvent        = ierr.NewSentinel("MISSING_AO_DELETE_EVENT", "add-on event must be deleted with the base event")
	ErrNewEventBeforeLastRemaining    = ierr.NewSentinel("NEW_EVENT_BEFORE_LAST_REMAINING", "new event precedes the last remaining event")
	ErrUnknownType                    = ierr.NewSentinel("UNKNOWN_TYPE", "event type cannot be repaired")
	ErrRecreateNotEmpty               = ierr.NewSentinel("RECREATE_NOT_EMPTY", "recreated subscription still has events")
	ErrSubscriptionEmpty              = ierr.NewSentinel("SUBSCRIPTION_EMPTY", "repair leaves the subscription without events")
	ErrAddonCreateBeforeBaseStart     = ierr.NewSentinel("AO_CREATE_BEFORE_BP_START", "add-on created before its base starts")
	ErrBaseRecreateMissingAddon       = ierr.NewSentinel("BP_RECREATE_MISSING_AO", "base recreate must repair every add-on")
	ErrBaseRecreateMissingAddonCreate = ierr.NewSentinel("BP_RECREATE_MISSING_AO_CREATE", "base recreate must recreate every repaired add-on")
	ErrAddonNotEligible               = ierr.NewSentinel("ADDON_NOT_ELIGIBLE", "add-on is not allowed under the base product")
)

// newError builds an error for code, classed under class
func newError(code *ierr.InternalError, class error, hint string, details map[string]any) error {
	return ierr.NewError(code.Message).
		WithHint(hint).
		WithReportableDetails(details).
		WithMark(code).
		Mark(class)
}
