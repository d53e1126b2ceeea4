package repair

import (
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/domain/timeline"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"github.com/samber/lo"
)

// SplitDeleted separates the active events of a subscription into the ones
// that survive and the ones the operator deletes. Deleted events must be the
// most recent ones: a surviving event after a deleted one is rejected.
func SplitDeleted(bundleID string, sub *subscription.Subscription, active []*subscription.Event, deletedIDs []string) (remaining, deleted []*subscription.Event, err error) {
	known := lo.SliceToMap(active, func(e *subscription.Event) (string, bool) {
		return e.ID, true
	})
	for _, id := range deletedIDs {
		if !known[id] {
			return nil, nil, newError(ErrNonExistentDeleteEvent, ierr.ErrValidation,
				"Deleted events must belong to the active history of the subscription",
				map[string]any{
					"bundle_id":       bundleID,
					"subscription_id": sub.ID,
					"event_id":        id,
				})
		}
	}

	toDelete := lo.SliceToMap(deletedIDs, func(id string) (string, bool) {
		return id, true
	})
	for _, e := range active {
		if toDelete[e.ID] {
			deleted = append(deleted, e)
			continue
		}
		if len(deleted) > 0 {
			return nil, nil, newError(ErrInvalidDeleteSet, ierr.ErrValidation,
				"Only the most recent events of a subscription can be deleted",
				map[string]any{
					"bundle_id":       bundleID,
					"subscription_id": sub.ID,
					"event_id":        e.ID,
				})
		}
		remaining = append(remaining, e)
	}
	return remaining, deleted, nil
}

// CheckAddonDeletes rejects add-on events left at or after the first deleted
// base event
func CheckAddonDeletes(bundleID string, addon *subscription.Subscription, active []*subscription.Event, deletedIDs []string, firstBaseDelete time.Time) error {
	toDelete := lo.SliceToMap(deletedIDs, func(id string) (string, bool) {
		return id, true
	})
	for _, e := range active {
		if e.EffectiveDate.Before(firstBaseDelete) || toDelete[e.ID] {
			continue
		}
		return newError(ErrMissingAddonDeleteEvent, ierr.ErrValidation,
			"Add-on events at or after a deleted base event must be deleted too",
			map[string]any{
				"bundle_id":       bundleID,
				"subscription_id": addon.ID,
				"event_id":        e.ID,
				"base_deleted_at": firstBaseDelete,
			})
	}
	return nil
}

// CheckEditShape validates an edit against what survives of the
// subscription: recreating needs an empty history, anything else needs at
// least one surviving event.
func CheckEditShape(bundleID string, sub *subscription.Subscription, edit *SubscriptionRepair, remaining []*subscription.Event) error {
	details := map[string]any{
		"bundle_id":       bundleID,
		"subscription_id": sub.ID,
	}
	switch {
	case edit.IsRecreate() && len(remaining) > 0:
		return newError(ErrRecreateNotEmpty, ierr.ErrValidation,
			"Delete every event of the subscription before recreating it", details)
	case !edit.IsRecreate() && len(remaining) == 0:
		return newError(ErrSubscriptionEmpty, ierr.ErrValidation,
			"A subscription without events must be recreated", details)
	}
	return nil
}

// CheckNewEvents validates the type and plan of every new event of an edit
func CheckNewEvents(bundleID string, sub *subscription.Subscription, edit *SubscriptionRepair) error {
	for i, e := range edit.NewEvents {
		details := map[string]any{
			"bundle_id":       bundleID,
			"subscription_id": sub.ID,
			"index":           i,
			"type":            e.Type,
		}
		if !e.Type.IsRepairable() {
			return newError(ErrUnknownType, ierr.ErrValidation,
				"New events must be one of CREATE, RE_CREATE, CHANGE or CANCEL", details)
		}
		if e.Type == types.SubscriptionEventTypeCancel {
			continue
		}
		if err := e.PlanPhaseSpecifier.Validate(); err != nil {
			return ierr.WithError(err).
				WithReportableDetails(details).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// CheckFirstNewEvent rejects an edit whose first new event would land before
// what survives of the subscription, or of its base. Zero times are ignored.
func CheckFirstNewEvent(bundleID string, sub *subscription.Subscription, edit *SubscriptionRepair, lastRemaining, lastRemainingBase time.Time) error {
	if len(edit.NewEvents) == 0 {
		return nil
	}
	first := edit.NewEvents[0]
	for _, bound := range []time.Time{lastRemainingBase, lastRemaining} {
		if bound.IsZero() || !first.RequestedDate.Before(bound) {
			continue
		}
		return newError(ErrNewEventBeforeLastRemaining, ierr.ErrValidation,
			"New events must not precede the last remaining event",
			map[string]any{
				"bundle_id":       bundleID,
				"subscription_id": sub.ID,
				"type":            first.Type,
				"requested_date":  first.RequestedDate,
				"last_remaining":  bound,
			})
	}
	return nil
}

// CheckAddonStart rejects an add-on recreated before its base starts
func CheckAddonStart(bundleID string, addon *subscription.Subscription, edit *SubscriptionRepair, baseStart time.Time) error {
	if !edit.IsRecreate() || baseStart.IsZero() {
		return nil
	}
	if !edit.NewEvents[0].RequestedDate.Before(baseStart) {
		return nil
	}
	return newError(ErrAddonCreateBeforeBaseStart, ierr.ErrValidation,
		"An add-on cannot start before its base subscription",
		map[string]any{
			"bundle_id":       bundleID,
			"subscription_id": addon.ID,
			"requested_date":  edit.NewEvents[0].RequestedDate,
			"base_start_date": baseStart,
		})
}

// CheckBaseRecreate requires a recreated base to take every subscription of
// the bundle along, each one starting over with a creation
func CheckBaseRecreate(bundleID string, subs []*subscription.Subscription, edits map[string]*SubscriptionRepair) error {
	for _, sub := range subs {
		edit, ok := edits[sub.ID]
		if !ok {
			return newError(ErrBaseRecreateMissingAddon, ierr.ErrValidation,
				"Recreating the base requires repairing every add-on of the bundle",
				map[string]any{
					"bundle_id":       bundleID,
					"subscription_id": sub.ID,
				})
		}
		if len(edit.NewEvents) > 0 && !edit.IsRecreate() {
			return newError(ErrBaseRecreateMissingAddonCreate, ierr.ErrValidation,
				"Add-ons of a recreated base must start with a creation",
				map[string]any{
					"bundle_id":       bundleID,
					"subscription_id": sub.ID,
					"type":            edit.NewEvents[0].Type,
				})
		}
	}
	return nil
}

// CheckAddonEligible rejects an add-on plan the base product does not allow
func CheckAddonEligible(bundleID string, addonID string, baseProduct *catalog.Product, addonProduct string, at time.Time) error {
	if !timeline.AddonCancelled(baseProduct, addonProduct) {
		return nil
	}
	base := ""
	if baseProduct != nil {
		base = baseProduct.Name
	}
	return newError(ErrAddonNotEligible, ierr.ErrCascadeInconsistency,
		"The base product does not offer this add-on",
		map[string]any{
			"bundle_id":       bundleID,
			"subscription_id": addonID,
			"addon_product":   addonProduct,
			"base_product":    base,
			"effective_date":  at,
		})
}
