package timeline

import (
	"time"

	"github.com/flexprice/timeline/internal/domain/catalog"
)

// AddonCancelled is the single eligibility rule for add-ons: an add-on cannot
// outlive its base when the base product is gone, already includes the
// add-on, or does not offer it.
func AddonCancelled(baseProduct *catalog.Product, addonProduct string) bool {
	return baseProduct == nil ||
		baseProduct.IsAddonIncluded(addonProduct) ||
		!baseProduct.IsAddonAvailable(addonProduct)
}

// AddonCancellation is a cancellation forced on an add-on by a base transition
type AddonCancellation struct {
	SubscriptionID string
	ProductName    string
	EffectiveDate  time.Time
	// BaseEventID is the base event that triggered the cancellation
	BaseEventID string
}

// CascadeCancellations returns the add-ons the base transition forces out.
// Add-ons without a plan at the transition date, including those already
// cancelled by an earlier cascade, are skipped, which makes the cascade
// idempotent.
func CascadeCancellations(base *Transition, addons []*SubscriptionState) []*AddonCancellation {
	if base == nil || !base.IsPlanChange() {
		return nil
	}

	nextProduct := base.NextProduct()
	var result []*AddonCancellation
	for _, addon := range addons {
		plan := addon.PlanAt(base.EffectiveDate)
		if plan == nil {
			continue
		}
		if !AddonCancelled(nextProduct, plan.Product.Name) {
			continue
		}
		result = append(result, &AddonCancellation{
			SubscriptionID: addon.SubscriptionID,
			ProductName:    plan.Product.Name,
			EffectiveDate:  base.EffectiveDate,
			BaseEventID:    base.EventID,
		})
	}
	return result
}

// PendingBaseChange returns the base transition add-ons have to be checked
// against: the first pending change or cancel, or failing that the most
// recent one.
func PendingBaseChange(base *SubscriptionState, now time.Time) *Transition {
	var latest *Transition
	for _, tr := range base.Transitions {
		if !tr.IsPlanChange() {
			continue
		}
		if tr.EffectiveDate.After(now) {
			return tr
		}
		latest = tr
	}
	return latest
}
