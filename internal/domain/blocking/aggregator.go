package blocking

import (
	"time"

	"github.com/flexprice/timeline/internal/domain/timeline"
	"github.com/flexprice/timeline/internal/types"
	"github.com/samber/lo"
)

// CurrentState returns the persisted record of the service in force at asOf:
// the one with the latest effective date not after asOf, the last written
// one winning ties.
func CurrentState(states []*BlockingState, service string, asOf time.Time) *BlockingState {
	persisted := lo.Filter(states, func(s *BlockingState, _ int) bool {
		return !s.IsSynthetic
	})
	return currentByService(persisted, asOf)[service]
}

// currentByService picks the record in force at asOf for every service
func currentByService(states []*BlockingState, asOf time.Time) map[string]*BlockingState {
	current := make(map[string]*BlockingState)
	for _, s := range states {
		if s.EffectiveDate.After(asOf) {
			continue
		}
		prev, ok := current[s.Service]
		if !ok || !laterWrite(prev, s) {
			current[s.Service] = s
		}
	}
	return current
}

// laterWrite reports whether a supersedes b
func laterWrite(a, b *BlockingState) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.After(b.EffectiveDate)
	}
	if !a.CreatedDate.Equal(b.CreatedDate) {
		return a.CreatedDate.After(b.CreatedDate)
	}
	return a.TotalOrdering > b.TotalOrdering
}

// LevelFlags ORs the flags of every service in force at asOf for one entity
func LevelFlags(states []*BlockingState, asOf time.Time) Flags {
	var flags Flags
	for _, s := range currentByService(states, asOf) {
		flags = flags.Or(s.Flags())
	}
	return flags
}

// Aggregate ORs the flags of every hierarchy level. A level cannot lift a
// block set by another one.
func Aggregate(asOf time.Time, levels ...[]*BlockingState) Flags {
	var flags Flags
	for _, level := range levels {
		flags = flags.Or(LevelFlags(level, asOf))
	}
	return flags
}

// NewSyntheticCancellation builds the entitlement cancellation record derived
// for an add-on
func NewSyntheticCancellation(c *timeline.AddonCancellation) *BlockingState {
	return &BlockingState{
		ID:               SyntheticID(c.SubscriptionID, c.EffectiveDate),
		BlockedID:        c.SubscriptionID,
		Type:             types.BlockingStateTypeSubscription,
		Service:          types.EntitlementService,
		StateName:        types.BlockingStateEntitlementCancelled,
		BlockChange:      true,
		BlockEntitlement: true,
		BlockBilling:     false,
		EffectiveDate:    c.EffectiveDate,
		CreatedDate:      c.EffectiveDate,
		IsSynthetic:      true,
	}
}

// SyntheticAddonCancellations derives the entitlement cancellations the base
// subscription's pending, or most recent, plan change implies for its add-ons
func SyntheticAddonCancellations(base *timeline.SubscriptionState, addons []*timeline.SubscriptionState, now time.Time) []*BlockingState {
	change := timeline.PendingBaseChange(base, now)
	return lo.Map(timeline.CascadeCancellations(change, addons), func(c *timeline.AddonCancellation, _ int) *BlockingState {
		return NewSyntheticCancellation(c)
	})
}

// isEntitlementCancellation reports whether s cancels an entitlement
func isEntitlementCancellation(s *BlockingState) bool {
	return s.Service == types.EntitlementService && s.StateName == types.BlockingStateEntitlementCancelled
}

// Merge folds synthetic records into the persisted history. A synthetic
// cancellation is dropped when the entity already has a persisted one at or
// before its date, and replaces a persisted one that is later. The result is
// ordered by Less and holds each record id once.
func Merge(persisted []*BlockingState, synthetic []*BlockingState) []*BlockingState {
	merged := make([]*BlockingState, 0, len(persisted)+len(synthetic))
	merged = append(merged, persisted...)

	for _, s := range synthetic {
		idx := -1
		for i, p := range merged {
			if !p.IsSynthetic && p.BlockedID == s.BlockedID && isEntitlementCancellation(p) {
				idx = i
				break
			}
		}

		switch {
		case idx < 0:
			merged = append(merged, s)
		case s.EffectiveDate.Before(merged[idx].EffectiveDate):
			merged[idx] = s
		}
	}

	merged = lo.UniqBy(merged, func(s *BlockingState) string {
		return s.ID
	})
	Sort(merged)
	return merged
}
