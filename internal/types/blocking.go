package types

import (
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/samber/lo"
)

// BlockingStateType is the level of the hierarchy a blocking state applies to
type BlockingStateType string

const (
	BlockingStateTypeAccount            BlockingStateType = "ACCOUNT"
	BlockingStateTypeSubscriptionBundle BlockingStateType = "SUBSCRIPTION_BUNDLE"
	BlockingStateTypeSubscription       BlockingStateType = "SUBSCRIPTION"
)

func (t BlockingStateType) String() string {
	return string(t)
}

func (t BlockingStateType) Validate() error {
	allowed := []BlockingStateType{
		BlockingStateTypeAccount,
		BlockingStateTypeSubscriptionBundle,
		BlockingStateTypeSubscription,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid blocking state type").
			WithHint("Blocking state type must be ACCOUNT, SUBSCRIPTION_BUNDLE or SUBSCRIPTION").
			WithReportableDetails(map[string]any{
				"type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Well known services and state names. Both are open ended strings; any
// service may append states with names of its own.
const (
	EntitlementService = "ENTITLEMENT_SERVICE"
	BillingService     = "BILLING_SERVICE"

	BlockingStateEntitlementStarted   = "ENT_STARTED"
	BlockingStateEntitlementCancelled = "CANCELLED"
	BlockingStateBillingStarted       = "START_BILLING"
	BlockingStateBillingStopped       = "STOP_BILLING"
)
