package types

import (
	"fmt"
	"strings"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/samber/lo"
)

// ProductCategory is the role a subscription plays inside its bundle
type ProductCategory string

const (
	ProductCategoryBase       ProductCategory = "BASE"
	ProductCategoryAddOn      ProductCategory = "ADD_ON"
	ProductCategoryStandalone ProductCategory = "STANDALONE"
)

func (c ProductCategory) String() string {
	return string(c)
}

func (c ProductCategory) Validate() error {
	allowed := []ProductCategory{
		ProductCategoryBase,
		ProductCategoryAddOn,
		ProductCategoryStandalone,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid product category").
			WithHint("Invalid product category").
			WithReportableDetails(map[string]any{
				"category":         c,
				"allowed_category": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SubscriptionEventType is the kind of transition an event records
type SubscriptionEventType string

const (
	SubscriptionEventTypeCreate             SubscriptionEventType = "CREATE"
	SubscriptionEventTypeReCreate           SubscriptionEventType = "RE_CREATE"
	SubscriptionEventTypeChange             SubscriptionEventType = "CHANGE"
	SubscriptionEventTypeCancel             SubscriptionEventType = "CANCEL"
	SubscriptionEventTypePhase              SubscriptionEventType = "PHASE"
	SubscriptionEventTypeMigrateEntitlement SubscriptionEventType = "MIGRATE_ENTITLEMENT"
)

func (t SubscriptionEventType) String() string {
	return string(t)
}

func (t SubscriptionEventType) Validate() error {
	allowed := []SubscriptionEventType{
		SubscriptionEventTypeCreate,
		SubscriptionEventTypeReCreate,
		SubscriptionEventTypeChange,
		SubscriptionEventTypeCancel,
		SubscriptionEventTypePhase,
		SubscriptionEventTypeMigrateEntitlement,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid subscription event type").
			WithHintf("Event type must be one of: %s", strings.Join(lo.Map(allowed, func(t SubscriptionEventType, _ int) string { return string(t) }), ", ")).
			WithReportableDetails(map[string]any{
				"type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsCreation reports whether the event starts a plan from nothing
func (t SubscriptionEventType) IsCreation() bool {
	return t == SubscriptionEventTypeCreate ||
		t == SubscriptionEventTypeReCreate ||
		t == SubscriptionEventTypeMigrateEntitlement
}

// IsRepairable reports whether an operator may submit the type as a new
// event in a repair
func (t SubscriptionEventType) IsRepairable() bool {
	return t == SubscriptionEventTypeCreate ||
		t == SubscriptionEventTypeReCreate ||
		t == SubscriptionEventTypeChange ||
		t == SubscriptionEventTypeCancel
}

// BillingPeriod is the recurring period of a plan phase
type BillingPeriod string

const (
	BillingPeriodMonthly         BillingPeriod = "MONTHLY"
	BillingPeriodQuarterly       BillingPeriod = "QUARTERLY"
	BillingPeriodAnnual          BillingPeriod = "ANNUAL"
	BillingPeriodNoBillingPeriod BillingPeriod = "NO_BILLING_PERIOD"
)

func (b BillingPeriod) String() string {
	return string(b)
}

func (b BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BillingPeriodMonthly,
		BillingPeriodQuarterly,
		BillingPeriodAnnual,
		BillingPeriodNoBillingPeriod,
	}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing period").
			WithHint(fmt.Sprintf("Billing period must be one of: %v", allowed)).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PhaseType is the kind of a plan phase
type PhaseType string

const (
	PhaseTypeTrial     PhaseType = "TRIAL"
	PhaseTypeDiscount  PhaseType = "DISCOUNT"
	PhaseTypeFixedTerm PhaseType = "FIXEDTERM"
	PhaseTypeEvergreen PhaseType = "EVERGREEN"
)

func (p PhaseType) String() string {
	return string(p)
}

func (p PhaseType) Validate() error {
	allowed := []PhaseType{
		PhaseTypeTrial,
		PhaseTypeDiscount,
		PhaseTypeFixedTerm,
		PhaseTypeEvergreen,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid phase type").
			WithHint(fmt.Sprintf("Phase type must be one of: %v", allowed)).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DurationUnit is the unit of a phase duration
type DurationUnit string

const (
	DurationUnitDays      DurationUnit = "DAYS"
	DurationUnitMonths    DurationUnit = "MONTHS"
	DurationUnitYears     DurationUnit = "YEARS"
	DurationUnitUnlimited DurationUnit = "UNLIMITED"
)

// DefaultPriceList is used when a specifier does not name one
const DefaultPriceList = "DEFAULT"
