package catalog

import (
	"sort"
	"time"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
)

// Catalog resolves plan specifiers into concrete plans at a point in time
type Catalog interface {
	FindPlan(productName string, billingPeriod types.BillingPeriod, priceList string, asOf time.Time) (*Plan, error)
	FindProduct(productName string, asOf time.Time) (*Product, error)
}

// Version is a catalog snapshot that applies from EffectiveDate onward
type Version struct {
	EffectiveDate time.Time
	Products      map[string]*Product
	Plans         []*Plan
}

// VersionedCatalog holds every catalog version ordered by effective date
type VersionedCatalog struct {
	versions []*Version
}

// NewVersionedCatalog builds a catalog from its versions. Versions are sorted
// by effective date; at least one is required.
func NewVersionedCatalog(versions ...*Version) (*VersionedCatalog, error) {
	if len(versions) == 0 {
		return nil, ierr.NewError("catalog has no versions").
			WithHint("A catalog needs at least one version").
			Mark(ierr.ErrValidation)
	}

	sorted := make([]*Version, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveDate.Before(sorted[j].EffectiveDate)
	})

	return &VersionedCatalog{versions: sorted}, nil
}

// versionAt returns the latest version effective at asOf. Dates before the
// first version resolve to the first version.
func (c *VersionedCatalog) versionAt(asOf time.Time) *Version {
	current := c.versions[0]
	for _, v := range c.versions[1:] {
		if v.EffectiveDate.After(asOf) {
			break
		}
		current = v
	}
	return current
}

func (c *VersionedCatalog) FindProduct(productName string, asOf time.Time) (*Product, error) {
	product, ok := c.versionAt(asOf).Products[productName]
	if !ok {
		return nil, ierr.NewError("product not found").
			WithHintf("Product %s does not exist in the catalog", productName).
			WithReportableDetails(map[string]any{
				"product_name": productName,
				"as_of":        asOf,
			}).
			Mark(ierr.ErrNotFound)
	}
	return product, nil
}

func (c *VersionedCatalog) FindPlan(productName string, billingPeriod types.BillingPeriod, priceList string, asOf time.Time) (*Plan, error) {
	if priceList == "" {
		priceList = types.DefaultPriceList
	}

	for _, plan := range c.versionAt(asOf).Plans {
		if plan.Product.Name == productName &&
			plan.BillingPeriod == billingPeriod &&
			plan.PriceList == priceList {
			return plan, nil
		}
	}

	return nil, ierr.NewError("plan not found").
		WithHintf("No plan for %s/%s in price list %s", productName, billingPeriod, priceList).
		WithReportableDetails(map[string]any{
			"product_name":   productName,
			"billing_period": billingPeriod,
			"price_list":     priceList,
			"as_of":          asOf,
		}).
		Mark(ierr.ErrNotFound)
}

// Resolve looks up the plan a specifier points at
func Resolve(c Catalog, spec PlanPhaseSpecifier, asOf time.Time) (*Plan, error) {
	return c.FindPlan(spec.ProductName, spec.BillingPeriod, spec.PriceListOrDefault(), asOf)
}
