package catalog

import (
	"context"
	"time"

	"github.com/flexprice/timeline/internal/cache"
	"github.com/flexprice/timeline/internal/types"
)

// CachedCatalog memoizes lookups of an underlying catalog. Catalog versions
// are immutable, so entries are keyed by the version date they resolved to.
type CachedCatalog struct {
	delegate Catalog
	cache    cache.Cache
}

func NewCachedCatalog(delegate Catalog, c cache.Cache) *CachedCatalog {
	return &CachedCatalog{delegate: delegate, cache: c}
}

func (c *CachedCatalog) FindPlan(productName string, billingPeriod types.BillingPeriod, priceList string, asOf time.Time) (*Plan, error) {
	ctx := context.Background()
	key := cache.GenerateKey(cache.PrefixCatalogPlan, productName, billingPeriod, priceList, c.versionKey(asOf))

	if cached, found := c.cache.Get(ctx, key); found {
		if plan, ok := cached.(*Plan); ok {
			return plan, nil
		}
	}

	plan, err := c.delegate.FindPlan(productName, billingPeriod, priceList, asOf)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, plan, 0)
	return plan, nil
}

func (c *CachedCatalog) FindProduct(productName string, asOf time.Time) (*Product, error) {
	ctx := context.Background()
	key := cache.GenerateKey(cache.PrefixCatalogProduct, productName, c.versionKey(asOf))

	if cached, found := c.cache.Get(ctx, key); found {
		if product, ok := cached.(*Product); ok {
			return product, nil
		}
	}

	product, err := c.delegate.FindProduct(productName, asOf)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, product, 0)
	return product, nil
}

// versionKey collapses asOf to the effective date of the version serving it
// when the delegate is versioned, so lookups at different instants share entries
func (c *CachedCatalog) versionKey(asOf time.Time) int64 {
	if vc, ok := c.delegate.(*VersionedCatalog); ok {
		return vc.versionAt(asOf).EffectiveDate.UnixMilli()
	}
	return asOf.UnixMilli()
}
