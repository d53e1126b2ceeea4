package catalog

import (
	"testing"
	"time"

	"github.com/flexprice/timeline/internal/cache"
	"github.com/flexprice/timeline/internal/config"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func loadTestCatalog(t *testing.T) *VersionedCatalog {
	t.Helper()
	c, err := LoadYAML("testdata/catalog.yaml")
	require.NoError(t, err)
	return c
}

func TestFindPlanByVersion(t *testing.T) {
	c := loadTestCatalog(t)

	tests := []struct {
		name     string
		asOf     time.Time
		wantPlan string
	}{
		{"before first version falls back to first", date(2010, 6, 1), "shotgun-monthly"},
		{"first version", date(2011, 6, 1), "shotgun-monthly"},
		{"second version", date(2012, 1, 1), "shotgun-monthly-v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := c.FindPlan("Shotgun", types.BillingPeriodMonthly, "", tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlan, plan.Name)
			assert.Equal(t, types.DefaultPriceList, plan.PriceList)
		})
	}
}

func TestFindPlanNotFound(t *testing.T) {
	c := loadTestCatalog(t)

	_, err := c.FindPlan("Shotgun", types.BillingPeriodAnnual, types.DefaultPriceList, date(2011, 6, 1))
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
	assert.Equal(t, "Shotgun", ierr.Details(err)["product_name"])

	_, err = c.FindProduct("Assault-Rifle", date(2012, 6, 1))
	assert.True(t, ierr.IsNotFound(err))
}

func TestAddonRules(t *testing.T) {
	c := loadTestCatalog(t)
	asOf := date(2011, 6, 1)

	shotgun, err := c.FindProduct("Shotgun", asOf)
	require.NoError(t, err)
	rifle, err := c.FindProduct("Assault-Rifle", asOf)
	require.NoError(t, err)

	assert.True(t, shotgun.IsAddonAvailable("Telescopic-Scope"))
	assert.False(t, shotgun.IsAddonIncluded("Telescopic-Scope"))
	assert.True(t, rifle.IsAddonIncluded("Telescopic-Scope"))
	assert.False(t, rifle.IsAddonAvailable("Telescopic-Scope"))

	var missing *Product
	assert.False(t, missing.IsAddonAvailable("Telescopic-Scope"))
	assert.False(t, missing.IsAddonIncluded("Telescopic-Scope"))
}

func TestPhases(t *testing.T) {
	c := loadTestCatalog(t)
	plan, err := c.FindPlan("Shotgun", types.BillingPeriodMonthly, "", date(2011, 6, 1))
	require.NoError(t, err)

	initial := plan.InitialPhase()
	assert.Equal(t, types.PhaseTypeTrial, initial.Type)
	assert.Equal(t, date(2011, 7, 1), initial.Duration.AddTo(date(2011, 6, 1)))

	next, ok := plan.NextPhase(types.PhaseTypeTrial)
	require.True(t, ok)
	assert.Equal(t, types.PhaseTypeEvergreen, next.Type)
	assert.True(t, next.Duration.IsUnlimited())

	_, ok = plan.NextPhase(types.PhaseTypeEvergreen)
	assert.False(t, ok)

	_, err = plan.FindPhase(types.PhaseTypeDiscount)
	assert.True(t, ierr.IsNotFound(err))
}

func TestParseYAMLRejectsUnknownProduct(t *testing.T) {
	_, err := ParseYAML([]byte(`
versions:
  - effective_date: 2011-01-01T00:00:00Z
    products:
      - name: Shotgun
        category: BASE
    plans:
      - name: pistol-monthly
        product: Pistol
        billing_period: MONTHLY
`))
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	_, err = ParseYAML([]byte(`versions: []`))
	assert.True(t, ierr.IsValidation(err))
}

type countingCatalog struct {
	Catalog
	planCalls int
}

func (c *countingCatalog) FindPlan(productName string, billingPeriod types.BillingPeriod, priceList string, asOf time.Time) (*Plan, error) {
	c.planCalls++
	return c.Catalog.FindPlan(productName, billingPeriod, priceList, asOf)
}

func TestCachedCatalog(t *testing.T) {
	counting := &countingCatalog{Catalog: loadTestCatalog(t)}
	c := NewCachedCatalog(counting, cache.NewInMemoryCache(config.GetDefaultConfig(), logger.NewNoopLogger()))

	for i := 0; i < 3; i++ {
		plan, err := c.FindPlan("Shotgun", types.BillingPeriodMonthly, types.DefaultPriceList, date(2011, 6, 1))
		require.NoError(t, err)
		assert.Equal(t, "shotgun-monthly", plan.Name)
	}
	assert.Equal(t, 1, counting.planCalls)

	_, err := c.FindPlan("Shotgun", types.BillingPeriodAnnual, types.DefaultPriceList, date(2011, 6, 1))
	assert.True(t, ierr.IsNotFound(err))

	product, err := c.FindProduct("Shotgun", date(2011, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, types.ProductCategoryBase, product.Category)
}
