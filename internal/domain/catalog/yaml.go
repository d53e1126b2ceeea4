package catalog

import (
	"os"
	"time"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"gopkg.in/yaml.v3"
)

type yamlCatalog struct {
	Versions []yamlVersion `yaml:"versions"`
}

type yamlVersion struct {
	EffectiveDate time.Time  `yaml:"effective_date"`
	Products      []Product  `yaml:"products"`
	Plans         []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	Plan    `yaml:",inline"`
	Product string `yaml:"product"`
}

// LoadYAML reads a catalog file from disk
func LoadYAML(path string) (*VersionedCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Could not read catalog file %s", path).
			Mark(ierr.ErrNotFound)
	}
	return ParseYAML(data)
}

// ParseYAML builds a catalog from its YAML representation
func ParseYAML(data []byte) (*VersionedCatalog, error) {
	var raw yamlCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Catalog file is not valid YAML").
			Mark(ierr.ErrValidation)
	}

	versions := make([]*Version, 0, len(raw.Versions))
	for _, rv := range raw.Versions {
		v, err := rv.toVersion()
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}

	return NewVersionedCatalog(versions...)
}

func (rv yamlVersion) toVersion() (*Version, error) {
	v := &Version{
		EffectiveDate: rv.EffectiveDate,
		Products:      make(map[string]*Product, len(rv.Products)),
		Plans:         make([]*Plan, 0, len(rv.Plans)),
	}

	for i := range rv.Products {
		product := rv.Products[i]
		if err := product.Category.Validate(); err != nil {
			return nil, err
		}
		v.Products[product.Name] = &product
	}

	for _, rp := range rv.Plans {
		product, ok := v.Products[rp.Product]
		if !ok {
			return nil, ierr.NewError("plan references unknown product").
				WithHintf("Plan %s references product %s which is not declared", rp.Name, rp.Product).
				WithReportableDetails(map[string]any{
					"plan":    rp.Name,
					"product": rp.Product,
				}).
				Mark(ierr.ErrValidation)
		}

		plan := rp.Plan
		plan.Product = product
		if plan.PriceList == "" {
			plan.PriceList = types.DefaultPriceList
		}
		if err := plan.BillingPeriod.Validate(); err != nil {
			return nil, err
		}
		v.Plans = append(v.Plans, &plan)
	}

	return v, nil
}
