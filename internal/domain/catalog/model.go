package catalog

import (
	"time"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
	"github.com/samber/lo"
)

// Product is a sellable product. Base products list the add-ons they bundle
// for free (Included) and the add-ons that may be bought on top (Available).
type Product struct {
	Name      string                `yaml:"name" json:"name"`
	Category  types.ProductCategory `yaml:"category" json:"category"`
	Included  []string              `yaml:"included" json:"included,omitempty"`
	Available []string              `yaml:"available" json:"available,omitempty"`
}

// IsAddonIncluded reports whether the add-on product is part of this product
func (p *Product) IsAddonIncluded(addon string) bool {
	return p != nil && lo.Contains(p.Included, addon)
}

// IsAddonAvailable reports whether the add-on product can be purchased on top
// of this product
func (p *Product) IsAddonAvailable(addon string) bool {
	return p != nil && lo.Contains(p.Available, addon)
}

// Duration is the length of a plan phase
type Duration struct {
	Unit   types.DurationUnit `yaml:"unit" json:"unit"`
	Number int                `yaml:"number" json:"number"`
}

// IsUnlimited reports whether the phase never ends on its own
func (d Duration) IsUnlimited() bool {
	return d.Unit == types.DurationUnitUnlimited || d.Unit == ""
}

// AddTo returns t shifted by the duration. Unlimited durations return t.
func (d Duration) AddTo(t time.Time) time.Time {
	switch d.Unit {
	case types.DurationUnitDays:
		return t.AddDate(0, 0, d.Number)
	case types.DurationUnitMonths:
		return t.AddDate(0, d.Number, 0)
	case types.DurationUnitYears:
		return t.AddDate(d.Number, 0, 0)
	default:
		return t
	}
}

// Phase is one step of a plan
type Phase struct {
	Type     types.PhaseType `yaml:"type" json:"type"`
	Duration Duration        `yaml:"duration" json:"duration"`
}

// Plan is a product sold at a billing period under a price list
type Plan struct {
	Name          string              `yaml:"name" json:"name"`
	Product       *Product            `yaml:"-" json:"product"`
	BillingPeriod types.BillingPeriod `yaml:"billing_period" json:"billing_period"`
	PriceList     string              `yaml:"price_list" json:"price_list"`
	Phases        []Phase             `yaml:"phases" json:"phases"`
}

// InitialPhase returns the phase a new subscription starts in
func (p *Plan) InitialPhase() Phase {
	if len(p.Phases) == 0 {
		return Phase{Type: types.PhaseTypeEvergreen}
	}
	return p.Phases[0]
}

// FindPhase returns the phase of the given type
func (p *Plan) FindPhase(phaseType types.PhaseType) (Phase, error) {
	phase, ok := lo.Find(p.Phases, func(ph Phase) bool {
		return ph.Type == phaseType
	})
	if !ok {
		return Phase{}, ierr.NewError("phase not found").
			WithHintf("Plan %s has no %s phase", p.Name, phaseType).
			WithReportableDetails(map[string]any{
				"plan":       p.Name,
				"phase_type": phaseType,
			}).
			Mark(ierr.ErrNotFound)
	}
	return phase, nil
}

// NextPhase returns the phase following phaseType, if any
func (p *Plan) NextPhase(phaseType types.PhaseType) (Phase, bool) {
	_, idx, ok := lo.FindIndexOf(p.Phases, func(ph Phase) bool {
		return ph.Type == phaseType
	})
	if !ok || idx+1 >= len(p.Phases) {
		return Phase{}, false
	}
	return p.Phases[idx+1], true
}

// PlanPhaseSpecifier identifies a plan (and optionally a phase) by what the
// customer asked for rather than by plan name
type PlanPhaseSpecifier struct {
	ProductName   string              `json:"product_name" db:"product_name"`
	BillingPeriod types.BillingPeriod `json:"billing_period" db:"billing_period"`
	PriceList     string              `json:"price_list" db:"price_list"`
	PhaseType     types.PhaseType     `json:"phase_type,omitempty" db:"phase_type"`
}

// Validate checks that the specifier names a product and a billing period
func (s PlanPhaseSpecifier) Validate() error {
	if s.ProductName == "" {
		return ierr.NewError("product name is required").
			WithHint("A plan specifier must name a product").
			Mark(ierr.ErrValidation)
	}
	if err := s.BillingPeriod.Validate(); err != nil {
		return err
	}
	if s.PhaseType != "" {
		return s.PhaseType.Validate()
	}
	return nil
}

// PriceListOrDefault returns the price list, falling back to the default one
func (s PlanPhaseSpecifier) PriceListOrDefault() string {
	if s.PriceList == "" {
		return types.DefaultPriceList
	}
	return s.PriceList
}
