package testutil

import (
	"github.com/flexprice/timeline/internal/domain/catalog"
)

// Product names of the fixture catalog
const (
	ProductShotgun         = "Shotgun"
	ProductAssaultRifle    = "Assault-Rifle"
	ProductPistol          = "Pistol"
	ProductKnife           = "Knife"
	ProductTelescopicScope = "Telescopic-Scope"
	ProductLaserScope      = "Laser-Scope"
)

const catalogYAML = `
versions:
  - effective_date: 2020-01-01T00:00:00Z
    products:
      - name: Shotgun
        category: BASE
        available: [Telescopic-Scope, Laser-Scope]
      - name: Assault-Rifle
        category: BASE
        included: [Telescopic-Scope]
        available: [Laser-Scope]
      - name: Pistol
        category: BASE
        available: [Laser-Scope]
      - name: Knife
        category: STANDALONE
      - name: Telescopic-Scope
        category: ADD_ON
      - name: Laser-Scope
        category: ADD_ON
    plans:
      - name: shotgun-monthly
        product: Shotgun
        billing_period: MONTHLY
        phases:
          - type: TRIAL
            duration: {unit: DAYS, number: 30}
          - type: EVERGREEN
            duration: {unit: UNLIMITED}
      - name: shotgun-annual
        product: Shotgun
        billing_period: ANNUAL
        phases:
          - type: EVERGREEN
            duration: {unit: UNLIMITED}
      - name: assault-rifle-monthly
        product: Assault-Rifle
        billing_period: MONTHLY
        phases:
          - type: EVERGREEN
            duration: {unit: UNLIMITED}
      - name: pistol-monthly
        product: Pistol
        billing_period: MONTHLY
        phases:
          - type: EVERGREEN
            duration: {unit: UNLIMITED}
      - name: knife-monthly
        product: Knife
        billing_period: MONTHLY
        phases:
          - type: EVERGREEN
            duration: {unit: UNLIMITED}
      - name: telescopic-scope-monthly
        product: Telescopic-Scope
        billing_period: MONTHLY
        phases:
          - type: DISCOUNT
            duration: {unit: MONTHS, number: 1}
          - type: EVERGREEN
            duration: {unit: UNLIMITED}
      - name: laser-scope-monthly
        product: Laser-Scope
        billing_period: MONTHLY
        phases:
          - type: EVERGREEN
            duration: {unit: UNLIMITED}
`

// NewTestCatalog returns the fixture catalog. Shotgun offers both scopes,
// Assault-Rifle includes the telescopic one and Pistol only offers the laser.
func NewTestCatalog() *catalog.VersionedCatalog {
	c, err := catalog.ParseYAML([]byte(catalogYAML))
	if err != nil {
		panic(err)
	}
	return c
}
