package blocking

import (
	"fmt"
	"sort"
	"time"

	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/types"
)

// BlockingState is one record of the append-only blocking history of an
// entity for a service. A record never changes once written; a later record
// supersedes it.
type BlockingState struct {
	ID               string                  `db:"id" json:"id"`
	BlockedID        string                  `db:"blocked_id" json:"blocked_id"`
	Type             types.BlockingStateType `db:"type" json:"type"`
	Service          string                  `db:"service" json:"service"`
	StateName        string                  `db:"state_name" json:"state_name"`
	BlockChange      bool                    `db:"block_change" json:"block_change"`
	BlockEntitlement bool                    `db:"block_entitlement" json:"block_entitlement"`
	BlockBilling     bool                    `db:"block_billing" json:"block_billing"`
	EffectiveDate    time.Time               `db:"effective_date" json:"effective_date"`
	CreatedDate      time.Time               `db:"created_date" json:"created_date"`

	// TotalOrdering is the store assigned insertion sequence, zero for
	// synthetic records
	TotalOrdering int64 `db:"total_ordering" json:"total_ordering"`

	// IsSynthetic marks records derived from pending subscription
	// transitions. They are never persisted.
	IsSynthetic bool `db:"-" json:"is_synthetic"`
}

// Validate checks the record before it is appended
func (s *BlockingState) Validate() error {
	if s.BlockedID == "" || s.Service == "" || s.StateName == "" {
		return ierr.NewError("blocking state is incomplete").
			WithHint("Blocked id, service and state name are required").
			WithReportableDetails(map[string]any{
				"blocked_id": s.BlockedID,
				"service":    s.Service,
				"state_name": s.StateName,
			}).
			Mark(ierr.ErrValidation)
	}
	if s.EffectiveDate.IsZero() {
		return ierr.NewError("blocking state has no effective date").
			WithHint("Effective date is required").
			WithReportableDetails(map[string]any{
				"blocked_id": s.BlockedID,
			}).
			Mark(ierr.ErrValidation)
	}
	return s.Type.Validate()
}

// Flags returns the block flags of the record
func (s *BlockingState) Flags() Flags {
	return Flags{
		BlockChange:      s.BlockChange,
		BlockEntitlement: s.BlockEntitlement,
		BlockBilling:     s.BlockBilling,
	}
}

// Flags is the combined blocked status of an entity
type Flags struct {
	BlockChange      bool `json:"block_change"`
	BlockEntitlement bool `json:"block_entitlement"`
	BlockBilling     bool `json:"block_billing"`
}

// Or combines two flag sets; a flag set anywhere stays set
func (f Flags) Or(o Flags) Flags {
	return Flags{
		BlockChange:      f.BlockChange || o.BlockChange,
		BlockEntitlement: f.BlockEntitlement || o.BlockEntitlement,
		BlockBilling:     f.BlockBilling || o.BlockBilling,
	}
}

// Less orders records by blocked id, effective date, created date, then
// insertion sequence
func Less(a, b *BlockingState) bool {
	if a.BlockedID != b.BlockedID {
		return a.BlockedID < b.BlockedID
	}
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.Before(b.EffectiveDate)
	}
	if !a.CreatedDate.Equal(b.CreatedDate) {
		return a.CreatedDate.Before(b.CreatedDate)
	}
	return a.TotalOrdering < b.TotalOrdering
}

// Sort sorts records in place by Less
func Sort(states []*BlockingState) {
	sort.SliceStable(states, func(i, j int) bool {
		return Less(states[i], states[j])
	})
}

// SyntheticID is the identity of the synthetic cancellation of blockedID at
// effectiveDate. Deriving the same cancellation twice yields the same id.
func SyntheticID(blockedID string, effectiveDate time.Time) string {
	return fmt.Sprintf("synthetic_%s_%d", blockedID, effectiveDate.UnixMilli())
}
