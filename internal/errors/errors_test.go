package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSpecific = NewSentinel("specific_code", "specific failure")

func TestBuilderMarks(t *testing.T) {
	err := NewError("view is stale").
		WithHint("Refetch the bundle timeline").
		WithMark(errSpecific).
		Mark(ErrVersionConflict)

	assert.True(t, IsVersionConflict(err))
	assert.True(t, Is(err, errSpecific))
	assert.False(t, IsValidation(err))
	assert.Equal(t, ErrCodeVersionConflict, Code(err))
	assert.Equal(t, "Refetch the bundle timeline", DisplayMessage(err))
}

func TestDetails(t *testing.T) {
	err := NewError("missing").
		WithReportableDetails(map[string]any{"bundle_id": "bun_1"}).
		WithReportableDetails(map[string]any{"event_id": "evt_1"}).
		Mark(ErrNotFound)

	details := Details(err)
	assert.Equal(t, "bun_1", details["bundle_id"])
	assert.Equal(t, "evt_1", details["event_id"])
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", NewError("x").Mark(ErrValidation), ErrCodeValidation},
		{"cascade", NewError("x").Mark(ErrCascadeInconsistency), ErrCodeCascadeInconsistency},
		{"wrapped", WithError(NewError("x").Mark(ErrNotFound)).WithHint("h").Mark(ErrDatabase), ErrCodeNotFound},
		{"unknown", NewError("x").Error(), ErrCodeSystemError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}
