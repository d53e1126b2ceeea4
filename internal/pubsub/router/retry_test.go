package router

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cockroachdb/errors"
	"github.com/flexprice/timeline/internal/config"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetry(maxRetries int) *Retry {
	return NewRetry(&config.EventConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		MaxElapsedTime:  time.Second,
	}, logger.NewNoopLogger())
}

func TestShouldRetry(t *testing.T) {
	log := logger.NewNoopLogger()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", errors.Wrap(context.Canceled, "apply"), false},
		{"version conflict", ierr.NewError("stale").Mark(ierr.ErrVersionConflict), true},
		{"database", ierr.NewError("conn reset").Mark(ierr.ErrDatabase), true},
		{"validation", ierr.NewError("bad").Mark(ierr.ErrValidation), false},
		{"not found", ierr.NewError("missing").Mark(ierr.ErrNotFound), false},
		{"cascade", ierr.NewError("cascade").Mark(ierr.ErrCascadeInconsistency), false},
		{"unknown", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRetry(log, tt.err))
		})
	}
}

func TestRetryMiddleware(t *testing.T) {
	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		h := testRetry(5).Middleware(func(msg *message.Message) ([]*message.Message, error) {
			calls++
			if calls < 3 {
				return nil, ierr.NewError("stale").Mark(ierr.ErrVersionConflict)
			}
			return nil, nil
		})

		_, err := h(message.NewMessage("1", nil))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		h := testRetry(5).Middleware(func(msg *message.Message) ([]*message.Message, error) {
			calls++
			return nil, ierr.NewError("bad").Mark(ierr.ErrValidation)
		})

		_, err := h(message.NewMessage("1", nil))
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		h := testRetry(2).Middleware(func(msg *message.Message) ([]*message.Message, error) {
			calls++
			return nil, errors.New("boom")
		})

		_, err := h(message.NewMessage("1", nil))
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}
