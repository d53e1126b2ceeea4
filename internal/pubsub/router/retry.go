package router

import (
	"context"
	"net"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/flexprice/timeline/internal/config"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/flexprice/timeline/internal/logger"
)

// Retry re-runs a failing handler with exponential backoff. Errors that
// cannot succeed on a later attempt stop the loop immediately.
type Retry struct {
	config *config.EventConfig
	logger *logger.Logger
}

func NewRetry(cfg *config.EventConfig, logger *logger.Logger) *Retry {
	return &Retry{config: cfg, logger: logger}
}

func (r *Retry) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialInterval
	b.MaxInterval = r.config.MaxInterval
	b.Multiplier = r.config.Multiplier
	b.MaxElapsedTime = r.config.MaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Reset()

	var policy backoff.BackOff = b
	if r.config.MaxRetries >= 0 {
		policy = backoff.WithMaxRetries(policy, uint64(r.config.MaxRetries))
	}
	return backoff.WithContext(policy, ctx)
}

func (r *Retry) Middleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		var produced []*message.Message
		attempt := 0

		operation := func() error {
			var err error
			produced, err = h(msg)
			if err != nil && !shouldRetry(r.logger, err) {
				return backoff.Permanent(err)
			}
			return err
		}

		notify := func(err error, delay time.Duration) {
			attempt++
			r.logger.Infow("retrying message",
				"message_uuid", msg.UUID,
				"retry_number", attempt,
				"max_retries", r.config.MaxRetries,
				"delay", delay,
				"error", err,
			)
		}

		err := backoff.RetryNotify(operation, r.backOff(msg.Context()), notify)
		return produced, err
	}
}

func shouldRetry(logger *logger.Logger, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Debugw("retrying due to network timeout", "error", netErr)
		return true
	}

	// A stale view or a store failure can succeed on the next attempt
	if ierr.IsVersionConflict(err) || ierr.IsDatabase(err) {
		return true
	}

	// Business logic errors (don't retry)
	if ierr.IsValidation(err) ||
		ierr.IsNotFound(err) ||
		ierr.IsInvalidOperation(err) ||
		ierr.IsCascadeInconsistency(err) ||
		ierr.IsBlockedAction(err) {
		return false
	}

	return true
}
