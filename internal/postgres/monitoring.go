package postgres

import (
	"context"

	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/sentry"
)

// SentryClient wraps a client with a sentry span per transaction
type SentryClient struct {
	client IClient
	sentry *sentry.Service
	logger *logger.Logger
}

// NewClient wraps db with sentry span tracking
func NewClient(db *DB, sentry *sentry.Service, logger *logger.Logger) IClient {
	return NewSentryClient(db, sentry, logger)
}

// NewSentryClient creates a new Sentry-instrumented Postgres client
func NewSentryClient(client IClient, sentry *sentry.Service, logger *logger.Logger) IClient {
	return &SentryClient{
		client: client,
		sentry: sentry,
		logger: logger,
	}
}

// WithTx wraps the given function in a transaction with Sentry span tracking
func (c *SentryClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	span, spanCtx := c.sentry.StartDBSpan(ctx, "postgres.transaction", map[string]interface{}{
		"operation": "transaction",
	})
	err := c.client.WithTx(spanCtx, fn)
	sentry.FinishSpan(span, err)
	return err
}
