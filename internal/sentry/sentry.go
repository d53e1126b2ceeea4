package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
)

type Service struct {
	cfg    *config.Configuration
	logger *logger.Logger
}

// Module provides fx options for Sentry
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewSentryService),
		fx.Invoke(RegisterHooks),
	)
}

// RegisterHooks initializes the sentry client on start and flushes it on stop
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !svc.cfg.Sentry.Enabled {
				svc.logger.Info("Sentry is disabled")
				return nil
			}

			err := sentry.Init(sentry.ClientOptions{
				Dsn:              svc.cfg.Sentry.DSN,
				Environment:      svc.cfg.Sentry.Environment,
				EnableTracing:    true,
				TracesSampleRate: svc.cfg.Sentry.SampleRate,
			})
			if err != nil {
				svc.logger.Errorw("failed to initialize sentry", "error", err)
				return err
			}
			svc.logger.Infow("sentry initialized",
				"environment", svc.cfg.Sentry.Environment,
				"sample_rate", svc.cfg.Sentry.SampleRate,
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if svc.cfg.Sentry.Enabled {
				svc.logger.Info("flushing sentry events before shutdown")
				sentry.Flush(2 * time.Second)
			}
			return nil
		},
	})
}

// NewSentryService creates a new Sentry service
func NewSentryService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Service) enabled() bool {
	return s != nil && s.cfg != nil && s.cfg.Sentry.Enabled
}

// CaptureException captures an error in Sentry
func (s *Service) CaptureException(err error) {
	if !s.enabled() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// AddBreadcrumb adds a breadcrumb to the current scope
func (s *Service) AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !s.enabled() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
		Data:     data,
	})
}

// Flush waits for queued events to be sent
func (s *Service) Flush(timeout uint) bool {
	if !s.enabled() {
		return true
	}
	return sentry.Flush(time.Duration(timeout) * time.Second)
}

func (s *Service) startSpan(ctx context.Context, operation, op string, params map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.enabled() {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, operation)
	span.Description = operation
	span.Op = op
	for k, v := range params {
		span.SetData(k, v)
	}
	return span, span.Context()
}

// StartDBSpan starts a new database span in the current transaction
func (s *Service) StartDBSpan(ctx context.Context, operation string, params map[string]interface{}) (*sentry.Span, context.Context) {
	return s.startSpan(ctx, operation, "db.postgres", params)
}

// StartRepairSpan tracks a single bundle repair, dry runs included
func (s *Service) StartRepairSpan(ctx context.Context, bundleID string, dryRun bool) (*sentry.Span, context.Context) {
	return s.startSpan(ctx, "timeline.repair", "timeline.repair", map[string]interface{}{
		"bundle_id": bundleID,
		"dry_run":   dryRun,
	})
}

// StartConsumerSpan starts a new span for a consumed message
func (s *Service) StartConsumerSpan(ctx context.Context, topic string) (*sentry.Span, context.Context) {
	span, ctx := s.startSpan(ctx, "pubsub.consume."+topic, "pubsub.consume", map[string]interface{}{
		"topic": topic,
	})
	if span != nil {
		span.Description = "Consuming message from " + topic
	}
	return span, ctx
}

// MonitorTransitionLag records how late a due transition was applied
func (s *Service) MonitorTransitionLag(ctx context.Context, effectiveDate, now time.Time, metadata map[string]interface{}) (*sentry.Span, context.Context) {
	span, ctx := s.startSpan(ctx, "transition.apply", "transition.apply", metadata)
	if span == nil {
		return nil, ctx
	}

	lag := now.Sub(effectiveDate)
	span.SetData("lag_ms", lag.Milliseconds())

	if tx := sentry.TransactionFromContext(ctx); tx != nil {
		tx.SetTag("transition.lag.ms", fmt.Sprintf("%d", lag.Milliseconds()))
		switch {
		case lag >= time.Hour:
			tx.SetTag("transition.lag.severity", "critical")
		case lag >= 5*time.Minute:
			tx.SetTag("transition.lag.severity", "warning")
		default:
			tx.SetTag("transition.lag.severity", "normal")
		}
	}
	return span, ctx
}

// StartTransaction creates a new transaction or returns an existing one from context
func (s *Service) StartTransaction(ctx context.Context, name string, options ...sentry.SpanOption) (*sentry.Span, context.Context) {
	if !s.enabled() {
		return nil, ctx
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
		ctx = sentry.SetHubOnContext(ctx, hub)
	}

	opts := append([]sentry.SpanOption{
		sentry.WithOpName(name),
		sentry.WithTransactionSource(sentry.SourceCustom),
	}, options...)

	transaction := sentry.StartTransaction(ctx, name, opts...)
	return transaction, transaction.Context()
}

// FinishSpan safely finishes a span, handling nil spans
func FinishSpan(span *sentry.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("error", err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Finish()
}
