package main

import (
	"context"
	"time"

	"github.com/flexprice/timeline/internal/cache"
	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/kafka"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
	"github.com/flexprice/timeline/internal/publisher"
	"github.com/flexprice/timeline/internal/pubsub"
	kafkaPubSub "github.com/flexprice/timeline/internal/pubsub/kafka"
	memoryPubSub "github.com/flexprice/timeline/internal/pubsub/memory"
	pubsubRouter "github.com/flexprice/timeline/internal/pubsub/router"
	"github.com/flexprice/timeline/internal/repository"
	"github.com/flexprice/timeline/internal/sentry"
	"github.com/flexprice/timeline/internal/service"
	"github.com/flexprice/timeline/internal/temporal"
	"github.com/flexprice/timeline/internal/types"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// Initialize Fx application
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,

			// Cache
			provideCache,

			// Postgres
			postgres.NewDB,
			postgres.NewClient,

			// Catalog
			provideCatalog,

			// Producers and Consumers
			providePubSub,

			// Event Publisher
			publisher.NewEventPublisher,

			// Repositories
			repository.NewBundleRepository,
			repository.NewSubscriptionRepository,
			repository.NewEventRepository,
			repository.NewBlockingStateRepository,

			// PubSub
			provideRouter,

			// Temporal
			temporal.NewTemporalClient,
			provideScheduler,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewSubscriptionService,
			service.NewRepairService,
			service.NewBlockingService,
			service.NewTransitionService,
		),
	)

	opts = append(opts,
		fx.Invoke(
			sentry.RegisterHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache(cfg *config.Configuration, log *logger.Logger) cache.Cache {
	return cache.NewInMemoryCache(cfg, log)
}

func provideCatalog(cfg *config.Configuration, c cache.Cache, log *logger.Logger) (catalog.Catalog, error) {
	versioned, err := catalog.LoadYAML(cfg.Catalog.Path)
	if err != nil {
		log.Errorw("failed to load catalog", "path", cfg.Catalog.Path, "error", err)
		return nil, err
	}
	log.Infow("loaded catalog", "path", cfg.Catalog.Path)
	return catalog.NewCachedCatalog(versioned, c), nil
}

func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	var ps pubsub.PubSub
	switch cfg.Event.PubSub {
	case types.KafkaPubSub:
		producer, err := kafka.NewProducer(cfg, log)
		if err != nil {
			return nil, err
		}
		consumer, err := kafka.NewConsumer(cfg, log)
		if err != nil {
			return nil, err
		}
		ps = kafkaPubSub.NewPubSub(log, producer, consumer)
	default:
		ps = memoryPubSub.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func provideRouter(cfg *config.Configuration, log *logger.Logger, sentryService *sentry.Service, ps pubsub.PubSub) (*pubsubRouter.Router, error) {
	return pubsubRouter.NewRouter(cfg, log, sentryService, ps)
}

func provideScheduler(lc fx.Lifecycle, client *temporal.TemporalClient, cfg *config.Configuration, log *logger.Logger) subscription.Scheduler {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			client.Close()
			return nil
		},
	})
	return temporal.NewTemporalScheduler(client, cfg, log)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	temporalClient *temporal.TemporalClient,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	eventPublisher publisher.EventPublisher,
	transitionService service.TransitionService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startMessageRouter(lc, router, ps, transitionService, log)
		startTemporalWorker(lc, temporalClient, cfg, eventPublisher, log)
	case types.ModeConsumer:
		startMessageRouter(lc, router, ps, transitionService, log)
	case types.ModeTemporalWorker:
		startTemporalWorker(lc, temporalClient, cfg, eventPublisher, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startTemporalWorker(
	lc fx.Lifecycle,
	temporalClient *temporal.TemporalClient,
	cfg *config.Configuration,
	eventPublisher publisher.EventPublisher,
	log *logger.Logger,
) {
	worker := temporal.NewWorker(temporalClient, cfg, eventPublisher, log)
	worker.RegisterWithLifecycle(lc)
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	subscriber pubsub.Subscriber,
	transitionService service.TransitionService,
	logger *logger.Logger,
) {
	// Register handlers before starting the router
	transitionService.RegisterHandler(router, subscriber)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting message router")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping message router")
			return router.Close()
		},
	})
}
