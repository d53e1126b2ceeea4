package service

import (
	"time"

	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
	"github.com/flexprice/timeline/internal/publisher"
	"github.com/flexprice/timeline/internal/sentry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Sentry *sentry.Service

	// Repositories
	BundleRepo        subscription.BundleRepository
	SubRepo           subscription.Repository
	EventRepo         subscription.EventRepository
	BlockingStateRepo blocking.Repository

	Catalog   catalog.Catalog
	Scheduler subscription.Scheduler

	// Publishers
	EventPublisher publisher.EventPublisher

	// Now is the clock every service reads. Tests pin it.
	Now func() time.Time
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	sentry *sentry.Service,
	bundleRepo subscription.BundleRepository,
	subRepo subscription.Repository,
	eventRepo subscription.EventRepository,
	blockingStateRepo blocking.Repository,
	cat catalog.Catalog,
	scheduler subscription.Scheduler,
	eventPublisher publisher.EventPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:            logger,
		Config:            config,
		DB:                db,
		Sentry:            sentry,
		BundleRepo:        bundleRepo,
		SubRepo:           subRepo,
		EventRepo:         eventRepo,
		BlockingStateRepo: blockingStateRepo,
		Catalog:           cat,
		Scheduler:         scheduler,
		EventPublisher:    eventPublisher,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}
