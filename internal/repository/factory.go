package repository

import (
	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
	postgresRepo "github.com/flexprice/timeline/internal/repository/postgres"
)

func NewBundleRepository(db *postgres.DB, logger *logger.Logger) subscription.BundleRepository {
	return postgresRepo.NewBundleRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewEventRepository(db *postgres.DB, logger *logger.Logger) subscription.EventRepository {
	return postgresRepo.NewEventRepository(db, logger)
}

func NewBlockingStateRepository(db *postgres.DB, logger *logger.Logger) blocking.Repository {
	return postgresRepo.NewBlockingStateRepository(db, logger)
}
