package testutil

import (
	"context"
	"time"

	"github.com/flexprice/timeline/internal/config"
	"github.com/flexprice/timeline/internal/domain/blocking"
	"github.com/flexprice/timeline/internal/domain/catalog"
	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/postgres"
	"github.com/flexprice/timeline/internal/types"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	BundleRepo        subscription.BundleRepository
	SubscriptionRepo  subscription.Repository
	EventRepo         subscription.EventRepository
	BlockingStateRepo blocking.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	catalog   catalog.Catalog
	scheduler *InMemoryScheduler
	publisher *InMemoryPublisherService
	db        postgres.IClient
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()
	s.config.Logging.Level = types.LogLevelError
	s.config.Repair.ScheduleInitialWait = time.Millisecond
	s.config.Repair.ScheduleMaxElapsed = 100 * time.Millisecond
	s.logger = logger.NewNoopLogger()
	s.catalog = NewTestCatalog()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.now = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	bundles := NewInMemoryBundleStore()
	subs := NewInMemorySubscriptionStore()
	s.stores = Stores{
		BundleRepo:        bundles,
		SubscriptionRepo:  subs,
		EventRepo:         NewInMemorySubscriptionEventStore(bundles, subs),
		BlockingStateRepo: NewInMemoryBlockingStateStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.scheduler = NewInMemoryScheduler()
	s.publisher = NewInMemoryEventPublisher()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.BundleRepo.(*InMemoryBundleStore).Clear()
	s.stores.SubscriptionRepo.(*InMemorySubscriptionStore).Clear()
	s.stores.EventRepo.(*InMemorySubscriptionEventStore).Clear()
	s.stores.BlockingStateRepo.(*InMemoryBlockingStateStore).Clear()
	s.scheduler.Clear()
	s.publisher.Clear()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetEventStore returns the in-memory event store, for fault injection
func (s *BaseServiceTestSuite) GetEventStore() *InMemorySubscriptionEventStore {
	return s.stores.EventRepo.(*InMemorySubscriptionEventStore)
}

// GetCatalog returns the fixture catalog
func (s *BaseServiceTestSuite) GetCatalog() catalog.Catalog {
	return s.catalog
}

// GetScheduler returns the recording scheduler
func (s *BaseServiceTestSuite) GetScheduler() *InMemoryScheduler {
	return s.scheduler
}

// GetPublisher returns the test event publisher
func (s *BaseServiceTestSuite) GetPublisher() *InMemoryPublisherService {
	return s.publisher
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// Now is the clock handed to services under test
func (s *BaseServiceTestSuite) Now() time.Time {
	return s.GetNow()
}

// SetNow moves the test clock
func (s *BaseServiceTestSuite) SetNow(t time.Time) {
	s.now = t
}

// AdvanceDays moves the test clock forward by n days
func (s *BaseServiceTestSuite) AdvanceDays(n int) {
	s.now = s.now.AddDate(0, 0, n)
}
