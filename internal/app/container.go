// Package app wires the coordinator's components together and exposes the
// plan submission service the HTTP boundary calls into.
package app

import (
	"context"
	"database/sql"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	badgerdb "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"noesis-backend/internal/config"
	"noesis-backend/internal/gateway"
	"noesis-backend/internal/infrastructure/cache"
	"noesis-backend/internal/infrastructure/persistence/badger"
	dynamostore "noesis-backend/internal/infrastructure/persistence/dynamodb"
	"noesis-backend/internal/infrastructure/persistence/memory"
	"noesis-backend/internal/infrastructure/persistence/sqlite"
	"noesis-backend/internal/plans"
	"noesis-backend/internal/repository"
	"noesis-backend/internal/saga"
	"noesis-backend/internal/transform"
	"noesis-backend/pkg/observability"
)

// Container holds every wired component. Construction is explicit and
// ordered; there is no runtime registry.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector

	Cache       *cache.MemoryCache
	Invalidator *cache.Invalidator

	Stores      plans.Stores
	SagaLog     repository.SagaLogStore
	PlanStatus  repository.PlanStatusStore
	Gateway     *gateway.Gateway
	Engine      *transform.Engine
	Registry    *plans.Registry
	Coordinator *saga.Coordinator
	PlanService *PlanService

	sqliteDB    *sql.DB
	badgerDB    *badgerdb.DB
	stopCleanup []func()
}

// NewContainer wires the full application for the configured backend.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewCollector("noesis"),
	}

	c.Cache = cache.NewMemoryCache(cfg.Cache.MaxItems, int64(cfg.Cache.MaxMemoryMB)*1024*1024, logger)
	c.stopCleanup = append(c.stopCleanup, c.Cache.StartCleanup(cfg.Cache.CleanupInterval))
	c.Invalidator = cache.NewInvalidator(c.Cache, logger)

	if err := c.wireStores(ctx); err != nil {
		c.Close()
		return nil, err
	}

	statusStore := memory.NewPlanStatusStore(cfg.Plans.StatusTTL)
	c.stopCleanup = append(c.stopCleanup, statusStore.StartCleanup(cfg.Cache.CleanupInterval))
	c.PlanStatus = statusStore

	provider, err := c.buildProvider()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Gateway = gateway.New(provider, c.Cache, gateway.Config{
		ConsecutiveFailures: cfg.Gateway.BreakerConsecutiveFailures,
		OpenTimeout:         cfg.Gateway.BreakerOpenTimeout,
		HalfOpenRequests:    cfg.Gateway.BreakerHalfOpenRequests,
		CacheTTL:            cfg.Gateway.ResponseCacheTTL,
	}, c.Metrics, logger)

	c.Engine = transform.NewEngine(c.Gateway, logger)
	c.Registry = plans.NewRegistry(c.Stores, c.Engine, c.Cache)

	retry := repository.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Saga.RetryMaxAttempts
	retry.BaseDelay = cfg.Saga.RetryBaseDelay
	c.Coordinator = saga.NewCoordinator(c.SagaLog, saga.NewConceptLocks(), c.Invalidator, saga.Config{
		StoreTimeout:        cfg.Saga.StoreTimeout,
		ReasoningTimeout:    cfg.Saga.ReasoningTimeout,
		CompensationTimeout: cfg.Saga.CompensationTimeout,
		Retry:               retry,
	}, c.Metrics, logger)

	c.PlanService = NewPlanService(c.Coordinator, c.PlanStatus, c.Metrics, logger)

	logger.Info("container wired",
		zap.String("backend", cfg.Stores.Backend),
		zap.String("provider", provider.Name()),
	)
	return c, nil
}

func (c *Container) wireStores(ctx context.Context) error {
	switch c.Config.Stores.Backend {
	case "memory":
		c.Stores = plans.Stores{
			Concepts: memory.NewConceptStore(),
			Graph:    memory.NewGraphStore(),
			Theses:   memory.NewThesisStore(),
		}
		c.SagaLog = memory.NewSagaLogStore()
		return nil

	case "durable":
		db, err := sqlite.Open(c.Config.Stores.SQLitePath)
		if err != nil {
			return err
		}
		c.sqliteDB = db

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Config.Stores.AWSRegion))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		dynamoClient := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if endpoint := c.Config.Stores.DynamoDBEndpoint; endpoint != "" {
				o.BaseEndpoint = awssdk.String(endpoint)
			}
		})

		docDB, err := badger.Open(c.Config.Stores.BadgerPath, c.Logger)
		if err != nil {
			return err
		}
		c.badgerDB = docDB

		c.Stores = plans.Stores{
			Concepts: sqlite.NewConceptStore(db, c.Logger),
			Graph:    dynamostore.NewGraphStore(dynamoClient, c.Config.Stores.DynamoDBTable, c.Logger),
			Theses:   badger.NewThesisStore(docDB, c.Logger),
		}
		c.SagaLog = sqlite.NewSagaLogStore(db, c.Logger)
		return nil

	default:
		return fmt.Errorf("unknown store backend %q", c.Config.Stores.Backend)
	}
}

func (c *Container) buildProvider() (gateway.Provider, error) {
	switch c.Config.Gateway.Provider {
	case "mock":
		return gateway.NewMockProvider(), nil
	case "openai":
		return gateway.NewOpenAIProvider(c.Config.Gateway.OpenAIKey, c.Config.Gateway.OpenAIModel, c.Logger), nil
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", c.Config.Gateway.Provider)
	}
}

// Recover unwinds plans the saga log shows as interrupted. Call before
// serving traffic.
func (c *Container) Recover(ctx context.Context) error {
	return c.Coordinator.Recover(ctx, c.Registry)
}

// Close releases every resource the container owns.
func (c *Container) Close() {
	for _, stop := range c.stopCleanup {
		stop()
	}
	if c.sqliteDB != nil {
		if err := c.sqliteDB.Close(); err != nil {
			c.Logger.Warn("failed to close sqlite database", zap.Error(err))
		}
	}
	if c.badgerDB != nil {
		if err := c.badgerDB.Close(); err != nil {
			c.Logger.Warn("failed to close badger database", zap.Error(err))
		}
	}
}
