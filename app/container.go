package app

import (
	"context"
	"fmt"

	"github.com/RezaEskandarii/quirrel/client"
	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/internal/lock"
	"github.com/RezaEskandarii/quirrel/internal/store"
	"github.com/RezaEskandarii/quirrel/internal/store/memory"
	"github.com/RezaEskandarii/quirrel/internal/store/postgres"
	redisstore "github.com/RezaEskandarii/quirrel/internal/store/redis"
	"github.com/RezaEskandarii/quirrel/pgk/encryption"
	"github.com/RezaEskandarii/quirrel/pgk/logx"
	"github.com/RezaEskandarii/quirrel/pgk/schedule"
	"github.com/RezaEskandarii/quirrel/responder"
	"github.com/RezaEskandarii/quirrel/types/config"
	"github.com/rs/zerolog"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config    *config.QuirrelConfig
	Connector *Connector
	Logger    zerolog.Logger

	// Encryptor is nil when no secret is configured; payloads are then stored as JSON.
	Encryptor *encryption.Encryptor
	Deliverer *client.HTTPDeliverer

	// Stores (implement interfaces for testability)
	EnqueuedJobStore store.EnqueuedJobStore
	CronJobStore     store.CronJobStore
	LockManager      lock.DistributedLockManager

	Registry   *client.Registry
	Dispatcher *client.DeliveryDispatcher
	JobManager *client.JobManager
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.QuirrelConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	logger := logx.New(logx.Config{Level: cfg.LogLevel, Console: cfg.LogConsole}, nil).
		With().Str("instance", cfg.Instance).Logger()
	if opt.logger != nil {
		logger = *opt.logger
	}

	c := &Container{
		Config:    cfg,
		Connector: NewConnector(cfg.PostgresConfig.ConnectionUrl, cfg.RedisConfig.URL),
		Logger:    logger,
		Deliverer: client.NewHTTPDeliverer(opt.httpClient, logger.With().Str("component", "deliverer").Logger()),
	}
	if opt.db != nil {
		c.Connector.setPostgres(opt.db)
	}
	if opt.redis != nil {
		c.Connector.setRedis(opt.redis)
	}

	if cfg.EncryptionSecret != "" {
		enc, err := encryption.New(cfg.EncryptionSecret, cfg.OldSecrets)
		if err != nil {
			return nil, fmt.Errorf("init encryption: %w", err)
		}
		c.Encryptor = enc
	}

	if err := c.createStores(ctx); err != nil {
		return nil, custom_errors.Unavailable("init storage", err)
	}

	c.Registry = client.NewRegistry(
		c.CronJobStore,
		c.EnqueuedJobStore,
		c.Deliverer,
		cfg.Instance,
		cfg.Token,
		client.WithPageSize(cfg.BatchSize),
		client.WithRegistryLogger(logger.With().Str("component", "registry").Logger()),
	)
	c.Dispatcher = client.NewDeliveryDispatcher(
		c.EnqueuedJobStore,
		c.LockManager,
		c.Deliverer,
		cfg.Instance,
		cfg.Token,
		client.DispatcherConfig{
			PollInterval:  cfg.PollInterval,
			WorkerCount:   cfg.WorkerCount,
			BatchSize:     cfg.BatchSize,
			RatePerSecond: cfg.RatePerSecond,
		},
		logger.With().Str("component", "dispatcher").Logger(),
	)
	c.JobManager = client.NewJobManager(c.Registry, cfg.BaseURL(), c.encrypter(), logger)
	return c, nil
}

// encrypter keeps a nil Encryptor from turning into a non-nil interface.
func (c *Container) encrypter() schedule.Encrypter {
	if c.Encryptor == nil {
		return nil
	}
	return c.Encryptor
}

// createStores builds the backend selected by cfg.StorageDriver.
func (c *Container) createStores(ctx context.Context) error {
	cfg := c.Config
	switch cfg.StorageDriver {
	case config.Postgres:
		db, err := c.Connector.Postgres(ctx)
		if err != nil {
			return err
		}
		c.EnqueuedJobStore = postgres.NewPostgresEnqueuedJobStore(db)
		c.LockManager = lock.NewPostgresDistributedLockManager(db)
		if cfg.CronEnabled() {
			c.CronJobStore = postgres.NewPostgresCronJobStore(db)
		} else {
			c.CronJobStore = store.UnsupportedCronJobStore{}
		}

	case config.Redis:
		rdb, err := c.Connector.Redis(ctx)
		if err != nil {
			return err
		}
		c.EnqueuedJobStore = redisstore.NewRedisEnqueuedJobStore(rdb, cfg.RedisConfig.Prefix)
		c.LockManager = lock.NewRedisDistributedLockManager(rdb, cfg.RedisConfig.Prefix)
		c.CronJobStore = store.UnsupportedCronJobStore{}

	case config.Memory:
		c.EnqueuedJobStore = memory.NewMemoryEnqueuedJobStore()
		c.LockManager = lock.NewLocalLockManager()
		var runner memory.ActionRunner
		if cfg.CronEnabled() {
			runner = c.Deliverer
		}
		c.CronJobStore = memory.NewMemoryCronJobStore(runner, c.Logger.With().Str("component", "cron").Logger())

	default:
		return fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
	}
	return nil
}

// Responder builds a responder for route sharing the container's token, secrets and
// production mode.
func (c *Container) Responder(route string, handler responder.Handler) (*responder.Responder, error) {
	opts := []responder.Option{
		responder.WithProduction(c.Config.Production),
		responder.WithToken(c.Config.Token),
		responder.WithLogger(c.Logger.With().Str("component", "responder").Logger()),
	}
	if c.Encryptor != nil {
		opts = append(opts, responder.WithDecrypter(c.Encryptor))
	}
	return responder.New(route, handler, opts...)
}

// Close stops background work and releases connections. The SQL and Redis stores share
// the connector's handles, so only the connector closes them.
func (c *Container) Close() error {
	if c.Config.StorageDriver == config.Memory {
		return c.CronJobStore.Close()
	}
	return c.Connector.Close()
}
