package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/RezaEskandarii/quirrel/app"
	"github.com/RezaEskandarii/quirrel/internal/db"
	"github.com/RezaEskandarii/quirrel/types/config"
	"github.com/RezaEskandarii/quirrel/web"
	"golang.org/x/sync/errgroup"
)

// Engine is a running Quirrel instance.
type Engine struct {
	*app.Container

	group *errgroup.Group
	stop  context.CancelFunc
}

// New initializes the whole scheduling and delivery system from cfg.
//
// The function performs the following steps:
//  1. Connects to the storage backend selected by cfg.StorageDriver (Postgres, Redis or memory).
//  2. Runs schema and migration setup if PostgreSQL is used (protected by a distributed lock).
//  3. Starts the delivery dispatcher for timer jobs.
//  4. Launches the admin API when serveAdmin is set.
//
// A store that cannot be reached fails New with custom_errors.ErrRegistryUnavailable.
func New(ctx context.Context, cfg *config.QuirrelConfig, serveAdmin bool, opts ...app.ContainerOption) (*Engine, error) {
	c, err := app.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Str("storage", cfg.StorageDriver.String()).Msg("booting")

	// ---------------------------------------------------------------------------------------------
	// Initialize database with the migration lock (schema setup is run by one instance at a time)
	// ---------------------------------------------------------------------------------------------
	if cfg.StorageDriver == config.Postgres {
		conn, err := c.Connector.Postgres(ctx)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		if err := db.Init(ctx, conn, c.LockManager, cfg.CronEnabled(), c.Logger); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("init database: %w", err)
		}
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(runCtx)
	e := &Engine{Container: c, group: group, stop: stop}

	// ---------------------------------------------------------------------------------------------
	// Start the dispatcher draining due timer jobs
	// ---------------------------------------------------------------------------------------------
	group.Go(func() error {
		if err := c.Dispatcher.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// ---------------------------------------------------------------------------------------------
	// Start the admin API
	// ---------------------------------------------------------------------------------------------
	if serveAdmin {
		router := web.NewRouteHandler(c.JobManager, c.EnqueuedJobStore, cfg.Passphrases, cfg.Addr(),
			c.Logger.With().Str("component", "web").Logger())
		group.Go(func() error {
			return router.Serve(groupCtx)
		})
	}

	c.Logger.Info().
		Str("storage", cfg.StorageDriver.String()).
		Bool("cron", cfg.CronEnabled()).
		Bool("production", cfg.Production).
		Msg("quirrel started")
	return e, nil
}

// Wait blocks until a background service fails or the engine is stopped.
func (e *Engine) Wait() error {
	return e.group.Wait()
}

// Shutdown removes every job this instance registered, stops background services and
// closes the store. It returns the number of removed jobs.
func (e *Engine) Shutdown(ctx context.Context) (int, error) {
	removed := e.JobManager.Shutdown(ctx)
	e.stop()
	err := e.group.Wait()
	if closeErr := e.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return removed, err
}
