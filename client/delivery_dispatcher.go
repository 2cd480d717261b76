package client

import (
	"context"
	"sync"
	"time"

	"github.com/RezaEskandarii/quirrel/internal/constants"
	"github.com/RezaEskandarii/quirrel/internal/lock"
	"github.com/RezaEskandarii/quirrel/internal/metrics"
	"github.com/RezaEskandarii/quirrel/internal/state"
	"github.com/RezaEskandarii/quirrel/internal/store"
	"github.com/RezaEskandarii/quirrel/pgk/signature"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type DispatcherConfig struct {
	PollInterval time.Duration
	WorkerCount  int
	BatchSize    int
	// RatePerSecond caps outbound deliveries of this instance. Zero means no cap.
	RatePerSecond float64
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// DeliveryDispatcher drains due timer jobs: it claims rows, delivers them on a bounded
// worker pool and records the outcome (next repetition, next retry step or removal).
type DeliveryDispatcher struct {
	store     store.EnqueuedJobStore
	lock      lock.DistributedLockManager
	deliverer Deliverer
	instance  string
	token     string
	config    DispatcherConfig
	limiter   *rate.Limiter
	gate      *routeGate
	logger    zerolog.Logger

	onResult func(types.JobResult)
}

func NewDeliveryDispatcher(jobStore store.EnqueuedJobStore, lock lock.DistributedLockManager, deliverer Deliverer, instance, token string, config DispatcherConfig, logger zerolog.Logger) *DeliveryDispatcher {
	config = config.withDefaults()
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), config.WorkerCount)
	}
	return &DeliveryDispatcher{
		store:     jobStore,
		lock:      lock,
		deliverer: deliverer,
		instance:  instance,
		token:     token,
		config:    config,
		limiter:   limiter,
		gate:      newRouteGate(),
		logger:    logger,
	}
}

// Start polls until ctx is done, then waits for running deliveries.
func (d *DeliveryDispatcher) Start(ctx context.Context) error {
	d.unlockStaleJobs(ctx)

	sem := semaphore.NewWeighted(int64(d.config.WorkerCount))
	var wg sync.WaitGroup

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()
	staleTicker := time.NewTicker(constants.StaleLockAfter)
	defer staleTicker.Stop()

	d.logger.Info().
		Int("workers", d.config.WorkerCount).
		Dur("interval", d.config.PollInterval).
		Msg("delivery dispatcher started")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info().Msg("delivery dispatcher stopped")
			return ctx.Err()
		case <-staleTicker.C:
			d.unlockStaleJobs(ctx)
		case <-ticker.C:
			d.processDueJobs(ctx, sem, &wg)
		}
	}
}

// RunOnce claims and delivers one batch of due jobs and waits for them to finish.
func (d *DeliveryDispatcher) RunOnce(ctx context.Context) int {
	sem := semaphore.NewWeighted(int64(d.config.WorkerCount))
	var wg sync.WaitGroup
	n := d.processDueJobs(ctx, sem, &wg)
	wg.Wait()
	return n
}

func (d *DeliveryDispatcher) unlockStaleJobs(ctx context.Context) {
	ok, err := d.lock.TryAcquire(ctx, constants.UnlockStaleLock)
	if err != nil || !ok {
		return
	}
	defer d.lock.Release(ctx, constants.UnlockStaleLock)

	n, err := d.store.UnlockStaleJobs(ctx, constants.StaleLockAfter)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to unlock stale jobs")
		return
	}
	if n > 0 {
		d.logger.Warn().Int("count", n).Msg("requeued jobs left locked by a stopped instance")
	}
}

func (d *DeliveryDispatcher) processDueJobs(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup) int {
	ok, err := d.lock.TryAcquire(ctx, constants.DispatchLock)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to take dispatch lock")
		return 0
	}
	if !ok {
		// another instance is claiming this round
		return 0
	}
	defer d.lock.Release(ctx, constants.DispatchLock)

	jobs, err := d.store.FetchDueJobs(ctx, timeNow(), d.config.BatchSize)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to fetch due jobs")
		return 0
	}

	claimed := 0
	for _, job := range jobs {
		locked, err := d.store.LockJob(ctx, job.Name, d.instance)
		if err != nil {
			d.logger.Error().Err(err).Str("job", job.Name).Msg("failed to lock job")
			continue
		}
		if !locked {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// shutting down: hand the row back untouched
			d.release(context.WithoutCancel(ctx), job, job.RunAt, job.Count, state.StatusQueued)
			break
		}
		claimed++
		wg.Add(1)
		go d.handleJob(ctx, sem, wg, job)
	}
	return claimed
}

func (d *DeliveryDispatcher) handleJob(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup, job types.Job) {
	result := types.JobResult{Job: job, RanAt: timeNow()}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("job", job.Name).Msg("panic while delivering job")
		}
		sem.Release(1)
		wg.Done()
	}()

	unlock := d.gate.enter(job.Route, job.Exclusive)
	defer unlock()

	if err := d.limiter.Wait(ctx); err != nil {
		d.release(context.WithoutCancel(ctx), job, job.RunAt, job.Count, state.StatusQueued)
		return
	}

	action, err := d.action(job, result.RanAt)
	if err == nil {
		err = d.deliverer.Deliver(ctx, action)
	}
	result.Err = err

	d.record(context.WithoutCancel(ctx), result)
}

// record applies the outcome of one attempt.
func (d *DeliveryDispatcher) record(ctx context.Context, result types.JobResult) {
	job := result.Job
	now := timeNow()
	log := d.logger.With().Str("job", job.Name).Int("count", job.Count).Logger()

	switch {
	case result.Err == nil:
		result.Status = state.StatusSucceeded
		if next, ok := job.NextRepetition(now); ok && state.IsValidTransition(state.StatusSucceeded, state.StatusQueued) {
			result.Status = state.StatusQueued
			result.NextRun = next
			d.release(ctx, job, next, job.Count+1, state.StatusQueued)
		} else {
			d.complete(ctx, job)
		}
		log.Debug().Msg("job delivered")

	default:
		result.Status = state.StatusFailed
		log.Warn().Err(result.Err).Msg("job delivery failed")

		if backoff, ok := job.NextRetry(); ok && state.IsValidTransition(state.StatusFailed, state.StatusRetrying) {
			result.Status = state.StatusRetrying
			result.NextRun = now.Add(backoff)
			metrics.JobRetries.Inc()
			d.release(ctx, job, result.NextRun, job.Count+1, state.StatusRetrying)
		} else if next, ok := job.NextRepetition(now); ok {
			// a failed run of a repeating job does not end the repetition
			result.Status = state.StatusQueued
			result.NextRun = next
			d.release(ctx, job, next, job.Count+1, state.StatusQueued)
		} else {
			result.Status = state.StatusDead
			d.complete(ctx, job)
		}
	}

	if result.Status.IsTerminal() {
		log.Info().Str("status", result.Status.String()).Msg("job finished")
	}
	if d.onResult != nil {
		d.onResult(result)
	}
}

func (d *DeliveryDispatcher) release(ctx context.Context, job types.Job, runAt time.Time, count int, status state.JobStatus) {
	if err := d.store.Reschedule(ctx, job.Name, d.instance, runAt, count, status); err != nil {
		d.logger.Error().Err(err).Str("job", job.Name).Msg("failed to reschedule job")
	}
}

func (d *DeliveryDispatcher) complete(ctx context.Context, job types.Job) {
	if err := d.store.Complete(ctx, job.Name, d.instance); err != nil {
		d.logger.Error().Err(err).Str("job", job.Name).Msg("failed to complete job")
	}
}

// action renders the delivery of one attempt of job.
func (d *DeliveryDispatcher) action(job types.Job, now time.Time) (types.HTTPAction, error) {
	meta := types.JobMeta{
		ID:        job.ID,
		Count:     job.Count,
		Retry:     job.Schedule.Retry,
		Exclusive: job.Exclusive,
	}
	if next, ok := job.NextRepetition(now); ok {
		ms := next.UnixMilli()
		meta.NextRepetition = &ms
	}
	encodedMeta, err := types.EncodeMeta(meta)
	if err != nil {
		return types.HTTPAction{}, err
	}
	envelope, err := types.EncodeDeliveryBody(job.Body)
	if err != nil {
		return types.HTTPAction{}, err
	}

	headers := make(map[string]string, len(job.Headers)+2)
	for k, v := range job.Headers {
		headers[k] = v
	}
	headers[types.MetaHeader] = encodedMeta
	if d.token != "" {
		headers[types.SignatureHeader] = signature.Sign(job.Body, d.token)
	}
	return types.NewPostAction(job.Endpoint, headers, envelope), nil
}

// routeGate keeps exclusive jobs of a route from running alongside any other job of the
// same route in this process.
type routeGate struct {
	mu     sync.Mutex
	routes map[string]*sync.RWMutex
}

func newRouteGate() *routeGate {
	return &routeGate{routes: make(map[string]*sync.RWMutex)}
}

func (g *routeGate) enter(route string, exclusive bool) func() {
	g.mu.Lock()
	m, ok := g.routes[route]
	if !ok {
		m = &sync.RWMutex{}
		g.routes[route] = m
	}
	g.mu.Unlock()

	if exclusive {
		m.Lock()
		return m.Unlock
	}
	m.RLock()
	return m.RUnlock
}
