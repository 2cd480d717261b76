package client

import (
	"context"
	"errors"
	"iter"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/internal/metrics"
	"github.com/RezaEskandarii/quirrel/internal/store"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/rs/zerolog"
)

const defaultPageSize = 100

// Registry persists jobs under their derived names and answers lookups. Recurring cron
// jobs go to the cron store, everything else to the timer store the dispatcher drains.
// Store failures surface as custom_errors.ErrRegistryUnavailable and are never retried
// here.
type Registry struct {
	cronStore store.CronJobStore
	jobStore  store.EnqueuedJobStore
	runner    Deliverer
	owner     string
	token     string
	pageSize  int
	logger    zerolog.Logger
}

type RegistryOption func(*Registry)

// WithPageSize sets the batch size of List.
func WithPageSize(size int) RegistryOption {
	return func(r *Registry) {
		if size > 0 {
			r.pageSize = size
		}
	}
}

func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry builds a registry owning jobs as owner. token signs cron deliveries and
// runner performs immediate invocations of cron jobs.
func NewRegistry(cronStore store.CronJobStore, jobStore store.EnqueuedJobStore, runner Deliverer, owner, token string, opts ...RegistryOption) *Registry {
	r := &Registry{
		cronStore: cronStore,
		jobStore:  jobStore,
		runner:    runner,
		owner:     owner,
		token:     token,
		pageSize:  defaultPageSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Owner() string {
	return r.owner
}

// Register persists job under job.Name. Cron jobs always replace an entry of the same
// name; timer jobs replace only with override, otherwise the live job is returned.
func (r *Registry) Register(ctx context.Context, job types.Job, override bool) (*types.Job, error) {
	job.Owner = r.owner
	if job.Count < 1 {
		job.Count = 1
	}

	var (
		stored *types.Job
		err    error
	)
	if job.Schedule.Kind == types.KindCron {
		stored, err = r.registerCron(ctx, job)
	} else {
		stored, err = r.jobStore.Insert(ctx, job, override)
	}
	if err != nil {
		return nil, custom_errors.Unavailable("register", err)
	}

	metrics.JobsScheduled.WithLabelValues(job.Schedule.Kind.String()).Inc()
	r.logger.Debug().
		Str("job", stored.Name).
		Str("kind", job.Schedule.Kind.String()).
		Time("runAt", stored.RunAt).
		Msg("job registered")
	return stored, nil
}

// Get returns the referenced job, or nil when it does not exist.
func (r *Registry) Get(ctx context.Context, ref types.JobReference) (*types.Job, error) {
	if ref.IsCron() {
		entry, err := r.cronStore.FindByName(ctx, ref.Name())
		if err != nil || entry == nil {
			return nil, custom_errors.Unavailable("get", err)
		}
		job := r.cronJob(*entry)
		return &job, nil
	}

	job, err := r.jobStore.FindByName(ctx, ref.Name())
	if err != nil {
		return nil, custom_errors.Unavailable("get", err)
	}
	return job, nil
}

// List walks route's jobs in batches. The route's cron job, if any, leads the first
// batch. Iteration is lazy and forward only; ranging again starts over.
func (r *Registry) List(ctx context.Context, route string) iter.Seq2[[]types.Job, error] {
	return func(yield func([]types.Job, error) bool) {
		var batch []types.Job

		entry, err := r.cronStore.FindByName(ctx, types.CronJobName(route))
		if err != nil {
			yield(nil, custom_errors.Unavailable("list", err))
			return
		}
		if entry != nil {
			batch = append(batch, r.cronJob(*entry))
		}

		for page := 1; ; page++ {
			result, err := r.jobStore.ListByRoute(ctx, route, page, r.pageSize)
			if err != nil {
				yield(nil, custom_errors.Unavailable("list", err))
				return
			}
			batch = append(batch, result.Items...)
			if len(batch) > 0 && !yield(batch, nil) {
				return
			}
			batch = nil
			if !result.HasNextPage {
				return
			}
		}
	}
}

// Delete removes the referenced job and reports whether it existed.
func (r *Registry) Delete(ctx context.Context, ref types.JobReference) (bool, error) {
	var (
		removed bool
		err     error
	)
	if ref.IsCron() {
		removed, err = r.cronStore.Unschedule(ctx, ref.Name())
	} else {
		removed, err = r.jobStore.DeleteByName(ctx, ref.Name())
	}
	if err != nil {
		return false, custom_errors.Unavailable("delete", err)
	}
	if removed {
		metrics.JobsDeleted.Inc()
	}
	return removed, nil
}

// DeleteAll removes every job this registry owns from both stores. A failure in one
// store does not stop the other; the count covers what was removed.
func (r *Registry) DeleteAll(ctx context.Context) (int, error) {
	crons, cronErr := r.cronStore.UnscheduleAll(ctx, r.owner)
	jobs, jobErr := r.jobStore.DeleteAll(ctx, r.owner)

	total := crons + jobs
	metrics.JobsDeleted.Add(float64(total))

	if err := errors.Join(cronErr, jobErr); err != nil {
		return total, custom_errors.Unavailable("deleteAll", err)
	}
	return total, nil
}

// Invoke runs the referenced job now. A timer job is moved to the front of the queue;
// a cron job is delivered immediately and keeps its schedule.
func (r *Registry) Invoke(ctx context.Context, ref types.JobReference) (bool, error) {
	if ref.IsCron() {
		return r.invokeCron(ctx, ref)
	}
	moved, err := r.jobStore.MakeDue(ctx, ref.Name(), timeNow())
	if err != nil {
		return false, custom_errors.Unavailable("invoke", err)
	}
	return moved, nil
}
