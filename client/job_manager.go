package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/RezaEskandarii/quirrel/pgk/schedule"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobManager hands out queues bound to routes of one application and tears down
// everything it registered on shutdown.
type JobManager struct {
	registry  *Registry
	baseURL   string
	encrypter schedule.Encrypter
	logger    zerolog.Logger

	shutdownOnce sync.Once
	removed      int
}

// NewJobManager builds a manager delivering to baseURL + route. enc may be nil, in which
// case payloads are stored as plain JSON.
func NewJobManager(registry *Registry, baseURL string, enc schedule.Encrypter, logger zerolog.Logger) *JobManager {
	return &JobManager{
		registry:  registry,
		baseURL:   strings.TrimRight(baseURL, "/"),
		encrypter: enc,
		logger:    logger,
	}
}

// Queue returns the queue of route. The route is normalized to a single leading slash.
func (m *JobManager) Queue(route string) (*Queue, error) {
	normalized, err := types.NormalizeRoute(route)
	if err != nil {
		return nil, err
	}
	return &Queue{manager: m, route: normalized, endpoint: m.baseURL + normalized}, nil
}

// DeleteAll removes every job this instance owns, across all routes.
func (m *JobManager) DeleteAll(ctx context.Context) (int, error) {
	return m.registry.DeleteAll(ctx)
}

// Shutdown removes everything the instance registered. Only the first call does any
// work; later calls return the same count. Failures are logged, not returned.
func (m *JobManager) Shutdown(ctx context.Context) int {
	m.shutdownOnce.Do(func() {
		n, err := m.registry.DeleteAll(ctx)
		if err != nil {
			m.logger.Error().Err(err).Int("removed", n).Msg("shutdown left jobs behind")
		}
		m.removed = n
		m.logger.Info().Int("removed", n).Str("owner", m.registry.Owner()).Msg("job manager shut down")
	})
	return m.removed
}

// Queue enqueues and manages jobs of one route.
type Queue struct {
	manager  *JobManager
	route    string
	endpoint string
}

// EnqueueItem is one element of a batch enqueue.
type EnqueueItem struct {
	Payload any
	Options schedule.Options
}

func (q *Queue) Route() string {
	return q.route
}

func (q *Queue) Endpoint() string {
	return q.endpoint
}

// Enqueue validates opts, encodes payload and registers the job. Validation errors are
// returned before the registry is touched.
func (q *Queue) Enqueue(ctx context.Context, payload any, opts schedule.Options) (*types.Job, error) {
	job, override, err := q.prepare(payload, opts)
	if err != nil {
		return nil, err
	}
	return q.manager.registry.Register(ctx, job, override)
}

// EnqueueMany validates every item before registering any of them. Registration stops
// at the first registry failure and returns the jobs registered so far.
func (q *Queue) EnqueueMany(ctx context.Context, items []EnqueueItem) ([]types.Job, error) {
	type prepared struct {
		job      types.Job
		override bool
	}

	batch := make([]prepared, 0, len(items))
	for i, item := range items {
		job, override, err := q.prepare(item.Payload, item.Options)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		batch = append(batch, prepared{job: job, override: override})
	}

	jobs := make([]types.Job, 0, len(batch))
	for _, p := range batch {
		stored, err := q.manager.registry.Register(ctx, p.job, p.override)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, *stored)
	}
	return jobs, nil
}

func (q *Queue) prepare(payload any, opts schedule.Options) (types.Job, bool, error) {
	normalized, err := schedule.Normalize(timeNow(), payload, opts, q.manager.encrypter)
	if err != nil {
		return types.Job{}, false, err
	}

	id := normalized.ID
	if id == "" {
		id = uuid.NewString()
	}
	name := types.JobName(q.route, id)
	if normalized.Schedule.Kind == types.KindCron {
		name = types.CronJobName(q.route)
	}

	return types.Job{
		ID:        id,
		Route:     q.route,
		Name:      name,
		Body:      normalized.Body,
		Endpoint:  q.endpoint,
		Schedule:  normalized.Schedule,
		Exclusive: normalized.Exclusive,
		Count:     1,
		Active:    true,
		RunAt:     normalized.Schedule.RunAt,
	}, normalized.Override, nil
}

// Get walks the route's jobs in batches.
func (q *Queue) Get(ctx context.Context) iter.Seq2[[]types.Job, error] {
	return q.manager.registry.List(ctx, q.route)
}

// GetByID returns the job id, or nil when it does not exist. The id "@cron" selects the
// route's recurring job.
func (q *Queue) GetByID(ctx context.Context, id string) (*types.Job, error) {
	ref, err := q.reference(id)
	if err != nil {
		return nil, err
	}
	return q.manager.registry.Get(ctx, ref)
}

// Delete removes job id and reports whether it existed.
func (q *Queue) Delete(ctx context.Context, id string) (bool, error) {
	ref, err := q.reference(id)
	if err != nil {
		return false, err
	}
	return q.manager.registry.Delete(ctx, ref)
}

// Invoke runs job id now and reports whether it existed.
func (q *Queue) Invoke(ctx context.Context, id string) (bool, error) {
	ref, err := q.reference(id)
	if err != nil {
		return false, err
	}
	return q.manager.registry.Invoke(ctx, ref)
}

var errEmptyID = errors.New("job id is required")

func (q *Queue) reference(id string) (types.JobReference, error) {
	ref := types.ParseReference(q.route, id)
	if !ref.Valid() {
		return types.JobReference{}, errEmptyID
	}
	return ref, nil
}
