package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/quirrel/internal/state"
	"github.com/RezaEskandarii/quirrel/types"
)

// EnqueuedJobStore holds timer jobs (delays, repetitions and retry ladders) until the
// dispatcher delivers them. Rows are addressed by their derived name.
type EnqueuedJobStore interface {
	// Insert stores job under job.Name. With override an existing row is replaced in one
	// statement; without it an existing row is kept and returned unchanged.
	Insert(ctx context.Context, job types.Job, override bool) (*types.Job, error)

	// FindByName returns the job called name, or nil when there is none.
	FindByName(ctx context.Context, name string) (*types.Job, error)

	// ListByRoute returns one page of route's jobs ordered by due time. An empty route
	// lists all routes.
	ListByRoute(ctx context.Context, route string, page int, pageSize int) (*types.PaginationResult[types.Job], error)

	DeleteByName(ctx context.Context, name string) (bool, error)

	// DeleteAll removes every job created by owner.
	DeleteAll(ctx context.Context, owner string) (int, error)

	// FetchDueJobs returns up to limit unlocked jobs due at or before now.
	FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]types.Job, error)

	// LockJob claims a due job for lockedBy. False means another worker got it first.
	LockJob(ctx context.Context, name string, lockedBy string) (bool, error)

	// Reschedule releases a job locked by lockedBy to run again at runAt with the given
	// attempt count. A job replaced while it was running is left alone.
	Reschedule(ctx context.Context, name string, lockedBy string, runAt time.Time, count int, status state.JobStatus) error

	// MakeDue moves a waiting job's run time to now.
	MakeDue(ctx context.Context, name string, now time.Time) (bool, error)

	// Complete removes a job locked by lockedBy whose last attempt has run.
	Complete(ctx context.Context, name string, lockedBy string) error

	// UnlockStaleJobs requeues jobs locked longer than timeout by an instance that died.
	UnlockStaleJobs(ctx context.Context, timeout time.Duration) (int, error)

	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	Close() error
}
