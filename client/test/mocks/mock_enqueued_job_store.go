package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/quirrel/internal/state"
	"github.com/RezaEskandarii/quirrel/types"
)

// MockEnqueuedJobStore is a mock implementation of store.EnqueuedJobStore for testing.
type MockEnqueuedJobStore struct {
	InsertFunc                      func(ctx context.Context, job types.Job, override bool) (*types.Job, error)
	FindByNameFunc                  func(ctx context.Context, name string) (*types.Job, error)
	ListByRouteFunc                 func(ctx context.Context, route string, page, pageSize int) (*types.PaginationResult[types.Job], error)
	DeleteByNameFunc                func(ctx context.Context, name string) (bool, error)
	DeleteAllFunc                   func(ctx context.Context, owner string) (int, error)
	FetchDueJobsFunc                func(ctx context.Context, now time.Time, limit int) ([]types.Job, error)
	LockJobFunc                     func(ctx context.Context, name, lockedBy string) (bool, error)
	RescheduleFunc                  func(ctx context.Context, name, lockedBy string, runAt time.Time, count int, status state.JobStatus) error
	MakeDueFunc                     func(ctx context.Context, name string, now time.Time) (bool, error)
	CompleteFunc                    func(ctx context.Context, name, lockedBy string) error
	UnlockStaleJobsFunc             func(ctx context.Context, timeout time.Duration) (int, error)
	CountAllJobsGroupedByStatusFunc func(ctx context.Context) (map[state.JobStatus]int, error)
	CloseFunc                       func() error

	InsertCalls int
}

func (m *MockEnqueuedJobStore) Insert(ctx context.Context, job types.Job, override bool) (*types.Job, error) {
	m.InsertCalls++
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, job, override)
	}
	return &job, nil
}

func (m *MockEnqueuedJobStore) FindByName(ctx context.Context, name string) (*types.Job, error) {
	if m.FindByNameFunc != nil {
		return m.FindByNameFunc(ctx, name)
	}
	return nil, nil
}

func (m *MockEnqueuedJobStore) ListByRoute(ctx context.Context, route string, page, pageSize int) (*types.PaginationResult[types.Job], error) {
	if m.ListByRouteFunc != nil {
		return m.ListByRouteFunc(ctx, route, page, pageSize)
	}
	return types.NewPaginationResult([]types.Job{}, 0, page, pageSize), nil
}

func (m *MockEnqueuedJobStore) DeleteByName(ctx context.Context, name string) (bool, error) {
	if m.DeleteByNameFunc != nil {
		return m.DeleteByNameFunc(ctx, name)
	}
	return false, nil
}

func (m *MockEnqueuedJobStore) DeleteAll(ctx context.Context, owner string) (int, error) {
	if m.DeleteAllFunc != nil {
		return m.DeleteAllFunc(ctx, owner)
	}
	return 0, nil
}

func (m *MockEnqueuedJobStore) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]types.Job, error) {
	if m.FetchDueJobsFunc != nil {
		return m.FetchDueJobsFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *MockEnqueuedJobStore) LockJob(ctx context.Context, name, lockedBy string) (bool, error) {
	if m.LockJobFunc != nil {
		return m.LockJobFunc(ctx, name, lockedBy)
	}
	return true, nil
}

func (m *MockEnqueuedJobStore) Reschedule(ctx context.Context, name, lockedBy string, runAt time.Time, count int, status state.JobStatus) error {
	if m.RescheduleFunc != nil {
		return m.RescheduleFunc(ctx, name, lockedBy, runAt, count, status)
	}
	return nil
}

func (m *MockEnqueuedJobStore) MakeDue(ctx context.Context, name string, now time.Time) (bool, error) {
	if m.MakeDueFunc != nil {
		return m.MakeDueFunc(ctx, name, now)
	}
	return false, nil
}

func (m *MockEnqueuedJobStore) Complete(ctx context.Context, name, lockedBy string) error {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, name, lockedBy)
	}
	return nil
}

func (m *MockEnqueuedJobStore) UnlockStaleJobs(ctx context.Context, timeout time.Duration) (int, error) {
	if m.UnlockStaleJobsFunc != nil {
		return m.UnlockStaleJobsFunc(ctx, timeout)
	}
	return 0, nil
}

func (m *MockEnqueuedJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	if m.CountAllJobsGroupedByStatusFunc != nil {
		return m.CountAllJobsGroupedByStatusFunc(ctx)
	}
	return map[state.JobStatus]int{}, nil
}

func (m *MockEnqueuedJobStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
