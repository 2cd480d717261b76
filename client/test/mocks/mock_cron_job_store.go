package mocks

import (
	"context"

	"github.com/RezaEskandarii/quirrel/types"
)

// MockCronJobStore is a mock implementation of store.CronJobStore for testing.
type MockCronJobStore struct {
	ScheduleFunc      func(ctx context.Context, entry types.CronEntry) (int64, error)
	FindByNameFunc    func(ctx context.Context, name string) (*types.CronEntry, error)
	ListFunc          func(ctx context.Context, owner string, page, pageSize int) (*types.PaginationResult[types.CronEntry], error)
	UnscheduleFunc    func(ctx context.Context, name string) (bool, error)
	UnscheduleAllFunc func(ctx context.Context, owner string) (int, error)
	CloseFunc         func() error

	Scheduled []types.CronEntry
}

func (m *MockCronJobStore) Schedule(ctx context.Context, entry types.CronEntry) (int64, error) {
	m.Scheduled = append(m.Scheduled, entry)
	if m.ScheduleFunc != nil {
		return m.ScheduleFunc(ctx, entry)
	}
	return int64(len(m.Scheduled)), nil
}

func (m *MockCronJobStore) FindByName(ctx context.Context, name string) (*types.CronEntry, error) {
	if m.FindByNameFunc != nil {
		return m.FindByNameFunc(ctx, name)
	}
	return nil, nil
}

func (m *MockCronJobStore) List(ctx context.Context, owner string, page, pageSize int) (*types.PaginationResult[types.CronEntry], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, owner, page, pageSize)
	}
	return types.NewPaginationResult([]types.CronEntry{}, 0, page, pageSize), nil
}

func (m *MockCronJobStore) Unschedule(ctx context.Context, name string) (bool, error) {
	if m.UnscheduleFunc != nil {
		return m.UnscheduleFunc(ctx, name)
	}
	return false, nil
}

func (m *MockCronJobStore) UnscheduleAll(ctx context.Context, owner string) (int, error) {
	if m.UnscheduleAllFunc != nil {
		return m.UnscheduleAllFunc(ctx, owner)
	}
	return 0, nil
}

func (m *MockCronJobStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
