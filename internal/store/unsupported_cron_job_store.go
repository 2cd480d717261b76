package store

import (
	"context"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/types"
)

// UnsupportedCronJobStore stands in when the backend cannot run recurring jobs, for
// example with cron disabled or on Redis. Writes fail with ErrUnsupportedOperation and
// reads see an empty registry.
type UnsupportedCronJobStore struct{}

func (UnsupportedCronJobStore) Schedule(context.Context, types.CronEntry) (int64, error) {
	return 0, custom_errors.ErrUnsupportedOperation
}

func (UnsupportedCronJobStore) FindByName(context.Context, string) (*types.CronEntry, error) {
	return nil, nil
}

func (UnsupportedCronJobStore) List(_ context.Context, _ string, page int, pageSize int) (*types.PaginationResult[types.CronEntry], error) {
	return types.NewPaginationResult[types.CronEntry](nil, 0, page, pageSize), nil
}

func (UnsupportedCronJobStore) Unschedule(context.Context, string) (bool, error) {
	return false, nil
}

func (UnsupportedCronJobStore) UnscheduleAll(context.Context, string) (int, error) {
	return 0, nil
}

func (UnsupportedCronJobStore) Close() error {
	return nil
}
