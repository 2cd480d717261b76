package store

import (
	"context"

	"github.com/RezaEskandarii/quirrel/types"
)

// CronJobStore is a durable scheduler that owns recurring jobs and performs their HTTP
// action itself when an expression fires.
type CronJobStore interface {
	// Schedule removes any entry named entry.Name and creates entry in its place as one
	// atomic step. Returns the registry id of the new entry.
	Schedule(ctx context.Context, entry types.CronEntry) (int64, error)

	// FindByName returns the entry called name, or nil when there is none.
	FindByName(ctx context.Context, name string) (*types.CronEntry, error)

	// List returns one page of the entries created by owner. An empty owner lists all.
	List(ctx context.Context, owner string, page int, pageSize int) (*types.PaginationResult[types.CronEntry], error)

	// Unschedule removes the entry called name and reports whether one existed.
	Unschedule(ctx context.Context, name string) (bool, error)

	// UnscheduleAll removes every entry created by owner.
	UnscheduleAll(ctx context.Context, owner string) (int, error)

	// Close closes the underlying connection
	Close() error
}
