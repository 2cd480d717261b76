package types

import (
	"time"

	"github.com/RezaEskandarii/quirrel/internal/state"
)

// JobResult is the outcome of one delivery attempt of a timer job.
type JobResult struct {
	Job     Job
	Err     error
	Status  state.JobStatus
	RanAt   time.Time
	NextRun time.Time
}
