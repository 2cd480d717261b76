// Package memory keeps jobs in process memory. Nothing survives a restart, which suits
// tests and local development.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/quirrel/internal/state"
	"github.com/RezaEskandarii/quirrel/types"
)

type jobRecord struct {
	job      types.Job
	status   state.JobStatus
	lockedBy string
	lockedAt time.Time
}

func (r *jobRecord) due() bool {
	return slices.Contains(state.DueStatuses, r.status)
}

func (r *jobRecord) view() *types.Job {
	job := r.job
	job.Active = r.status != state.StatusProcessing
	if job.Headers != nil {
		headers := make(map[string]string, len(job.Headers))
		for k, v := range job.Headers {
			headers[k] = v
		}
		job.Headers = headers
	}
	return &job
}

type MemoryEnqueuedJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*jobRecord
	nextID int64
}

func NewMemoryEnqueuedJobStore() *MemoryEnqueuedJobStore {
	return &MemoryEnqueuedJobStore{jobs: make(map[string]*jobRecord)}
}

func (s *MemoryEnqueuedJobStore) Insert(_ context.Context, job types.Job, override bool) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.jobs[job.Name]; ok && !override {
		return current.view(), nil
	}
	if job.Count < 1 {
		job.Count = 1
	}
	s.nextID++
	job.RegistryID = s.nextID
	record := &jobRecord{job: job, status: state.StatusQueued}
	s.jobs[job.Name] = record
	return record.view(), nil
}

func (s *MemoryEnqueuedJobStore) FindByName(_ context.Context, name string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.jobs[name]; ok {
		return record.view(), nil
	}
	return nil, nil
}

func (s *MemoryEnqueuedJobStore) ListByRoute(_ context.Context, route string, page int, pageSize int) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	var matched []*jobRecord
	for _, record := range s.jobs {
		if route == "" || record.job.Route == route {
			matched = append(matched, record)
		}
	}
	sortByRunAt(matched)

	var jobs []types.Job
	start := (page - 1) * pageSize
	for i := start; i < len(matched) && i < start+pageSize; i++ {
		jobs = append(jobs, *matched[i].view())
	}
	s.mu.Unlock()

	return types.NewPaginationResult(jobs, len(matched), page, pageSize), nil
}

func (s *MemoryEnqueuedJobStore) DeleteByName(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.jobs[name]
	delete(s.jobs, name)
	return ok, nil
}

func (s *MemoryEnqueuedJobStore) DeleteAll(_ context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for name, record := range s.jobs {
		if record.job.Owner == owner {
			delete(s.jobs, name)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryEnqueuedJobStore) FetchDueJobs(_ context.Context, now time.Time, limit int) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*jobRecord
	for _, record := range s.jobs {
		if record.due() && !record.job.RunAt.After(now) {
			due = append(due, record)
		}
	}
	sortByRunAt(due)
	if len(due) > limit {
		due = due[:limit]
	}

	jobs := make([]types.Job, 0, len(due))
	for _, record := range due {
		jobs = append(jobs, *record.view())
	}
	return jobs, nil
}

func (s *MemoryEnqueuedJobStore) LockJob(_ context.Context, name string, lockedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[name]
	if !ok || !record.due() {
		return false, nil
	}
	record.status = state.StatusProcessing
	record.lockedBy = lockedBy
	record.lockedAt = time.Now()
	return true, nil
}

func (s *MemoryEnqueuedJobStore) Reschedule(_ context.Context, name string, lockedBy string, runAt time.Time, count int, status state.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[name]
	if !ok || record.lockedBy != lockedBy {
		return nil
	}
	record.job.RunAt = runAt
	record.job.Count = count
	record.status = status
	record.lockedBy = ""
	record.lockedAt = time.Time{}
	return nil
}

func (s *MemoryEnqueuedJobStore) MakeDue(_ context.Context, name string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[name]
	if !ok || !record.due() {
		return false, nil
	}
	record.job.RunAt = now
	return true, nil
}

func (s *MemoryEnqueuedJobStore) Complete(_ context.Context, name string, lockedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.jobs[name]; ok && record.lockedBy == lockedBy {
		delete(s.jobs, name)
	}
	return nil
}

func (s *MemoryEnqueuedJobStore) UnlockStaleJobs(_ context.Context, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	unlocked := 0
	for _, record := range s.jobs {
		if record.status == state.StatusProcessing && record.lockedAt.Before(cutoff) {
			record.status = state.StatusQueued
			record.lockedBy = ""
			record.lockedAt = time.Time{}
			unlocked++
		}
	}
	return unlocked, nil
}

func (s *MemoryEnqueuedJobStore) CountAllJobsGroupedByStatus(context.Context) (map[state.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for _, record := range s.jobs {
		result[record.status]++
	}
	return result, nil
}

func (s *MemoryEnqueuedJobStore) Close() error {
	return nil
}

func sortByRunAt(records []*jobRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].job.RunAt.Equal(records[j].job.RunAt) {
			return records[i].job.RegistryID < records[j].job.RegistryID
		}
		return records[i].job.RunAt.Before(records[j].job.RunAt)
	})
}
