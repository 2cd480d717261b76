// Package redis keeps timer jobs in Redis. Every job is a JSON document under its own
// key, indexed by sorted sets for due time, route, owner and lock age. Mutations run in
// optimistic WATCH transactions on the job key, so two writers of one name serialize.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/RezaEskandarii/quirrel/internal/state"
	"github.com/RezaEskandarii/quirrel/types"
	goredis "github.com/redis/go-redis/v9"
)

const maxTxRetries = 16

type jobRecord struct {
	Job      types.Job       `json:"job"`
	Status   state.JobStatus `json:"status"`
	LockedBy string          `json:"lockedBy,omitempty"`
	LockedAt time.Time       `json:"lockedAt"`
}

func (r *jobRecord) due() bool {
	return slices.Contains(state.DueStatuses, r.Status)
}

func (r *jobRecord) view() *types.Job {
	job := r.Job
	job.Active = r.Status != state.StatusProcessing
	return &job
}

type RedisEnqueuedJobStore struct {
	client goredis.UniversalClient
	prefix string
}

func NewRedisEnqueuedJobStore(client goredis.UniversalClient, prefix string) *RedisEnqueuedJobStore {
	return &RedisEnqueuedJobStore{client: client, prefix: prefix}
}

func (s *RedisEnqueuedJobStore) Insert(ctx context.Context, job types.Job, override bool) (*types.Job, error) {
	if job.Count < 1 {
		job.Count = 1
	}
	var result *types.Job
	err := s.mutate(ctx, job.Name, func(current *jobRecord) (*jobRecord, bool, error) {
		if current != nil && !override {
			result = current.view()
			return nil, false, nil
		}
		next := &jobRecord{Job: job, Status: state.StatusQueued}
		next.Job.RegistryID = time.Now().UnixNano()
		result = next.view()
		return next, true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert job %s: %w", job.Name, err)
	}
	return result, nil
}

func (s *RedisEnqueuedJobStore) FindByName(ctx context.Context, name string) (*types.Job, error) {
	record, err := s.load(ctx, s.client, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find job %s: %w", name, err)
	}
	if record == nil {
		return nil, nil
	}
	return record.view(), nil
}

func (s *RedisEnqueuedJobStore) ListByRoute(ctx context.Context, route string, page int, pageSize int) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	index := s.allKey()
	if route != "" {
		index = s.routeKey(route)
	}

	total, err := s.client.ZCard(ctx, index).Result()
	if err != nil {
		return nil, err
	}

	start := int64((page - 1) * pageSize)
	names, err := s.client.ZRange(ctx, index, start, start+int64(pageSize)-1).Result()
	if err != nil {
		return nil, err
	}

	records, err := s.loadMany(ctx, names)
	if err != nil {
		return nil, err
	}
	jobs := make([]types.Job, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, *record.view())
	}
	return types.NewPaginationResult(jobs, int(total), page, pageSize), nil
}

func (s *RedisEnqueuedJobStore) DeleteByName(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := s.mutate(ctx, name, func(current *jobRecord) (*jobRecord, bool, error) {
		removed = current != nil
		return nil, removed, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete job %s: %w", name, err)
	}
	return removed, nil
}

func (s *RedisEnqueuedJobStore) DeleteAll(ctx context.Context, owner string) (int, error) {
	names, err := s.client.SMembers(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs of %s: %w", owner, err)
	}
	count := 0
	for _, name := range names {
		removed, err := s.DeleteByName(ctx, name)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	return count, nil
}

func (s *RedisEnqueuedJobStore) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]types.Job, error) {
	names, err := s.client.ZRangeByScore(ctx, s.dueKey(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	records, err := s.loadMany(ctx, names)
	if err != nil {
		return nil, err
	}
	jobs := make([]types.Job, 0, len(records))
	for _, record := range records {
		if record.due() && !record.Job.RunAt.After(now) {
			jobs = append(jobs, *record.view())
		}
	}
	return jobs, nil
}

func (s *RedisEnqueuedJobStore) LockJob(ctx context.Context, name string, lockedBy string) (bool, error) {
	var locked bool
	err := s.mutate(ctx, name, func(current *jobRecord) (*jobRecord, bool, error) {
		locked = false
		if current == nil || !current.due() {
			return nil, false, nil
		}
		next := *current
		next.Status = state.StatusProcessing
		next.LockedBy = lockedBy
		next.LockedAt = time.Now()
		locked = true
		return &next, true, nil
	})
	return locked, err
}

func (s *RedisEnqueuedJobStore) Reschedule(ctx context.Context, name string, lockedBy string, runAt time.Time, count int, status state.JobStatus) error {
	return s.mutate(ctx, name, func(current *jobRecord) (*jobRecord, bool, error) {
		if current == nil || current.LockedBy != lockedBy {
			return nil, false, nil
		}
		next := *current
		next.Job.RunAt = runAt
		next.Job.Count = count
		next.Status = status
		next.LockedBy = ""
		next.LockedAt = time.Time{}
		return &next, true, nil
	})
}

func (s *RedisEnqueuedJobStore) MakeDue(ctx context.Context, name string, now time.Time) (bool, error) {
	var moved bool
	err := s.mutate(ctx, name, func(current *jobRecord) (*jobRecord, bool, error) {
		moved = false
		if current == nil || !current.due() {
			return nil, false, nil
		}
		next := *current
		next.Job.RunAt = now
		moved = true
		return &next, true, nil
	})
	return moved, err
}

func (s *RedisEnqueuedJobStore) Complete(ctx context.Context, name string, lockedBy string) error {
	return s.mutate(ctx, name, func(current *jobRecord) (*jobRecord, bool, error) {
		if current == nil || current.LockedBy != lockedBy {
			return nil, false, nil
		}
		return nil, true, nil
	})
}

func (s *RedisEnqueuedJobStore) UnlockStaleJobs(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-timeout)
	names, err := s.client.ZRangeByScore(ctx, s.processingKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	unlocked := 0
	for _, name := range names {
		var changed bool
		err := s.mutate(ctx, name, func(current *jobRecord) (*jobRecord, bool, error) {
			changed = false
			if current == nil || current.Status != state.StatusProcessing || !current.LockedAt.Before(cutoff) {
				return nil, false, nil
			}
			next := *current
			next.Status = state.StatusQueued
			next.LockedBy = ""
			next.LockedAt = time.Time{}
			changed = true
			return &next, true, nil
		})
		if err != nil {
			return unlocked, err
		}
		if changed {
			unlocked++
		}
	}
	return unlocked, nil
}

func (s *RedisEnqueuedJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	names, err := s.client.ZRange(ctx, s.allKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	records, err := s.loadMany(ctx, names)
	if err != nil {
		return nil, err
	}

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for _, record := range records {
		result[record.Status]++
	}
	return result, nil
}

func (s *RedisEnqueuedJobStore) Close() error {
	return s.client.Close()
}

// mutate runs fn against the current record of name in an optimistic transaction.
// fn returns the record to store (nil deletes it) and whether to write at all.
func (s *RedisEnqueuedJobStore) mutate(ctx context.Context, name string, fn func(current *jobRecord) (*jobRecord, bool, error)) error {
	key := s.jobKey(name)
	for range maxTxRetries {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			current, err := s.load(ctx, tx, name)
			if err != nil {
				return err
			}
			next, write, err := fn(current)
			if err != nil || !write {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				if current != nil {
					s.unindex(ctx, pipe, current)
				}
				if next == nil {
					pipe.Del(ctx, key)
					return nil
				}
				return s.save(ctx, pipe, next)
			})
			return err
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return goredis.TxFailedErr
}

func (s *RedisEnqueuedJobStore) save(ctx context.Context, pipe goredis.Pipeliner, record *jobRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	name := record.Job.Name
	score := float64(record.Job.RunAt.UnixMilli())

	pipe.Set(ctx, s.jobKey(name), raw, 0)
	pipe.ZAdd(ctx, s.allKey(), goredis.Z{Score: score, Member: name})
	pipe.ZAdd(ctx, s.routeKey(record.Job.Route), goredis.Z{Score: score, Member: name})
	pipe.SAdd(ctx, s.ownerKey(record.Job.Owner), name)
	switch {
	case record.due():
		pipe.ZAdd(ctx, s.dueKey(), goredis.Z{Score: score, Member: name})
	case record.Status == state.StatusProcessing:
		pipe.ZAdd(ctx, s.processingKey(), goredis.Z{Score: float64(record.LockedAt.UnixMilli()), Member: name})
	}
	return nil
}

func (s *RedisEnqueuedJobStore) unindex(ctx context.Context, pipe goredis.Pipeliner, record *jobRecord) {
	name := record.Job.Name
	pipe.ZRem(ctx, s.allKey(), name)
	pipe.ZRem(ctx, s.routeKey(record.Job.Route), name)
	pipe.SRem(ctx, s.ownerKey(record.Job.Owner), name)
	pipe.ZRem(ctx, s.dueKey(), name)
	pipe.ZRem(ctx, s.processingKey(), name)
}

func (s *RedisEnqueuedJobStore) load(ctx context.Context, client goredis.Cmdable, name string) (*jobRecord, error) {
	raw, err := client.Get(ctx, s.jobKey(name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record jobRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}
	return &record, nil
}

func (s *RedisEnqueuedJobStore) loadMany(ctx context.Context, names []string) ([]*jobRecord, error) {
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.jobKey(name)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*jobRecord, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// removed between the index read and the fetch
			continue
		}
		var record jobRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("job %s: %w", names[i], err)
		}
		records = append(records, &record)
	}
	return records, nil
}

func (s *RedisEnqueuedJobStore) jobKey(name string) string { return s.prefix + "job:" + name }
func (s *RedisEnqueuedJobStore) allKey() string { return s.prefix + "jobs" }
func (s *RedisEnqueuedJobStore) routeKey(route string) string { return s.prefix + "route:" + route }
func (s *RedisEnqueuedJobStore) ownerKey(owner string) string { return s.prefix + "owner:" + owner }
func (s *RedisEnqueuedJobStore) dueKey() string { return s.prefix + "due" }
func (s *RedisEnqueuedJobStore) processingKey() string { return s.prefix + "processing" }
