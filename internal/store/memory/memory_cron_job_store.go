package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/pgk/parser"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ActionRunner performs the HTTP action of a cron entry when it fires.
type ActionRunner interface {
	Deliver(ctx context.Context, action types.HTTPAction) error
}

type cronRecord struct {
	entry   types.CronEntry
	entryID cron.EntryID
	fired   int
}

// view returns the entry with the count of its next firing.
func (r *cronRecord) view() types.CronEntry {
	entry := r.entry
	if action, err := entry.Action.WithMetaCount(r.fired + 1); err == nil {
		entry.Action = action
	}
	return entry
}

// MemoryCronJobStore fires recurring jobs from an in-process robfig scheduler. Without
// a runner it behaves like a backend with no cron support.
type MemoryCronJobStore struct {
	mu      sync.Mutex
	cron    *cron.Cron
	runner  ActionRunner
	entries map[string]*cronRecord
	nextID  int64
	logger  zerolog.Logger
}

func NewMemoryCronJobStore(runner ActionRunner, logger zerolog.Logger) *MemoryCronJobStore {
	s := &MemoryCronJobStore{
		cron:    cron.New(),
		runner:  runner,
		entries: make(map[string]*cronRecord),
		logger:  logger,
	}
	s.cron.Start()
	return s
}

func (s *MemoryCronJobStore) Schedule(_ context.Context, entry types.CronEntry) (int64, error) {
	if s.runner == nil {
		return 0, custom_errors.ErrUnsupportedOperation
	}
	schedule, err := parser.ParseCron(entry.Expression)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[entry.Name]; ok {
		s.cron.Remove(current.entryID)
	}

	s.nextID++
	entry.ID = s.nextID
	entry.Active = true
	entry.CreatedAt = time.Now()

	record := &cronRecord{entry: entry}
	record.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(record) }))

	s.entries[entry.Name] = record
	return entry.ID, nil
}

// fire delivers one activation of record, counting it first.
func (s *MemoryCronJobStore) fire(record *cronRecord) {
	s.mu.Lock()
	record.fired++
	name := record.entry.Name
	action, err := record.entry.Action.WithMetaCount(record.fired)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("failed to encode cron meta")
		return
	}

	if err := s.runner.Deliver(context.Background(), action); err != nil {
		s.logger.Warn().Err(err).Str("job", name).Msg("cron delivery failed")
	}
}

func (s *MemoryCronJobStore) FindByName(_ context.Context, name string) (*types.CronEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.entries[name]; ok {
		entry := record.view()
		return &entry, nil
	}
	return nil, nil
}

func (s *MemoryCronJobStore) List(_ context.Context, owner string, page int, pageSize int) (*types.PaginationResult[types.CronEntry], error) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	var matched []types.CronEntry
	for _, record := range s.entries {
		if strings.HasPrefix(record.entry.Name, "cron-job:") && (owner == "" || record.entry.Owner == owner) {
			matched = append(matched, record.view())
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	var items []types.CronEntry
	start := (page - 1) * pageSize
	for i := start; i < len(matched) && i < start+pageSize; i++ {
		items = append(items, matched[i])
	}
	return types.NewPaginationResult(items, len(matched), page, pageSize), nil
}

func (s *MemoryCronJobStore) Unschedule(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entries[name]
	if !ok {
		return false, nil
	}
	s.cron.Remove(record.entryID)
	delete(s.entries, name)
	return true, nil
}

func (s *MemoryCronJobStore) UnscheduleAll(_ context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for name, record := range s.entries {
		if record.entry.Owner == owner {
			s.cron.Remove(record.entryID)
			delete(s.entries, name)
			removed++
		}
	}
	return removed, nil
}

// Close stops the scheduler and waits for running deliveries.
func (s *MemoryCronJobStore) Close() error {
	<-s.cron.Stop().Done()
	return nil
}
