package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/internal/state"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu      sync.Mutex
	actions []types.HTTPAction
}

func (r *recordingRunner) Deliver(_ context.Context, action types.HTTPAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func cronEntry(route, url string) types.CronEntry {
	return types.CronEntry{
		Name:       types.CronJobName(route),
		Owner:      "instance-1",
		Route:      route,
		Expression: "* * * * *",
		Action:     types.NewPostAction(url, nil, `"{}"`),
	}
}

func TestMemoryCronJobStore_ScheduleReplaces(t *testing.T) {
	runner := &recordingRunner{}
	store := NewMemoryCronJobStore(runner, zerolog.Nop())
	defer store.Close()
	ctx := context.Background()

	_, err := store.Schedule(ctx, cronEntry("/jobs", "http://a/jobs"))
	require.NoError(t, err)
	id, err := store.Schedule(ctx, cronEntry("/jobs", "http://b/jobs"))
	require.NoError(t, err)

	page, err := store.List(ctx, "", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, id, page.Items[0].ID)
	assert.Equal(t, "http://b/jobs", page.Items[0].Action.URL)

	entries := store.cron.Entries()
	require.Len(t, entries, 1)
	entries[0].Job.Run()

	require.Len(t, runner.actions, 1)
	assert.Equal(t, "http://b/jobs", runner.actions[0].URL)
}

func TestMemoryCronJobStore_CountAdvancesPerFiring(t *testing.T) {
	runner := &recordingRunner{}
	store := NewMemoryCronJobStore(runner, zerolog.Nop())
	defer store.Close()
	ctx := context.Background()

	entry := cronEntry("/jobs", "http://a/jobs")
	meta, err := types.EncodeMeta(types.JobMeta{ID: types.CronJobID, Count: 1, Exclusive: true})
	require.NoError(t, err)
	entry.Action.Headers = map[string]string{types.MetaHeader: meta}
	_, err = store.Schedule(ctx, entry)
	require.NoError(t, err)

	entries := store.cron.Entries()
	require.Len(t, entries, 1)
	entries[0].Job.Run()
	entries[0].Job.Run()

	require.Len(t, runner.actions, 2)
	first := types.DecodeMeta(runner.actions[0].Headers[types.MetaHeader])
	second := types.DecodeMeta(runner.actions[1].Headers[types.MetaHeader])
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, types.CronJobID, second.ID)
	assert.True(t, second.Exclusive)

	found, err := store.FindByName(ctx, entry.Name)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 3, found.Job().Count)

	// replacing the entry starts counting again
	_, err = store.Schedule(ctx, entry)
	require.NoError(t, err)
	found, err = store.FindByName(ctx, entry.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, found.Job().Count)
}

func TestMemoryCronJobStore_InvalidExpression(t *testing.T) {
	store := NewMemoryCronJobStore(&recordingRunner{}, zerolog.Nop())
	defer store.Close()

	entry := cronEntry("/jobs", "http://a/jobs")
	entry.Expression = "@hourly"
	_, err := store.Schedule(context.Background(), entry)
	assert.ErrorIs(t, err, custom_errors.ErrInvalidCronExpression)
}

func TestMemoryCronJobStore_WithoutRunner(t *testing.T) {
	store := NewMemoryCronJobStore(nil, zerolog.Nop())
	defer store.Close()

	_, err := store.Schedule(context.Background(), cronEntry("/jobs", "http://a/jobs"))
	assert.ErrorIs(t, err, custom_errors.ErrUnsupportedOperation)
}

func TestMemoryCronJobStore_Unschedule(t *testing.T) {
	store := NewMemoryCronJobStore(&recordingRunner{}, zerolog.Nop())
	defer store.Close()
	ctx := context.Background()

	for _, route := range []string{"/a", "/b"} {
		_, err := store.Schedule(ctx, cronEntry(route, "http://app"+route))
		require.NoError(t, err)
	}
	other := cronEntry("/c", "http://app/c")
	other.Owner = "instance-2"
	_, err := store.Schedule(ctx, other)
	require.NoError(t, err)

	removed, err := store.Unschedule(ctx, types.CronJobName("/a"))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Unschedule(ctx, types.CronJobName("/a"))
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := store.UnscheduleAll(ctx, "instance-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := store.FindByName(ctx, types.CronJobName("/c"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, store.cron.Entries(), 1)
}

func TestMemoryEnqueuedJobStore_Lifecycle(t *testing.T) {
	store := NewMemoryEnqueuedJobStore()
	ctx := context.Background()
	now := time.Now()

	job := types.Job{
		ID:    "1",
		Route: "/emails",
		Name:  types.JobName("/emails", "1"),
		Owner: "instance-1",
		Body:  "a",
		RunAt: now.Add(-time.Millisecond),
	}
	stored, err := store.Insert(ctx, job, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Count)

	job.Body = "b"
	kept, err := store.Insert(ctx, job, false)
	require.NoError(t, err)
	assert.Equal(t, "a", kept.Body)

	due, err := store.FetchDueJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	ok, err := store.LockJob(ctx, job.Name, "w1")
	require.NoError(t, err)
	require.True(t, ok)

	// replaced while running: the holder can no longer touch the row
	_, err = store.Insert(ctx, job, true)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, job.Name, "w1"))

	found, err := store.FindByName(ctx, job.Name)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "b", found.Body)
	assert.True(t, found.Active)

	counts, err := store.CountAllJobsGroupedByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[state.StatusQueued])

	n, err := store.DeleteAll(ctx, "instance-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
