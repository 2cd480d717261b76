package types

import (
	"strings"
	"testing"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoute(t *testing.T) {
	for input, expected := range map[string]string{
		"jobs":          "/jobs",
		"/jobs":         "/jobs",
		"/jobs/":        "/jobs",
		" api/queues/x": "/api/queues/x",
	} {
		route, err := NormalizeRoute(input)
		require.NoError(t, err)
		assert.Equal(t, expected, route)
	}

	_, err := NormalizeRoute(" / ")
	assert.ErrorIs(t, err, custom_errors.ErrInvalidRoute)
}

func TestDerivedNames(t *testing.T) {
	assert.Equal(t, "cron-job:/jobs", CronJobName("/jobs"))
	assert.Equal(t, "job:/jobs:42", JobName("/jobs", "42"))
	assert.Equal(t, "cron-job:/jobs", ByRouteCron("/jobs").Name())
	assert.Equal(t, "job:/jobs:42", ByID("/jobs", "42").Name())
}

func TestDerivedNames_Bounded(t *testing.T) {
	route := "/" + strings.Repeat("a", 80)
	first := JobName(route, "1")
	second := JobName(route, "2")

	assert.LessOrEqual(t, len(first), MaxNameLength)
	assert.LessOrEqual(t, len(second), MaxNameLength)
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, JobName(route, "1"))
	assert.True(t, strings.HasPrefix(first, "job:/aaa"))

	multiByte := "/" + strings.Repeat("é", 40)
	name := CronJobName(multiByte)
	assert.LessOrEqual(t, len(name), MaxNameLength)
	assert.True(t, strings.HasPrefix(name, "cron-job:/é"))
	assert.NotContains(t, name, "�")
}

func TestParseReference(t *testing.T) {
	ref := ParseReference("/jobs", CronJobID)
	assert.True(t, ref.IsCron())
	assert.True(t, ref.Valid())
	assert.Equal(t, "/jobs", ref.Route())

	ref = ParseReference("/jobs", "abc")
	assert.False(t, ref.IsCron())
	assert.Equal(t, "abc", ref.ID())

	assert.False(t, JobReference{}.Valid())
}

func TestMetaRoundTrip(t *testing.T) {
	next := int64(1_700_000_000_000)
	header, err := EncodeMeta(JobMeta{ID: "a", Count: 2, Retry: []int64{10, 20}, NextRepetition: &next, Exclusive: true})
	require.NoError(t, err)

	meta := DecodeMeta(header)
	assert.Equal(t, "a", meta.ID)
	assert.Equal(t, 2, meta.Count)
	assert.Equal(t, []int64{10, 20}, meta.Retry)
	require.NotNil(t, meta.NextRepetition)
	assert.Equal(t, next, *meta.NextRepetition)
	assert.True(t, meta.Exclusive)

	header, err = EncodeMeta(JobMeta{ID: "b", Count: 1})
	require.NoError(t, err)
	assert.Contains(t, header, `"retry":[]`)
	assert.Contains(t, header, `"nextRepetition":null`)
}

func TestDecodeMeta_Defaults(t *testing.T) {
	assert.Equal(t, JobMeta{}, DecodeMeta(""))
	assert.Equal(t, JobMeta{}, DecodeMeta("{not json"))
}

func TestDeliveryBodyEnvelope(t *testing.T) {
	for _, stored := range []string{`{"foo":"bar"}`, "abc_-123", `<&>`, ""} {
		wire, err := EncodeDeliveryBody(stored)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(wire, `"`))

		decoded, ok := UnwrapDeliveryBody([]byte(wire))
		require.True(t, ok)
		assert.Equal(t, stored, decoded)
	}

	wire, err := EncodeDeliveryBody(`<&>`)
	require.NoError(t, err)
	assert.Equal(t, `"<&>"`, wire)

	for _, raw := range []string{`{"foo":"bar"}`, "abc_-123", `"unterminated`, ""} {
		_, ok := UnwrapDeliveryBody([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestJobNextRepetition(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	job := Job{Count: 1, Schedule: Schedule{Kind: KindEvery, EveryMs: 1000, Times: 2}}
	next, ok := job.NextRepetition(now)
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Second), next)

	job.Count = 2
	_, ok = job.NextRepetition(now)
	assert.False(t, ok)

	job.Schedule.Times = 0
	job.Count = 500
	_, ok = job.NextRepetition(now)
	assert.True(t, ok)

	_, ok = Job{Count: 1, Schedule: Schedule{Kind: KindDelay}}.NextRepetition(now)
	assert.False(t, ok)
}

func TestJobNextRetry(t *testing.T) {
	job := Job{Count: 1, Schedule: Schedule{Kind: KindDelay, Retry: []int64{100, 200}}}

	backoff, ok := job.NextRetry()
	assert.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, backoff)

	job.Count = 2
	backoff, ok = job.NextRetry()
	assert.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, backoff)

	job.Count = 3
	_, ok = job.NextRetry()
	assert.False(t, ok)
}

func TestCronEntryJob(t *testing.T) {
	header, err := EncodeMeta(JobMeta{ID: CronJobID, Count: 1, Exclusive: true})
	require.NoError(t, err)
	wire, err := EncodeDeliveryBody(`{"foo":"bar"}`)
	require.NoError(t, err)

	entry := CronEntry{
		ID:         7,
		Name:       CronJobName("/jobs"),
		Route:      "/jobs",
		Expression: "* * * * *",
		Action:     NewPostAction("https://app.test/jobs", map[string]string{MetaHeader: header}, wire),
		Active:     true,
	}

	job := entry.Job()
	assert.Equal(t, CronJobID, job.ID)
	assert.Equal(t, `{"foo":"bar"}`, job.Body)
	assert.Equal(t, "https://app.test/jobs", job.Endpoint)
	assert.Equal(t, KindCron, job.Schedule.Kind)
	assert.Equal(t, "* * * * *", job.Schedule.Cron)
	assert.True(t, job.Exclusive)
	assert.Equal(t, int64(7), job.RegistryID)
	assert.Equal(t, 1, job.Count)
}

func TestNewPaginationResult(t *testing.T) {
	page := NewPaginationResult([]int{1, 2}, 5, 1, 2)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.False(t, page.HasPreviousPage)

	last := NewPaginationResult[int](nil, 5, 3, 2)
	assert.NotNil(t, last.Items)
	assert.False(t, last.HasNextPage)
	assert.True(t, last.HasPreviousPage)
}

func TestHTTPActionWithMetaCount(t *testing.T) {
	header, err := EncodeMeta(JobMeta{ID: CronJobID, Count: 1, Exclusive: true})
	require.NoError(t, err)
	action := NewPostAction("https://app.test/jobs", map[string]string{MetaHeader: header, "x-extra": "1"}, `"{}"`)

	next, err := action.WithMetaCount(4)
	require.NoError(t, err)

	meta := DecodeMeta(next.Headers[MetaHeader])
	assert.Equal(t, 4, meta.Count)
	assert.Equal(t, CronJobID, meta.ID)
	assert.True(t, meta.Exclusive)
	assert.Equal(t, "1", next.Headers["x-extra"])
	assert.Equal(t, header, action.Headers[MetaHeader])
}
