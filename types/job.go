package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RezaEskandarii/quirrel/custom_errors"
)

// ScheduleKind is the canonical kind a normalized schedule resolves to.
type ScheduleKind string

const (
	KindDelay ScheduleKind = "delay" // one-off after a delay, optionally with a retry ladder
	KindEvery ScheduleKind = "every"
	KindCron  ScheduleKind = "cron"
)

func (k ScheduleKind) String() string {
	return string(k)
}

const (
	// CronJobID is the id every route's recurring cron job is exposed under.
	CronJobID = "@cron"

	// MaxNameLength bounds derived names to the durable scheduler's identifier limit.
	MaxNameLength = 64

	// MaxRetryEntries bounds the retry ladder.
	MaxRetryEntries = 10
)

// Schedule is the canonical descriptor produced by the normalizer.
type Schedule struct {
	Kind    ScheduleKind `json:"kind"`
	DelayMs int64        `json:"delayMs"`
	RunAt   time.Time    `json:"runAt"`
	EveryMs int64        `json:"everyMs,omitempty"`
	Times   int          `json:"times,omitempty"` // 0 means unbounded
	Cron    string       `json:"cron,omitempty"`
	Retry   []int64      `json:"retry,omitempty"`
}

// Job is the unit of schedulable work.
type Job struct {
	ID         string            `json:"id"`
	Route      string            `json:"route"`
	Name       string            `json:"name"`
	Owner      string            `json:"owner"`
	Body       string            `json:"body"`
	Endpoint   string            `json:"endpoint"`
	Headers    map[string]string `json:"headers,omitempty"`
	Schedule   Schedule          `json:"schedule"`
	Exclusive  bool              `json:"exclusive"`
	Count      int               `json:"count"`
	Active     bool              `json:"active"`
	RunAt      time.Time         `json:"runAt"`
	RegistryID int64             `json:"registryId"`
}

// NextRepetition returns when the job runs again after the current attempt succeeds,
// or false when this attempt is the last one.
func (j Job) NextRepetition(now time.Time) (time.Time, bool) {
	if j.Schedule.Kind != KindEvery {
		return time.Time{}, false
	}
	if j.Schedule.Times > 0 && j.Count >= j.Schedule.Times {
		return time.Time{}, false
	}
	return now.Add(time.Duration(j.Schedule.EveryMs) * time.Millisecond), true
}

// NextRetry returns the backoff before the next attempt after a failure, or false when
// the retry ladder is exhausted.
func (j Job) NextRetry() (time.Duration, bool) {
	step := j.Count - 1
	if step < 0 || step >= len(j.Schedule.Retry) {
		return 0, false
	}
	return time.Duration(j.Schedule.Retry[step]) * time.Millisecond, true
}

// NormalizeRoute returns route with exactly one leading slash and no trailing slash.
func NormalizeRoute(route string) (string, error) {
	route = strings.Trim(strings.TrimSpace(route), "/")
	if route == "" {
		return "", custom_errors.ErrInvalidRoute
	}
	return "/" + route, nil
}

// CronJobName derives the registry name of a route's recurring job.
func CronJobName(route string) string {
	return boundName("cron-job:" + route)
}

// JobName derives the registry name of a timer job.
func JobName(route, id string) string {
	return boundName("job:" + route + ":" + id)
}

// boundName keeps names within MaxNameLength. Longer names keep a prefix and end in
// a digest of the full name so two distinct names never collapse into one.
func boundName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := "~" + hex.EncodeToString(sum[:8])

	cut := MaxNameLength - len(suffix)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + suffix
}
