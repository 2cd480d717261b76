package schedule

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/pgk/encryption"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		opts    Options
		want    error
	}{
		{"missing payload", nil, Options{}, custom_errors.ErrMissingPayload},
		{"null raw payload", json.RawMessage("null"), Options{}, custom_errors.ErrMissingPayload},
		{"repeat with retry", "x", Options{Repeat: &Repeat{Every: "1m"}, Retry: []any{10}}, custom_errors.ErrConflictingSchedule},
		{"every with cron", "x", Options{Repeat: &Repeat{Every: "1m", Cron: "* * * * *"}}, custom_errors.ErrConflictingSchedule},
		{"cron with delay", "x", Options{Delay: 10, Repeat: &Repeat{Cron: "* * * * *"}}, custom_errors.ErrConflictingSchedule},
		{"runAt with delay", "x", Options{Delay: 10, RunAt: at(time.Minute)}, custom_errors.ErrConflictingSchedule},
		{"empty retry", "x", Options{Retry: []any{}}, custom_errors.ErrRetryLimit},
		{"long retry", "x", Options{Retry: []any{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}}, custom_errors.ErrRetryLimit},
		{"bad retry entry", "x", Options{Retry: []any{"soon"}}, custom_errors.ErrInvalidDuration},
		{"zero retry entry", "x", Options{Retry: []any{0}}, custom_errors.ErrInvalidDuration},
		{"past runAt", "x", Options{RunAt: at(-time.Hour)}, custom_errors.ErrScheduleInPast},
		{"bad delay", "x", Options{Delay: "5 fortnights"}, custom_errors.ErrInvalidDuration},
		{"zero delay", "x", Options{Delay: 0}, custom_errors.ErrInvalidDuration},
		{"negative times", "x", Options{Repeat: &Repeat{Every: "1m", Times: -1}}, custom_errors.ErrInvalidRepeatTimes},
		{"bad every", "x", Options{Repeat: &Repeat{Every: "often"}}, custom_errors.ErrInvalidDuration},
		{"bad cron", "x", Options{Repeat: &Repeat{Cron: "* * *"}}, custom_errors.ErrInvalidCronExpression},
		{"empty repeat", "x", Options{Repeat: &Repeat{}}, custom_errors.ErrValidation},
		{"reserved id", "x", Options{ID: types.CronJobID}, custom_errors.ErrValidation},
		{"invalid raw payload", []byte("{nope"), Options{}, custom_errors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(now, tt.payload, tt.opts, nil)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, custom_errors.ErrValidation)
		})
	}
}

func TestNormalize_RulesApplyInOrder(t *testing.T) {
	// conflict is reported before the past runAt and the bad cron
	_, err := Normalize(now, nil, Options{RunAt: at(-time.Hour), Retry: []any{1}, Repeat: &Repeat{Cron: "bad"}}, nil)
	assert.ErrorIs(t, err, custom_errors.ErrMissingPayload)

	_, err = Normalize(now, "x", Options{RunAt: at(-time.Hour), Retry: []any{1}, Repeat: &Repeat{Every: 5}}, nil)
	assert.ErrorIs(t, err, custom_errors.ErrConflictingSchedule)

	_, err = Normalize(now, "x", Options{RunAt: at(-time.Hour), Retry: []any{"never"}}, nil)
	assert.ErrorIs(t, err, custom_errors.ErrInvalidDuration)
}

func TestNormalize_Delay(t *testing.T) {
	got, err := Normalize(now, map[string]string{"foo": "bar"}, Options{ID: "a", Delay: "5min", Retry: []any{"1s", 100}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "a", got.ID)
	assert.Equal(t, `{"foo":"bar"}`, got.Body)
	assert.Equal(t, types.KindDelay, got.Schedule.Kind)
	assert.Equal(t, int64(300_000), got.Schedule.DelayMs)
	assert.Equal(t, now.Add(5*time.Minute), got.Schedule.RunAt)
	assert.Equal(t, []int64{1000, 100}, got.Schedule.Retry)
	assert.False(t, got.Override)
}

func TestNormalize_DefaultsToImmediate(t *testing.T) {
	got, err := Normalize(now, json.RawMessage(` {"a":1} `), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Schedule.DelayMs)
	assert.Equal(t, now, got.Schedule.RunAt)
	assert.Equal(t, `{"a":1}`, got.Body)
}

func TestNormalize_RunAt(t *testing.T) {
	runAt := at(90 * time.Second)
	got, err := Normalize(now, "x", Options{RunAt: runAt}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), got.Schedule.DelayMs)
	assert.Equal(t, *runAt, got.Schedule.RunAt)

	// runAt equal to now is not in the past
	got, err = Normalize(now, "x", Options{RunAt: at(0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Schedule.DelayMs)
}

func TestNormalize_Every(t *testing.T) {
	got, err := Normalize(now, "x", Options{Repeat: &Repeat{Every: "1h", Times: 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.KindEvery, got.Schedule.Kind)
	assert.Equal(t, int64(3_600_000), got.Schedule.EveryMs)
	assert.Equal(t, 3, got.Schedule.Times)
	assert.Equal(t, now.Add(time.Hour), got.Schedule.RunAt)

	got, err = Normalize(now, "x", Options{Delay: 10, Repeat: &Repeat{Every: time.Minute}}, nil)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Millisecond), got.Schedule.RunAt)
	assert.Equal(t, 0, got.Schedule.Times)
}

func TestNormalize_Cron(t *testing.T) {
	got, err := Normalize(now, "x", Options{ID: "ignored", Repeat: &Repeat{Cron: "*/5 * * * *"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.KindCron, got.Schedule.Kind)
	assert.Equal(t, types.CronJobID, got.ID)
	assert.Equal(t, "*/5 * * * *", got.Schedule.Cron)
	assert.Equal(t, now.Add(5*time.Minute), got.Schedule.RunAt)
	assert.True(t, got.Override)
}

func TestNormalize_Encrypts(t *testing.T) {
	enc, err := encryption.New("01234567890123456789012345678901", nil)
	require.NoError(t, err)

	got, err := Normalize(now, map[string]string{"foo": "bar"}, Options{}, enc)
	require.NoError(t, err)
	assert.NotContains(t, got.Body, "foo")

	plain, err := enc.Decrypt(got.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar"}`, plain)
}

type failingEncrypter struct{}

func (failingEncrypter) Encrypt(string) (string, error) { return "", errors.New("boom") }

func TestNormalize_EncryptFailure(t *testing.T) {
	_, err := Normalize(now, "x", Options{}, failingEncrypter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NotErrorIs(t, err, custom_errors.ErrValidation)
}
