// Package schedule turns the options of an enqueue call into a canonical schedule and
// an encoded body. It performs no I/O besides the encrypter it is handed.
package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/pgk/duration"
	"github.com/RezaEskandarii/quirrel/pgk/parser"
	"github.com/RezaEskandarii/quirrel/types"
)

// Repeat makes a job recurring, either every interval (at most Times runs, 0 for no
// bound) or on a cron expression.
type Repeat struct {
	Every any
	Times int
	Cron  string
}

// Options are the scheduling inputs accepted on enqueue. Durations (Delay, Retry
// entries, Repeat.Every) take milliseconds as numbers, time.Duration values or strings
// such as "5min".
type Options struct {
	ID        string
	Exclusive bool
	Override  bool
	Retry     []any
	Delay     any
	RunAt     *time.Time
	Repeat    *Repeat
}

// Encrypter seals an encoded body before it is persisted.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Normalized is ready for registration.
type Normalized struct {
	ID        string
	Exclusive bool
	Override  bool
	Body      string
	Schedule  types.Schedule
}

// Normalize validates opts against now and encodes payload. Rules apply in a fixed
// order and the first violation is returned.
func Normalize(now time.Time, payload any, opts Options, enc Encrypter) (*Normalized, error) {
	body, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	if opts.Repeat != nil && len(opts.Retry) > 0 {
		return nil, fmt.Errorf("%w: repeat cannot be combined with retry", custom_errors.ErrConflictingSchedule)
	}
	if err := checkExclusiveKinds(opts); err != nil {
		return nil, err
	}

	retry, err := resolveRetry(opts.Retry)
	if err != nil {
		return nil, err
	}

	if opts.RunAt != nil && opts.RunAt.Before(now) {
		return nil, fmt.Errorf("%w: %s is before %s", custom_errors.ErrScheduleInPast,
			opts.RunAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	}

	var delayMs int64
	delayGiven := false
	switch {
	case opts.RunAt != nil:
		delayMs = opts.RunAt.Sub(now).Milliseconds()
		delayGiven = true
	default:
		delayMs, delayGiven, err = duration.ResolvePositive(opts.Delay)
		if err != nil {
			return nil, fmt.Errorf("delay: %w", err)
		}
	}

	sched := types.Schedule{
		Kind:    types.KindDelay,
		DelayMs: delayMs,
		RunAt:   now.Add(time.Duration(delayMs) * time.Millisecond),
		Retry:   retry,
	}
	if opts.RunAt != nil {
		sched.RunAt = *opts.RunAt
	}

	id := opts.ID
	if id == types.CronJobID {
		return nil, fmt.Errorf("%w: id %q is reserved for cron jobs", custom_errors.ErrValidation, id)
	}

	if opts.Repeat != nil {
		if opts.Repeat.Times < 0 {
			return nil, fmt.Errorf("%w: got %d", custom_errors.ErrInvalidRepeatTimes, opts.Repeat.Times)
		}

		switch {
		case opts.Repeat.Cron != "":
			next, err := parser.CalculateNextRun(opts.Repeat.Cron, now)
			if err != nil {
				return nil, err
			}
			sched.Kind = types.KindCron
			sched.Cron = opts.Repeat.Cron
			sched.RunAt = next
			sched.DelayMs = next.Sub(now).Milliseconds()
			id = types.CronJobID

		default:
			everyMs, ok, err := duration.ResolvePositive(opts.Repeat.Every)
			if err != nil {
				return nil, fmt.Errorf("repeat.every: %w", err)
			}
			if !ok {
				return nil, fmt.Errorf("%w: repeat needs every or cron", custom_errors.ErrValidation)
			}
			sched.Kind = types.KindEvery
			sched.EveryMs = everyMs
			sched.Times = opts.Repeat.Times
			if !delayGiven {
				sched.DelayMs = everyMs
				sched.RunAt = now.Add(time.Duration(everyMs) * time.Millisecond)
			}
		}
	}

	if enc != nil {
		body, err = enc.Encrypt(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}
	}

	return &Normalized{
		ID:        id,
		Exclusive: opts.Exclusive,
		Override:  opts.Override || sched.Kind == types.KindCron,
		Body:      body,
		Schedule:  sched,
	}, nil
}

// checkExclusiveKinds rejects combinations that name two different first runs.
func checkExclusiveKinds(opts Options) error {
	if opts.RunAt != nil && opts.Delay != nil {
		return fmt.Errorf("%w: runAt cannot be combined with delay", custom_errors.ErrConflictingSchedule)
	}
	if opts.Repeat == nil || opts.Repeat.Cron == "" {
		return nil
	}
	if opts.Repeat.Every != nil {
		return fmt.Errorf("%w: repeat.every cannot be combined with repeat.cron", custom_errors.ErrConflictingSchedule)
	}
	if opts.RunAt != nil || opts.Delay != nil {
		return fmt.Errorf("%w: repeat.cron cannot be combined with delay or runAt", custom_errors.ErrConflictingSchedule)
	}
	return nil
}

func resolveRetry(entries []any) ([]int64, error) {
	if entries == nil {
		return nil, nil
	}
	if len(entries) == 0 || len(entries) > types.MaxRetryEntries {
		return nil, fmt.Errorf("%w: got %d", custom_errors.ErrRetryLimit, len(entries))
	}
	retry := make([]int64, 0, len(entries))
	for i, entry := range entries {
		ms, ok, err := duration.ResolvePositive(entry)
		if err != nil {
			return nil, fmt.Errorf("retry[%d]: %w", i, err)
		}
		if !ok {
			return nil, fmt.Errorf("retry[%d]: %w: value is missing", i, custom_errors.ErrInvalidDuration)
		}
		retry = append(retry, ms)
	}
	return retry, nil
}

// encodePayload renders payload as JSON. Raw JSON ([]byte or json.RawMessage) is kept
// verbatim once it is known to be valid.
func encodePayload(payload any) (string, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return "", custom_errors.ErrMissingPayload
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: payload: %v", custom_errors.ErrValidation, err)
		}
		raw = encoded
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", custom_errors.ErrMissingPayload
	}
	if !json.Valid(trimmed) {
		return "", fmt.Errorf("%w: payload is not valid JSON", custom_errors.ErrValidation)
	}
	return string(trimmed), nil
}
