// Package duration converts millisecond counts and human readable durations
// ("5min", "1h", "2 days") into milliseconds.
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
)

const (
	second = int64(1000)
	minute = 60 * second
	hour   = 60 * minute
	day    = 24 * hour
	week   = 7 * day
	year   = int64(31_557_600_000) // 365.25 days
)

var grammar = regexp.MustCompile(`(?i)^(-?(?:\d+)?\.?\d+) *(milliseconds?|msecs?|ms|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|w|years?|yrs?|y)?$`)

// Resolve returns v in milliseconds. ok is false when v was not provided (nil).
// Numbers are taken as milliseconds, time.Duration values are converted, and strings
// must match <magnitude>[ ]<unit>; a string without a unit is milliseconds.
func Resolve(v any) (ms int64, ok bool, err error) {
	switch value := v.(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(value), true, nil
	case int8:
		return int64(value), true, nil
	case int16:
		return int64(value), true, nil
	case int32:
		return int64(value), true, nil
	case int64:
		return value, true, nil
	case uint:
		return int64(value), true, nil
	case uint8:
		return int64(value), true, nil
	case uint16:
		return int64(value), true, nil
	case uint32:
		return int64(value), true, nil
	case uint64:
		if value > math.MaxInt64 {
			return 0, true, fmt.Errorf("%w: %d overflows", custom_errors.ErrInvalidDuration, value)
		}
		return int64(value), true, nil
	case float32:
		return fromFloat(float64(value))
	case float64:
		return fromFloat(value)
	case time.Duration:
		return value.Milliseconds(), true, nil
	case string:
		ms, err := parse(value)
		return ms, true, err
	default:
		return 0, true, fmt.Errorf("%w: unsupported type %T", custom_errors.ErrInvalidDuration, v)
	}
}

// ResolvePositive is Resolve with the additional rule that a provided value must be at
// least one millisecond.
func ResolvePositive(v any) (int64, bool, error) {
	ms, ok, err := Resolve(v)
	if err != nil || !ok {
		return ms, ok, err
	}
	if ms < 1 {
		return 0, true, fmt.Errorf("%w: %v must be at least 1ms", custom_errors.ErrInvalidDuration, v)
	}
	return ms, true, nil
}

func fromFloat(f float64) (int64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0, true, fmt.Errorf("%w: %v", custom_errors.ErrInvalidDuration, f)
	}
	return int64(math.Round(f)), true, nil
}

func parse(s string) (int64, error) {
	match := grammar.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return 0, fmt.Errorf("%w: %q", custom_errors.ErrInvalidDuration, s)
	}

	n, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", custom_errors.ErrInvalidDuration, s)
	}

	ms, _, err := fromFloat(n * float64(unit(strings.ToLower(match[2]))))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", custom_errors.ErrInvalidDuration, s)
	}
	return ms, nil
}

func unit(u string) int64 {
	switch u {
	case "years", "year", "yrs", "yr", "y":
		return year
	case "weeks", "week", "w":
		return week
	case "days", "day", "d":
		return day
	case "hours", "hour", "hrs", "hr", "h":
		return hour
	case "minutes", "minute", "mins", "min", "m":
		return minute
	case "seconds", "second", "secs", "sec", "s":
		return second
	default:
		return 1
	}
}
