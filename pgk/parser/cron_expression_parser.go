// Package parser validates five-field cron expressions and computes their next run time.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/robfig/cron/v3"
)

// fieldCount is the number of fields accepted by pg_cron style expressions:
// minute, hour, day of month, month, day of week.
const fieldCount = 5

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a cron string like "*/5 0 1-10 * 1,3". Descriptors ("@hourly"),
// time zone prefixes and second fields are rejected.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if len(strings.Fields(expr)) != fieldCount {
		return nil, fmt.Errorf("%w: %q must have %d fields", custom_errors.ErrInvalidCronExpression, expr, fieldCount)
	}
	schedule, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", custom_errors.ErrInvalidCronExpression, expr, err)
	}
	return schedule, nil
}

// ValidateCron reports whether expr is a well-formed five-field expression.
func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// CalculateNextRun finds the first activation strictly after from.
func CalculateNextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := schedule.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", custom_errors.ErrInvalidCronExpression, expr)
	}
	return next, nil
}
