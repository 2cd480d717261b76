package parser

import (
	"testing"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCron(t *testing.T) {
	valid := []string{
		"* * * * *",
		"*/5 * * * *",
		"0 0 1 */3 *",
		"15 1 * * 1",
		"45 23 * * *",
		"0 3 * * 0",
		"1,2,5-7 0 1-10 * 1,3",
	}
	for _, expr := range valid {
		assert.NoError(t, ValidateCron(expr), expr)
	}

	invalid := []string{
		"",
		"* * * *",
		"* * * * * *",
		"@hourly",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"a b c d e",
		"TZ=UTC * * * *",
	}
	for _, expr := range invalid {
		err := ValidateCron(expr)
		assert.ErrorIs(t, err, custom_errors.ErrInvalidCronExpression, expr)
	}
}

func TestCalculateNextRun(t *testing.T) {
	from := time.Date(2025, 5, 10, 10, 30, 15, 0, time.UTC)

	tests := []struct {
		expr     string
		expected time.Time
	}{
		{expr: "* * * * *", expected: time.Date(2025, 5, 10, 10, 31, 0, 0, time.UTC)},
		{expr: "0 * * * *", expected: time.Date(2025, 5, 10, 11, 0, 0, 0, time.UTC)},
		{expr: "0 0 * * *", expected: time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC)},
		{expr: "0 0 1 * *", expected: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		next, err := CalculateNextRun(tt.expr, from)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.expected, next, tt.expr)
	}
}

func TestCalculateNextRun_Invalid(t *testing.T) {
	_, err := CalculateNextRun("invalid", time.Now())
	assert.ErrorIs(t, err, custom_errors.ErrInvalidCronExpression)
}
