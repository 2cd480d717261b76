package duration

import (
	"testing"
	"time"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{name: "int", input: 1500, expected: 1500},
		{name: "int64", input: int64(42), expected: 42},
		{name: "float", input: 2.4, expected: 2},
		{name: "time.Duration", input: 3 * time.Second, expected: 3000},
		{name: "bare number string", input: "100", expected: 100},
		{name: "milliseconds", input: "250ms", expected: 250},
		{name: "seconds", input: "10s", expected: 10_000},
		{name: "minutes short", input: "5min", expected: 300_000},
		{name: "minutes single letter", input: "5m", expected: 300_000},
		{name: "hour", input: "1h", expected: 3_600_000},
		{name: "upper case", input: "1H", expected: 3_600_000},
		{name: "spaced long unit", input: "2 days", expected: 172_800_000},
		{name: "week", input: "1w", expected: 604_800_000},
		{name: "year", input: "1y", expected: 31_557_600_000},
		{name: "fraction", input: "1.5h", expected: 5_400_000},
		{name: "leading dot", input: ".5s", expected: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, ok, err := Resolve(tt.input)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.expected, ms)
		})
	}
}

func TestResolve_NotProvided(t *testing.T) {
	ms, ok, err := Resolve(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, ms)
}

func TestResolve_Invalid(t *testing.T) {
	for _, input := range []any{"", "soon", "5 fortnights", "1h30m", "--5s", struct{}{}} {
		_, ok, err := Resolve(input)
		assert.True(t, ok)
		assert.ErrorIs(t, err, custom_errors.ErrInvalidDuration, "%v", input)
		assert.ErrorIs(t, err, custom_errors.ErrValidation)
	}
}

func TestResolvePositive(t *testing.T) {
	ms, ok, err := ResolvePositive("1s")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), ms)

	for _, input := range []any{0, -1, "0ms", "-5s"} {
		_, _, err := ResolvePositive(input)
		assert.ErrorIs(t, err, custom_errors.ErrInvalidDuration, "%v", input)
	}

	_, ok, err = ResolvePositive(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
