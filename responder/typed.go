package responder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RezaEskandarii/quirrel/types"
)

// Typed decodes the payload into T before calling fn.
func Typed[T any](fn func(ctx context.Context, payload T, meta types.JobMeta) error) Handler {
	return func(ctx context.Context, payload string, meta types.JobMeta) error {
		var value T
		if err := json.Unmarshal([]byte(payload), &value); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
		return fn(ctx, value, meta)
	}
}
