package custom_errors

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of every scheduling input error. Validation errors are
// returned synchronously and never retried.
var ErrValidation = errors.New("validation error")

var (
	ErrMissingPayload        = fmt.Errorf("%w: payload is required", ErrValidation)
	ErrConflictingSchedule   = fmt.Errorf("%w: conflicting schedule options", ErrValidation)
	ErrRetryLimit            = fmt.Errorf("%w: retry accepts between 1 and 10 entries", ErrValidation)
	ErrInvalidDuration       = fmt.Errorf("%w: invalid duration", ErrValidation)
	ErrScheduleInPast        = fmt.Errorf("%w: runAt must not be in the past", ErrValidation)
	ErrInvalidRepeatTimes    = fmt.Errorf("%w: repeat.times must be >= 0", ErrValidation)
	ErrInvalidCronExpression = fmt.Errorf("%w: invalid cron expression", ErrValidation)
	ErrInvalidRoute          = fmt.Errorf("%w: route is required", ErrValidation)
)

// ErrAuthentication is the root of delivery authentication failures.
var ErrAuthentication = errors.New("authentication error")

var (
	ErrSignatureMissing = fmt.Errorf("%w: signature missing", ErrAuthentication)
	ErrSignatureInvalid = fmt.Errorf("%w: signature invalid", ErrAuthentication)
)

var (
	ErrInvalidSecret        = errors.New("encryption secret must be exactly 32 characters")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrRegistryUnavailable  = errors.New("registry unavailable")
	ErrCorruptRegistryEntry = errors.New("corrupt registry entry")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrHandler              = errors.New("handler error")
)

// HandlerError carries an error raised by user code during a delivery.
type HandlerError struct {
	Route string
	Err   error
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandler, e.Err}
}

// Unavailable wraps a backing store failure so callers can match ErrRegistryUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRegistryUnavailable) || errors.Is(err, ErrCorruptRegistryEntry) || errors.Is(err, ErrUnsupportedOperation) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrRegistryUnavailable, op, err)
}
