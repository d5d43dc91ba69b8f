package services

import (
	"errors"
	"fmt"
	"time"

	"studio_gallery_server/internal/lifecycle"
	"studio_gallery_server/internal/presentation"
)

// Business outcomes callers are expected to branch on with errors.Is/As.
// Storage failures are returned wrapped and match none of these.
var (
	ErrNotFound           = errors.New("not found")
	ErrExpired            = errors.New("gallery link has expired")
	ErrInvalidPassword    = errors.New("invalid gallery password")
	ErrSessionRequired    = errors.New("gallery session required")
	ErrQuotaExceeded      = errors.New("selection quota exceeded")
	ErrSelectionClosed    = errors.New("selection is closed for this gallery")
	ErrTooManyAttempts    = errors.New("too many password attempts")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = lifecycle.ErrInvalidTransition
	ErrDownloadNotAllowed = presentation.ErrDownloadNotAllowed
	ErrAssetUnavailable   = presentation.ErrAssetUnavailable

	// ErrStaleState is returned by stores when a conditional status update
	// matched no row because the state changed underneath the caller.
	ErrStaleState = errors.New("state changed concurrently")
)

// QuotaExceededError carries the figures the client needs to show the
// remaining slots.
type QuotaExceededError struct {
	MaxSelections int
	Selected      int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("selection quota exceeded: %d of %d selected", e.Selected, e.MaxSelections)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Remaining is the number of free slots, clamped at zero for display
func (e *QuotaExceededError) Remaining() int {
	if r := e.MaxSelections - e.Selected; r > 0 {
		return r
	}
	return 0
}

// TooManyAttemptsError tells the client how long to wait before retrying
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many password attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *TooManyAttemptsError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
