package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. All of these are recoverable and reported synchronously;
// none of them are allowed to take down the enforcement loop.
var (
	// ErrSessionActive is returned by start when a session already occupies
	// the active slot.
	ErrSessionActive = errors.New("session already active")

	// ErrSessionLocked is returned when stopping a locked session before
	// its natural expiry.
	ErrSessionLocked = errors.New("session is locked until expiry")

	// ErrInvalidTransition is returned by pause/resume calls the current
	// session state forbids.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrInvalidConfig is returned for malformed schedule or quota payloads,
	// before any state is persisted.
	ErrInvalidConfig = errors.New("invalid configuration")
)

func wrapInvalidConfig(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, reason)
}
