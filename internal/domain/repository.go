package domain

import (
	"context"
	"time"
)

// KVStore is durable key-value persistence. Each record is independently
// serialized; no cross-key transactions are required.
// Implementation: SQLCipher-encrypted SQLite database.
type KVStore interface {
	// Get returns the stored bytes, or (nil, nil) when the key is absent.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(key string) error

	// Close releases the underlying database connection.
	Close() error
}

// Clock abstracts "now" so engines can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
}

// AlarmScheduler is the OS-level one-shot timer facility: fire once at an
// absolute time, identified and cancelable by id.
type AlarmScheduler interface {
	// Schedule registers fire to run at the given instant. Re-scheduling
	// an existing id replaces the previous registration.
	Schedule(id string, at time.Time, fire func())

	// Cancel drops a pending registration. Unknown ids are ignored.
	Cancel(id string)

	// CancelAll drops every pending registration.
	CancelAll()
}

// ForegroundEvent is one observation from the foreground-change collaborator.
type ForegroundEvent struct {
	ResourceID string
	At         time.Time
}

// ForegroundObserver delivers foreground-change observations.
// Implementation: gopsutil process poller.
type ForegroundObserver interface {
	// Run blocks, delivering events until the context is canceled.
	Run(ctx context.Context) error

	// Events returns the observation stream.
	Events() <-chan ForegroundEvent
}

// EventKind identifies a lifecycle or progress event.
type EventKind string

const (
	EventSessionStarted EventKind = "session_started"
	EventSessionEnded   EventKind = "session_ended"
	EventSessionPaused  EventKind = "session_paused"
	EventSessionResumed EventKind = "session_resumed"
	EventTick           EventKind = "tick"
	EventBlocked        EventKind = "blocked"
)

// Event is one entry on the outbound event stream.
type Event struct {
	Kind       EventKind
	SessionID  string
	ResourceID string
	// Completed is set on EventSessionEnded when the session ran its
	// intended course.
	Completed        bool
	RemainingSeconds int
	Progress         float64
	At               time.Time
}

// Decision is the enforcement verdict for one observation.
type Decision struct {
	Block bool
	// Source names the policy source that blocked: session, schedule, quota.
	Source string
	// Notify is false when an identical block verdict for the same resource
	// fired within the suppression window.
	Notify bool
}

// StopVerdict is the answer to "may the active session be stopped right now".
type StopVerdict struct {
	Allowed     bool
	Reason      string
	WaitSeconds int
}
