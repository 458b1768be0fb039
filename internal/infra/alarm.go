package infra

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"focusguard/internal/domain"
)

// TimerAlarms implements domain.AlarmScheduler over a table of one-shot
// timers keyed by id.
type TimerAlarms struct {
	logger *zap.Logger
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerAlarms creates an empty alarm table.
func NewTimerAlarms(logger *zap.Logger) *TimerAlarms {
	return &TimerAlarms{
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule registers fire to run at the given instant. Re-scheduling an
// existing id replaces the previous registration.
func (a *TimerAlarms) Schedule(id string, at time.Time, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.timers[id]; ok {
		t.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	a.timers[id] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.timers, id)
		a.mu.Unlock()
		fire()
	})

	a.logger.Debug("alarm scheduled",
		zap.String("id", id),
		zap.Time("at", at))
}

// Cancel drops a pending registration. Unknown ids are ignored.
func (a *TimerAlarms) Cancel(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.timers[id]; ok {
		t.Stop()
		delete(a.timers, id)
	}
}

// CancelAll drops every pending registration.
func (a *TimerAlarms) CancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
}

// Pending returns the ids of all registered alarms (for tests and status).
func (a *TimerAlarms) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.timers))
	for id := range a.timers {
		ids = append(ids, id)
	}
	return ids
}

// Ensure TimerAlarms implements domain.AlarmScheduler.
var _ domain.AlarmScheduler = (*TimerAlarms)(nil)
