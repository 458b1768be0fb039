// Package schedule turns recurring weekly block windows into concrete
// enforcement: it computes each window's next occurrence, registers a
// one-shot alarm for it, and materializes a focus session when it fires.
package schedule

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"focusguard/internal/domain"
	"focusguard/internal/state"
	"focusguard/internal/usecase"
)

// endAlarmSuffix marks the companion alarm registered at a materialized
// window's end, so a schedule-spawned session cannot outlive its window
// when the tick loop is not running.
const endAlarmSuffix = ":end"

// Materializer owns the schedule set and its alarm registrations.
type Materializer struct {
	store    *state.Store
	sessions *usecase.SessionEngine
	alarms   domain.AlarmScheduler
	clock    domain.Clock
	logger   *zap.Logger
}

// NewMaterializer creates a materializer.
func NewMaterializer(
	store *state.Store,
	sessions *usecase.SessionEngine,
	alarms domain.AlarmScheduler,
	clock domain.Clock,
	logger *zap.Logger,
) *Materializer {
	return &Materializer{
		store:    store,
		sessions: sessions,
		alarms:   alarms,
		clock:    clock,
		logger:   logger,
	}
}

// NextFire returns the next instant at or after now at which the
// schedule's start minute occurs on one of its weekdays, scanning forward
// day by day (today included when the time has not yet passed) up to a
// week out. ok is false for disabled schedules or an empty weekday set.
func NextFire(s domain.BlockSchedule, now time.Time) (at time.Time, ok bool) {
	if !s.Enabled {
		return time.Time{}, false
	}
	for d := 0; d <= 7; d++ {
		day := now.AddDate(0, 0, d)
		candidate := time.Date(day.Year(), day.Month(), day.Day(),
			s.StartMinute/60, s.StartMinute%60, 0, 0, now.Location())
		if candidate.Before(now) {
			continue
		}
		if s.OnWeekday(candidate.Weekday()) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// windowEnd returns the instant the schedule's window closes, relative to
// a moment inside the window. An overnight window (end < start) closes on
// the following day.
func windowEnd(s domain.BlockSchedule, at time.Time) time.Time {
	end := time.Date(at.Year(), at.Month(), at.Day(),
		s.EndMinute/60, s.EndMinute%60, 0, 0, at.Location())
	if !end.After(at) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// SetSchedules validates and installs a new schedule set. All previously
// registered alarms are canceled before the new set is installed, so stale
// or duplicate firings cannot occur. A malformed entry rejects the whole
// payload before anything is persisted.
func (m *Materializer) SetSchedules(schedules []domain.BlockSchedule) error {
	for i := range schedules {
		if err := schedules[i].Validate(); err != nil {
			return err
		}
	}

	previous, readErr := m.store.Schedules()

	m.alarms.CancelAll()
	if err := m.store.SaveSchedules(schedules); err != nil {
		// Restore the old registrations so enforcement keeps matching
		// what is actually persisted.
		if readErr == nil {
			m.armAll(previous)
		}
		m.rearmEndAlarm()
		return err
	}

	m.armAll(schedules)
	m.rearmEndAlarm()
	m.logger.Info("schedules installed", zap.Int("count", len(schedules)))
	return nil
}

// rearmEndAlarm restores the end alarm for the active session, which
// CancelAll dropped along with the schedule start alarms. Registered under
// the session id; for a paused session the frozen remaining time gives an
// early fire, which ExpireIfDue ignores.
func (m *Materializer) rearmEndAlarm() {
	session, err := m.sessions.Active()
	if err != nil || session == nil {
		return
	}
	now := m.clock.Now()
	m.alarms.Schedule(session.ID+endAlarmSuffix, now.Add(session.Remaining(now)), func() {
		if _, err := m.sessions.ExpireIfDue(); err != nil {
			m.logger.Warn("end alarm expiry failed", zap.Error(err))
		}
	})
}

// Rearm recomputes and registers the next occurrence for every persisted
// schedule. Called on daemon startup and after every firing.
func (m *Materializer) Rearm() error {
	schedules, err := m.store.Schedules()
	if err != nil {
		return err
	}
	m.armAll(schedules)
	return nil
}

func (m *Materializer) armAll(schedules []domain.BlockSchedule) {
	now := m.clock.Now()
	for _, s := range schedules {
		at, ok := NextFire(s, now)
		if !ok {
			continue
		}
		id := s.ID
		m.alarms.Schedule(id, at, func() { m.HandleFire(id) })
		m.logger.Debug("schedule armed",
			zap.String("id", id),
			zap.Time("next_fire", at))
	}
}

// HandleFire runs when a schedule's start alarm fires: it materializes a
// session covering the remainder of the window, unless one is already
// active, in which case the firing is dropped. Either way every schedule
// is re-armed for its next occurrence.
func (m *Materializer) HandleFire(scheduleID string) {
	now := m.clock.Now()

	schedules, err := m.store.Schedules()
	if err != nil {
		m.logger.Warn("schedule fire skipped, store read failed",
			zap.String("id", scheduleID),
			zap.Error(err))
		return
	}

	var fired *domain.BlockSchedule
	for i := range schedules {
		if schedules[i].ID == scheduleID {
			fired = &schedules[i]
			break
		}
	}

	if fired != nil && fired.InWindow(now) {
		m.materialize(*fired, now)
	}

	m.armAll(schedules)
}

func (m *Materializer) materialize(s domain.BlockSchedule, now time.Time) {
	end := windowEnd(s, now)
	durationMin := int(end.Sub(now).Round(time.Minute) / time.Minute)
	if durationMin <= 0 {
		return
	}

	session, err := m.sessions.Start(durationMin, s.Intensity, s.BlockedApps)
	if errors.Is(err, domain.ErrSessionActive) {
		// No queueing, no preemption: the firing is dropped.
		m.logger.Debug("schedule fire dropped, session already active",
			zap.String("schedule", s.ID))
		return
	}
	if err != nil {
		m.logger.Warn("schedule materialization failed",
			zap.String("schedule", s.ID),
			zap.Error(err))
		return
	}

	m.logger.Info("schedule materialized",
		zap.String("schedule", s.ID),
		zap.String("session", session.ID),
		zap.Int("duration_min", durationMin))

	// End alarm: force expiry at window close even if the tick loop is
	// not running then.
	m.alarms.Schedule(s.ID+endAlarmSuffix, end, func() {
		if _, err := m.sessions.ExpireIfDue(); err != nil {
			m.logger.Warn("end alarm expiry failed",
				zap.String("schedule", s.ID),
				zap.Error(err))
		}
	})
}

// NextOccurrences reports the next fire time per enabled schedule
// (for the status surface).
func (m *Materializer) NextOccurrences() (map[string]time.Time, error) {
	schedules, err := m.store.Schedules()
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	next := make(map[string]time.Time, len(schedules))
	for _, s := range schedules {
		if at, ok := NextFire(s, now); ok {
			next[s.ID] = at
		}
	}
	return next, nil
}
