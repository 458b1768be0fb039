package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focusguard/internal/domain"
	"focusguard/internal/state"
)

// DefaultStopCooldown is the wait a committed session imposes before an
// early stop counts as a deliberate choice rather than an impulsive one.
const DefaultStopCooldown = 30 * time.Second

// SessionEngine owns the single active focus session. Every mutating
// operation is serialized through one mutex: the foreground observer, the
// tick loop, alarm callbacks and user commands are independent producers
// racing on the same record.
type SessionEngine struct {
	store  *state.Store
	clock  domain.Clock
	events *Emitter
	logger *zap.Logger

	stopCooldown time.Duration

	mu sync.Mutex
}

// NewSessionEngine creates a session engine with the default stop cooldown.
func NewSessionEngine(store *state.Store, clock domain.Clock, events *Emitter, logger *zap.Logger) *SessionEngine {
	return NewSessionEngineWithCooldown(store, clock, events, logger, DefaultStopCooldown)
}

// NewSessionEngineWithCooldown creates a session engine with a custom
// committed-stop cooldown (for tests).
func NewSessionEngineWithCooldown(
	store *state.Store,
	clock domain.Clock,
	events *Emitter,
	logger *zap.Logger,
	stopCooldown time.Duration,
) *SessionEngine {
	return &SessionEngine{
		store:        store,
		clock:        clock,
		events:       events,
		logger:       logger,
		stopCooldown: stopCooldown,
	}
}

// Start creates and persists a new session. Fails with ErrSessionActive if
// one already occupies the active slot.
func (e *SessionEngine) Start(durationMinutes int, intensity domain.Intensity, resources []string) (*domain.FocusSession, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: session duration must be positive", domain.ErrInvalidConfig)
	}
	if !intensity.Valid() {
		return nil, fmt.Errorf("%w: unknown intensity %q", domain.ErrInvalidConfig, intensity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	active, err := e.activeLocked(now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrSessionActive
	}

	session := &domain.FocusSession{
		ID:              uuid.NewString(),
		StartedAt:       now,
		DurationMinutes: durationMinutes,
		Intensity:       intensity,
		BlockedApps:     append([]string(nil), resources...),
	}

	if err := e.store.SaveActiveSession(session); err != nil {
		return nil, err
	}

	e.logger.Info("session started",
		zap.String("id", session.ID),
		zap.Int("duration_min", durationMinutes),
		zap.String("intensity", string(intensity)),
		zap.Int("blocked_apps", len(session.BlockedApps)))

	e.events.Publish(domain.Event{
		Kind:      domain.EventSessionStarted,
		SessionID: session.ID,
		At:        now,
	})

	return session, nil
}

// Stop finalizes the active session. Under locked intensity an early stop
// with explicit=false fails with ErrSessionLocked. The session folds into
// history and stats only when it ran its intended course: natural expiry,
// or an explicit completion.
func (e *SessionEngine) Stop(explicit bool) (*domain.FocusSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	session, err := e.activeLocked(now)
	if err != nil {
		return nil, err
	}
	if session == nil {
		// No active session: not an error, empty result.
		return nil, nil
	}

	policy := domain.PolicyFor(session.Intensity)
	if policy.StopRule == domain.StopAtExpiry && !explicit {
		return nil, domain.ErrSessionLocked
	}

	completed := explicit || session.Expired(now)
	if err := e.finalizeLocked(session, now, completed); err != nil {
		return nil, err
	}
	return session, nil
}

// Pause suspends a flexible session. Any other state yields
// ErrInvalidTransition.
func (e *SessionEngine) Pause() (*domain.FocusSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	session, err := e.activeLocked(now)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no active session to pause", domain.ErrInvalidTransition)
	}
	if !domain.PolicyFor(session.Intensity).Pausable {
		return nil, fmt.Errorf("%w: %s sessions cannot be paused", domain.ErrInvalidTransition, session.Intensity)
	}
	if session.Paused {
		return nil, fmt.Errorf("%w: session already paused", domain.ErrInvalidTransition)
	}

	session.Paused = true
	session.PauseStartedAt = &now
	if err := e.store.SaveActiveSession(session); err != nil {
		return nil, err
	}

	e.logger.Info("session paused", zap.String("id", session.ID))
	e.events.Publish(domain.Event{
		Kind:      domain.EventSessionPaused,
		SessionID: session.ID,
		At:        now,
	})
	return session, nil
}

// Resume lifts a pause, folding the elapsed pause interval into the
// session's cumulative paused time so remaining time is preserved.
func (e *SessionEngine) Resume() (*domain.FocusSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	session, err := e.activeLocked(now)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no active session to resume", domain.ErrInvalidTransition)
	}
	if !session.Paused || session.PauseStartedAt == nil {
		return nil, fmt.Errorf("%w: session is not paused", domain.ErrInvalidTransition)
	}

	session.PausedTotal += now.Sub(*session.PauseStartedAt)
	session.Paused = false
	session.PauseStartedAt = nil
	if err := e.store.SaveActiveSession(session); err != nil {
		return nil, err
	}

	e.logger.Info("session resumed",
		zap.String("id", session.ID),
		zap.Duration("paused_total", session.PausedTotal))
	e.events.Publish(domain.Event{
		Kind:      domain.EventSessionResumed,
		SessionID: session.ID,
		At:        now,
	})
	return session, nil
}

// Active returns the current session, lazily completing it first when its
// remaining time has reached zero. Returns (nil, nil) when the slot is empty.
func (e *SessionEngine) Active() (*domain.FocusSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeLocked(e.clock.Now())
}

// IsBlocking reports whether an unpaused active session lists the resource.
func (e *SessionEngine) IsBlocking(resourceID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.activeLocked(e.clock.Now())
	if err != nil {
		return false, err
	}
	return session != nil && session.Blocks(resourceID), nil
}

// CanStop reports whether a stop would be accepted right now, and how long
// the caller must wait otherwise. For committed sessions the first query
// arms a cooldown countdown, recorded on the session record so it holds
// across process restarts; the engine reports the wait, it never blocks
// the stop call itself.
func (e *SessionEngine) CanStop() domain.StopVerdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	session, err := e.activeLocked(now)
	if err != nil || session == nil {
		return domain.StopVerdict{Allowed: false, Reason: "no_active_session"}
	}

	switch domain.PolicyFor(session.Intensity).StopRule {
	case domain.StopAnytime:
		return domain.StopVerdict{Allowed: true}

	case domain.StopAtExpiry:
		return domain.StopVerdict{
			Allowed:     false,
			Reason:      "locked",
			WaitSeconds: int(session.Remaining(now).Seconds()),
		}

	case domain.StopAfterCooldown:
		if session.StopRequestedAt == nil {
			session.StopRequestedAt = &now
			if err := e.store.SaveActiveSession(session); err != nil {
				e.logger.Warn("failed to persist stop request", zap.Error(err))
			}
		}
		wait := e.stopCooldown - now.Sub(*session.StopRequestedAt)
		if wait <= 0 {
			return domain.StopVerdict{Allowed: true}
		}
		return domain.StopVerdict{
			Allowed:     false,
			Reason:      "cooldown",
			WaitSeconds: int((wait + time.Second - 1) / time.Second),
		}
	}
	return domain.StopVerdict{Allowed: false, Reason: "unknown_intensity"}
}

// Tick emits one progress event for the active session and performs
// natural-expiry completion. Returns true only when a progress event was
// emitted: a missing, paused or just-completed session yields false so the
// drive loop emits nothing stale.
func (e *SessionEngine) Tick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	session, err := e.loadLocked()
	if err != nil {
		e.logger.Warn("tick skipped, store read failed", zap.Error(err))
		return false
	}
	if session == nil {
		return false
	}
	if session.Expired(now) {
		if err := e.finalizeLocked(session, now, true); err != nil {
			e.logger.Error("failed to complete expired session", zap.Error(err))
		}
		return false
	}
	if session.Paused {
		return false
	}

	e.events.Publish(domain.Event{
		Kind:             domain.EventTick,
		SessionID:        session.ID,
		RemainingSeconds: int(session.Remaining(now).Seconds()),
		Progress:         session.Progress(now),
		At:               now,
	})
	return true
}

// ExpireIfDue completes the active session if its remaining time has
// reached zero. Used by schedule end alarms and startup recovery.
func (e *SessionEngine) ExpireIfDue() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	session, err := e.loadLocked()
	if err != nil {
		return false, err
	}
	if session == nil || !session.Expired(now) {
		return false, nil
	}
	if err := e.finalizeLocked(session, now, true); err != nil {
		return false, err
	}
	return true, nil
}

// loadLocked reads the active slot without expiry side effects.
func (e *SessionEngine) loadLocked() (*domain.FocusSession, error) {
	return e.store.ActiveSession()
}

// activeLocked reads the active slot with lazy expiry: a session whose
// remaining time has reached zero is completed and treated as absent for
// the remainder of the evaluation.
func (e *SessionEngine) activeLocked(now time.Time) (*domain.FocusSession, error) {
	session, err := e.loadLocked()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	if session.Expired(now) {
		if err := e.finalizeLocked(session, now, true); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return session, nil
}

// finalizeLocked makes the session terminal, clears the active slot and,
// for sessions that ran their intended course, folds them into history and
// aggregate stats. Once completed is set every other mutator no-ops.
func (e *SessionEngine) finalizeLocked(session *domain.FocusSession, now time.Time, completed bool) error {
	if session.Completed {
		return nil
	}

	endAt := now
	if planned := session.StartedAt.Add(session.Duration() + session.PausedTotal); completed && planned.Before(now) && !session.Paused {
		// Natural expiry discovered late (lazy expiry, startup recovery):
		// the session ended when its time ran out, not when we noticed.
		endAt = planned
	}

	session.Completed = true
	session.Paused = false
	session.PauseStartedAt = nil
	session.EndedAt = &endAt

	if err := e.store.ClearActiveSession(); err != nil {
		return err
	}

	if completed {
		if err := e.store.AppendHistory(*session); err != nil {
			return err
		}
		stats, err := e.store.Stats()
		if err != nil {
			return err
		}
		stats.Fold(*session, domain.DayMarker(endAt))
		if err := e.store.SaveStats(stats); err != nil {
			return err
		}
	}

	e.logger.Info("session ended",
		zap.String("id", session.ID),
		zap.Bool("completed", completed))
	e.events.Publish(domain.Event{
		Kind:      domain.EventSessionEnded,
		SessionID: session.ID,
		Completed: completed,
		At:        endAt,
	})
	return nil
}
