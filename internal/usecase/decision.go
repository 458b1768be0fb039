package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"focusguard/internal/domain"
	"focusguard/internal/state"
)

// DefaultSuppressionWindow tolerates rapid repeated foreground-change
// notifications from the same switch event: identical block verdicts for
// the same resource within the window do not re-trigger intervention.
const DefaultSuppressionWindow = time.Second

// DecisionEngine merges session, schedule and quota state into one
// authoritative block/allow verdict per observation. Blocking is a
// monotonic OR: any source blocking blocks, no source vetoes another.
type DecisionEngine struct {
	sessions    *SessionEngine
	quota       *QuotaTracker
	store       *state.Store
	clock       domain.Clock
	logger      *zap.Logger
	suppression time.Duration

	mu sync.Mutex
	// lastNotified anchors the suppression window at the last verdict that
	// actually notified; later blocked verdicts must not slide it, or rapid
	// relaunches would suppress intervention forever.
	lastNotified map[string]time.Time
}

// NewDecisionEngine creates a decision engine with the default
// re-trigger suppression window.
func NewDecisionEngine(
	sessions *SessionEngine,
	quota *QuotaTracker,
	store *state.Store,
	clock domain.Clock,
	logger *zap.Logger,
) *DecisionEngine {
	return NewDecisionEngineWithSuppression(sessions, quota, store, clock, logger, DefaultSuppressionWindow)
}

// NewDecisionEngineWithSuppression creates a decision engine with a custom
// suppression window (for tests).
func NewDecisionEngineWithSuppression(
	sessions *SessionEngine,
	quota *QuotaTracker,
	store *state.Store,
	clock domain.Clock,
	logger *zap.Logger,
	suppression time.Duration,
) *DecisionEngine {
	return &DecisionEngine{
		sessions:     sessions,
		quota:        quota,
		store:        store,
		clock:        clock,
		logger:       logger,
		suppression:  suppression,
		lastNotified: make(map[string]time.Time),
	}
}

// Decide computes the verdict for one foreground observation. The only
// state it mutates is the lazy expiry of an elapsed session (inside the
// session engine) and the suppression bookkeeping for Notify.
func (d *DecisionEngine) Decide(resourceID string, now time.Time) domain.Decision {
	if now.IsZero() {
		now = d.clock.Now()
	}

	block, source := d.evaluate(resourceID, now)
	if !block {
		return domain.Decision{}
	}

	d.mu.Lock()
	last, seen := d.lastNotified[resourceID]
	notify := !seen || now.Sub(last) >= d.suppression
	if notify {
		d.lastNotified[resourceID] = now
	}
	d.mu.Unlock()

	if notify {
		d.logger.Info("resource blocked",
			zap.String("resource", resourceID),
			zap.String("source", source))
	}

	return domain.Decision{Block: true, Source: source, Notify: notify}
}

// Check is the side-effect-free variant used by plain isBlocked queries:
// no suppression bookkeeping, just the verdict.
func (d *DecisionEngine) Check(resourceID string, now time.Time) bool {
	if now.IsZero() {
		now = d.clock.Now()
	}
	block, _ := d.evaluate(resourceID, now)
	return block
}

// evaluate ORs the three policy sources. A store read failure on this path
// degrades to "that source does not block", for safety of the enforcement
// loop; writes elsewhere still surface their errors.
func (d *DecisionEngine) evaluate(resourceID string, now time.Time) (bool, string) {
	blocking, err := d.sessions.IsBlocking(resourceID)
	if err != nil {
		d.logger.Warn("session read failed, assuming no active session", zap.Error(err))
	} else if blocking {
		return true, "session"
	}

	schedules, err := d.store.Schedules()
	if err != nil {
		d.logger.Warn("schedule read failed, assuming no schedule", zap.Error(err))
	} else {
		for i := range schedules {
			if schedules[i].BlocksAt(resourceID, now) {
				return true, "schedule"
			}
		}
	}

	breached, err := d.quota.Breached(resourceID)
	if err != nil {
		d.logger.Warn("quota read failed, assuming no breach", zap.Error(err))
	} else if breached {
		return true, "quota"
	}

	return false, ""
}
