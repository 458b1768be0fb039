package usecase

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"focusguard/internal/domain"
	"focusguard/internal/state"
)

// QuotaTracker accumulates per-resource usage minutes for the current
// calendar day. The ledger resets lazily whenever its stored day marker
// differs from today's; there is no other unblock path for a breached
// quota than day rollover.
type QuotaTracker struct {
	store  *state.Store
	clock  domain.Clock
	logger *zap.Logger
	mu     sync.Mutex
}

// NewQuotaTracker creates a quota tracker.
func NewQuotaTracker(store *state.Store, clock domain.Clock, logger *zap.Logger) *QuotaTracker {
	return &QuotaTracker{store: store, clock: clock, logger: logger}
}

// SetConfig validates and persists the quota config. A malformed payload
// is rejected before persistence; prior state is unchanged.
func (t *QuotaTracker) SetConfig(cfg domain.DailyQuotaConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.SaveQuotaConfig(&cfg)
}

// Config returns the persisted quota config, or nil when unset.
func (t *QuotaTracker) Config() (*domain.DailyQuotaConfig, error) {
	return t.store.QuotaConfig()
}

// AddUsage adds minutes to today's ledger entry for the resource.
func (t *QuotaTracker) AddUsage(resourceID string, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: usage minutes must not be negative", domain.ErrInvalidConfig)
	}
	if minutes == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ledger, _, err := t.ledgerTodayLocked()
	if err != nil {
		return err
	}
	ledger.Minutes[resourceID] += minutes
	return t.store.SaveLedger(ledger)
}

// TotalToday returns today's accumulated minutes across all resources.
func (t *QuotaTracker) TotalToday() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ledger, err := t.readTodayLocked()
	if err != nil {
		return 0, err
	}
	return ledger.TotalMinutes(), nil
}

// UsageFor returns today's accumulated minutes for one resource.
func (t *QuotaTracker) UsageFor(resourceID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ledger, err := t.readTodayLocked()
	if err != nil {
		return 0, err
	}
	return ledger.Minutes[resourceID], nil
}

// Breached reports whether the quota blocks the resource: the quota is
// enabled, the resource is watched, and today's total has reached the limit.
func (t *QuotaTracker) Breached(resourceID string) (bool, error) {
	cfg, err := t.store.QuotaConfig()
	if err != nil {
		return false, err
	}
	if cfg == nil || !cfg.Enabled || !cfg.Watches(resourceID) {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ledger, err := t.readTodayLocked()
	if err != nil {
		return false, err
	}
	return ledger.TotalMinutes() >= cfg.LimitMinutes, nil
}

// ledgerTodayLocked loads the ledger, resetting it when the stored day
// marker differs from today's. The second return reports whether a reset
// happened (the caller decides whether to persist it).
func (t *QuotaTracker) ledgerTodayLocked() (*domain.UsageLedger, bool, error) {
	ledger, err := t.store.Ledger()
	if err != nil {
		return nil, false, err
	}
	day := domain.DayMarker(t.clock.Now())
	if ledger.Day != day {
		return &domain.UsageLedger{Day: day, Minutes: make(map[string]int)}, true, nil
	}
	return ledger, false, nil
}

// readTodayLocked is the read-path variant: it persists a lazy reset on a
// best-effort basis so reads stay usable when the store rejects writes.
func (t *QuotaTracker) readTodayLocked() (*domain.UsageLedger, error) {
	ledger, rolled, err := t.ledgerTodayLocked()
	if err != nil {
		return nil, err
	}
	if rolled {
		if err := t.store.SaveLedger(ledger); err != nil {
			t.logger.Warn("failed to persist ledger rollover", zap.Error(err))
		}
		t.logger.Info("usage ledger rolled over", zap.String("day", ledger.Day))
	}
	return ledger, nil
}
