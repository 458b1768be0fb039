// Package state implements typed persistence over the key-value store.
// Each record kind lives under its own key; no cross-key transactions.
package state

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"focusguard/internal/domain"
)

// Record keys. One record for the active session, one list-record for
// schedules, one each for quota config and the day's ledger, one bounded
// append list for history, one aggregate stats record.
const (
	keyActiveSession = "session/active"
	keySchedules     = "schedules"
	keyQuotaConfig   = "quota/config"
	keyUsageLedger   = "quota/ledger"
	keyHistory       = "history"
	keyStats         = "stats"
)

// DefaultHistoryLimit bounds the persisted completed-session list.
const DefaultHistoryLimit = 100

// Store wraps a KVStore with typed accessors for every record the
// enforcement core persists.
type Store struct {
	kv           domain.KVStore
	mu           sync.Mutex
	historyLimit int
}

// NewStore creates a typed store over kv.
func NewStore(kv domain.KVStore) *Store {
	return &Store{kv: kv, historyLimit: DefaultHistoryLimit}
}

// NewStoreWithHistoryLimit creates a typed store with a custom history cap.
func NewStoreWithHistoryLimit(kv domain.KVStore, limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Store{kv: kv, historyLimit: limit}
}

func (s *Store) getJSON(key string, out any) (bool, error) {
	data, err := s.kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// ActiveSession returns the session in the active slot, or nil when empty.
func (s *Store) ActiveSession() (*domain.FocusSession, error) {
	var session domain.FocusSession
	found, err := s.getJSON(keyActiveSession, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// SaveActiveSession writes the active slot.
func (s *Store) SaveActiveSession(session *domain.FocusSession) error {
	return s.setJSON(keyActiveSession, session)
}

// ClearActiveSession empties the active slot.
func (s *Store) ClearActiveSession() error {
	if err := s.kv.Remove(keyActiveSession); err != nil {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	return nil
}

// Schedules returns the persisted schedule list (empty when unset).
func (s *Store) Schedules() ([]domain.BlockSchedule, error) {
	var schedules []domain.BlockSchedule
	if _, err := s.getJSON(keySchedules, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// SaveSchedules replaces the persisted schedule list.
func (s *Store) SaveSchedules(schedules []domain.BlockSchedule) error {
	return s.setJSON(keySchedules, schedules)
}

// QuotaConfig returns the persisted quota config, or nil when unset.
func (s *Store) QuotaConfig() (*domain.DailyQuotaConfig, error) {
	var cfg domain.DailyQuotaConfig
	found, err := s.getJSON(keyQuotaConfig, &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

// SaveQuotaConfig replaces the persisted quota config.
func (s *Store) SaveQuotaConfig(cfg *domain.DailyQuotaConfig) error {
	return s.setJSON(keyQuotaConfig, cfg)
}

// Ledger returns the persisted usage ledger. A missing record yields an
// empty ledger with no day marker, which the tracker resets lazily.
func (s *Store) Ledger() (*domain.UsageLedger, error) {
	ledger := domain.UsageLedger{Minutes: make(map[string]int)}
	if _, err := s.getJSON(keyUsageLedger, &ledger); err != nil {
		return nil, err
	}
	if ledger.Minutes == nil {
		ledger.Minutes = make(map[string]int)
	}
	return &ledger, nil
}

// SaveLedger replaces the persisted usage ledger.
func (s *Store) SaveLedger(ledger *domain.UsageLedger) error {
	return s.setJSON(keyUsageLedger, ledger)
}

// History returns the bounded completed-session list, newest last.
func (s *Store) History() ([]domain.FocusSession, error) {
	var history []domain.FocusSession
	if _, err := s.getJSON(keyHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// AppendHistory appends a completed session, trimming the oldest entries
// beyond the history cap.
func (s *Store) AppendHistory(session domain.FocusSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.History()
	if err != nil {
		return err
	}
	history = append(history, session)
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}
	return s.setJSON(keyHistory, history)
}

// Stats returns the aggregate stats record (zero value when unset).
func (s *Store) Stats() (*domain.UserStats, error) {
	var stats domain.UserStats
	if _, err := s.getJSON(keyStats, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SaveStats replaces the aggregate stats record.
func (s *Store) SaveStats(stats *domain.UserStats) error {
	return s.setJSON(keyStats, stats)
}
