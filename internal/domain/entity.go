// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Intensity is the commitment level of a focus session. It governs whether
// the session can be paused and how early stops are handled.
type Intensity string

const (
	// IntensityFlexible sessions can be paused, resumed and stopped freely.
	IntensityFlexible Intensity = "flexible"
	// IntensityCommitted sessions cannot be paused; stopping requires the
	// caller to sit out a cooldown first (see SessionEngine.CanStop).
	IntensityCommitted Intensity = "committed"
	// IntensityLocked sessions cannot be paused or stopped before expiry.
	IntensityLocked Intensity = "locked"
)

// StopRule describes how an intensity level treats early stop requests.
type StopRule string

const (
	StopAnytime       StopRule = "anytime"
	StopAfterCooldown StopRule = "after_cooldown"
	StopAtExpiry      StopRule = "at_expiry"
)

// IntensityPolicy is the behavior table for one intensity level.
type IntensityPolicy struct {
	Pausable bool
	StopRule StopRule
}

var intensityPolicies = map[Intensity]IntensityPolicy{
	IntensityFlexible:  {Pausable: true, StopRule: StopAnytime},
	IntensityCommitted: {Pausable: false, StopRule: StopAfterCooldown},
	IntensityLocked:    {Pausable: false, StopRule: StopAtExpiry},
}

// PolicyFor returns the behavior table entry for an intensity level.
func PolicyFor(i Intensity) IntensityPolicy {
	return intensityPolicies[i]
}

// Valid reports whether i is a known intensity level.
func (i Intensity) Valid() bool {
	_, ok := intensityPolicies[i]
	return ok
}

// FocusSession is an active, time-bounded enforcement interval.
// At most one FocusSession occupies the active slot at any time.
type FocusSession struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Intensity       Intensity  `json:"intensity"`
	BlockedApps     []string   `json:"blocked_apps"`
	Paused          bool       `json:"paused"`
	PauseStartedAt  *time.Time `json:"pause_started_at,omitempty"`
	// PausedTotal accumulates completed pause intervals, extending the
	// session end so remaining time is preserved across pauses.
	PausedTotal time.Duration `json:"paused_total"`
	// StopRequestedAt records when the committed-intensity stop cooldown
	// was armed. Persisted so the countdown survives process restarts.
	StopRequestedAt *time.Time `json:"stop_requested_at,omitempty"`
	Completed       bool       `json:"completed"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// Duration returns the intended session length.
func (s *FocusSession) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// plannedEnd is the instant the session expires naturally, accounting for
// pause time already folded into PausedTotal.
func (s *FocusSession) plannedEnd() time.Time {
	return s.StartedAt.Add(s.Duration() + s.PausedTotal)
}

// Remaining returns the time left until natural expiry, never negative.
// While paused the remaining time is frozen at the pause instant.
func (s *FocusSession) Remaining(now time.Time) time.Duration {
	ref := now
	if s.Paused && s.PauseStartedAt != nil {
		ref = *s.PauseStartedAt
	}
	rem := s.plannedEnd().Sub(ref)
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Progress returns completion in [0, 1].
func (s *FocusSession) Progress(now time.Time) float64 {
	total := s.Duration()
	if total <= 0 {
		return 1
	}
	p := 1 - float64(s.Remaining(now))/float64(total)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// Expired reports whether the session has run its full course.
func (s *FocusSession) Expired(now time.Time) bool {
	return s.Remaining(now) == 0
}

// Blocks reports whether this session currently blocks the resource.
// A paused session blocks nothing.
func (s *FocusSession) Blocks(resourceID string) bool {
	if s.Paused || s.Completed {
		return false
	}
	for _, app := range s.BlockedApps {
		if app == resourceID {
			return true
		}
	}
	return false
}

// BlockSchedule is a recurring weekly enforcement window. When the window
// opens on a configured weekday, a FocusSession covering the remainder of
// the window is materialized.
type BlockSchedule struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	StartMinute int            `json:"start_minute"` // minutes from midnight
	EndMinute   int            `json:"end_minute"`   // end < start means overnight
	Weekdays    []time.Weekday `json:"weekdays"`
	Intensity   Intensity      `json:"intensity"`
	BlockedApps []string       `json:"blocked_apps"`
	Enabled     bool           `json:"enabled"`
}

// Validate rejects malformed schedules before they reach persistence.
func (s *BlockSchedule) Validate() error {
	if s.ID == "" {
		return wrapInvalidConfig("schedule id is empty")
	}
	if s.StartMinute < 0 || s.StartMinute >= 24*60 {
		return wrapInvalidConfig("schedule start minute out of range")
	}
	if s.EndMinute < 0 || s.EndMinute >= 24*60 {
		return wrapInvalidConfig("schedule end minute out of range")
	}
	if s.StartMinute == s.EndMinute {
		return wrapInvalidConfig("schedule window is empty")
	}
	if len(s.Weekdays) == 0 {
		return wrapInvalidConfig("schedule has no weekdays")
	}
	for _, d := range s.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return wrapInvalidConfig("schedule weekday out of range")
		}
	}
	if !s.Intensity.Valid() {
		return wrapInvalidConfig("unknown intensity")
	}
	return nil
}

// OnWeekday reports whether d is one of the schedule's configured weekdays.
func (s *BlockSchedule) OnWeekday(d time.Weekday) bool {
	for _, w := range s.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// InWindow reports whether t falls inside the schedule's enforcement window.
// For an overnight window (end < start) the early-morning tail belongs to
// the weekday the window started on.
func (s *BlockSchedule) InWindow(t time.Time) bool {
	if !s.Enabled {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	if s.StartMinute < s.EndMinute {
		return s.OnWeekday(t.Weekday()) && minute >= s.StartMinute && minute < s.EndMinute
	}
	// Overnight: [start, midnight) belongs to the configured day,
	// [midnight, end) to the following day.
	if minute >= s.StartMinute {
		return s.OnWeekday(t.Weekday())
	}
	if minute < s.EndMinute {
		prev := (t.Weekday() + 6) % 7
		return s.OnWeekday(prev)
	}
	return false
}

// BlocksAt reports whether the schedule blocks the resource at time t.
func (s *BlockSchedule) BlocksAt(resourceID string, t time.Time) bool {
	if !s.InWindow(t) {
		return false
	}
	for _, app := range s.BlockedApps {
		if app == resourceID {
			return true
		}
	}
	return false
}

// DailyQuotaConfig caps accumulated daily usage across a watched resource set.
type DailyQuotaConfig struct {
	Enabled      bool     `json:"enabled"`
	LimitMinutes int      `json:"limit_minutes"`
	WatchedApps  []string `json:"watched_apps"`
	// ResetHour is persisted for forward compatibility but not honored:
	// rollover keys off the calendar-date marker in the usage ledger.
	ResetHour int `json:"reset_hour"`
}

// Validate rejects malformed quota configs before they reach persistence.
func (c *DailyQuotaConfig) Validate() error {
	if c.LimitMinutes < 0 {
		return wrapInvalidConfig("quota limit is negative")
	}
	if c.Enabled && c.LimitMinutes == 0 {
		return wrapInvalidConfig("enabled quota needs a positive limit")
	}
	if c.ResetHour < 0 || c.ResetHour > 23 {
		return wrapInvalidConfig("quota reset hour out of range")
	}
	return nil
}

// Watches reports whether the resource is in the quota's watched set.
func (c *DailyQuotaConfig) Watches(resourceID string) bool {
	for _, app := range c.WatchedApps {
		if app == resourceID {
			return true
		}
	}
	return false
}

// UsageLedger holds per-resource accumulated minutes for one calendar day.
// Day is a local-time "2006-01-02" marker used to detect rollover.
type UsageLedger struct {
	Day     string         `json:"day"`
	Minutes map[string]int `json:"minutes"`
}

// TotalMinutes sums usage across all resources for the ledger's day.
func (l *UsageLedger) TotalMinutes() int {
	total := 0
	for _, m := range l.Minutes {
		total += m
	}
	return total
}

// DayMarker formats t as a ledger day marker.
func DayMarker(t time.Time) string {
	return t.Format("2006-01-02")
}

// UserStats are aggregate counters over successfully completed sessions.
type UserStats struct {
	TotalSessions         int    `json:"total_sessions"`
	TotalMinutes          int    `json:"total_minutes"`
	LongestSessionMinutes int    `json:"longest_session_minutes"`
	StreakDays            int    `json:"streak_days"`
	LastCompletedDay      string `json:"last_completed_day"`
}

// Fold records one successfully completed session into the aggregates.
// day is the DayMarker of the completion instant.
func (st *UserStats) Fold(s FocusSession, day string) {
	st.TotalSessions++
	st.TotalMinutes += s.DurationMinutes
	if s.DurationMinutes > st.LongestSessionMinutes {
		st.LongestSessionMinutes = s.DurationMinutes
	}
	switch st.LastCompletedDay {
	case day:
		// Same day, streak unchanged.
	case previousDay(day):
		st.StreakDays++
	default:
		st.StreakDays = 1
	}
	st.LastCompletedDay = day
}

func previousDay(day string) string {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return ""
	}
	return DayMarker(t.AddDate(0, 0, -1))
}
