package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

func TestIntensityPolicyTable(t *testing.T) {
	assert.True(t, PolicyFor(IntensityFlexible).Pausable)
	assert.Equal(t, StopAnytime, PolicyFor(IntensityFlexible).StopRule)

	assert.False(t, PolicyFor(IntensityCommitted).Pausable)
	assert.Equal(t, StopAfterCooldown, PolicyFor(IntensityCommitted).StopRule)

	assert.False(t, PolicyFor(IntensityLocked).Pausable)
	assert.Equal(t, StopAtExpiry, PolicyFor(IntensityLocked).StopRule)

	assert.True(t, IntensityFlexible.Valid())
	assert.False(t, Intensity("extreme").Valid())
}

func TestFocusSession_RemainingNonNegativeAndNonIncreasing(t *testing.T) {
	start := mustTime(t, "2025-06-02 09:00")
	s := FocusSession{StartedAt: start, DurationMinutes: 25}

	prev := s.Remaining(start)
	for _, offset := range []time.Duration{time.Minute, 10 * time.Minute, 25 * time.Minute, time.Hour} {
		rem := s.Remaining(start.Add(offset))
		assert.GreaterOrEqual(t, rem, time.Duration(0))
		assert.LessOrEqual(t, rem, prev)
		prev = rem
	}
	assert.Equal(t, time.Duration(0), s.Remaining(start.Add(2*time.Hour)))
}

func TestFocusSession_PauseFreezesRemaining(t *testing.T) {
	start := mustTime(t, "2025-06-02 09:00")
	pauseAt := start.Add(5 * time.Minute)
	s := FocusSession{
		StartedAt:       start,
		DurationMinutes: 25,
		Paused:          true,
		PauseStartedAt:  &pauseAt,
	}

	// Wall time keeps moving, remaining does not.
	assert.Equal(t, 20*time.Minute, s.Remaining(pauseAt))
	assert.Equal(t, 20*time.Minute, s.Remaining(pauseAt.Add(3*time.Hour)))

	// After resume the pause interval is folded into PausedTotal and the
	// same remaining time is measured against the wall clock again.
	resumeAt := pauseAt.Add(10 * time.Minute)
	s.Paused = false
	s.PauseStartedAt = nil
	s.PausedTotal = 10 * time.Minute
	assert.Equal(t, 20*time.Minute, s.Remaining(resumeAt))
}

func TestFocusSession_Blocks(t *testing.T) {
	s := FocusSession{
		StartedAt:       mustTime(t, "2025-06-02 09:00"),
		DurationMinutes: 25,
		BlockedApps:     []string{"steam", "discord"},
	}

	assert.True(t, s.Blocks("steam"))
	assert.False(t, s.Blocks("slack"))

	s.Paused = true
	assert.False(t, s.Blocks("steam"))

	s.Paused = false
	s.Completed = true
	assert.False(t, s.Blocks("steam"))
}

func TestBlockSchedule_Validate(t *testing.T) {
	valid := BlockSchedule{
		ID:          "evening",
		StartMinute: 20 * 60,
		EndMinute:   22 * 60,
		Weekdays:    []time.Weekday{time.Monday},
		Intensity:   IntensityCommitted,
		Enabled:     true,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*BlockSchedule)
	}{
		{"empty id", func(s *BlockSchedule) { s.ID = "" }},
		{"start out of range", func(s *BlockSchedule) { s.StartMinute = 24 * 60 }},
		{"end out of range", func(s *BlockSchedule) { s.EndMinute = -1 }},
		{"empty window", func(s *BlockSchedule) { s.EndMinute = s.StartMinute }},
		{"no weekdays", func(s *BlockSchedule) { s.Weekdays = nil }},
		{"bad intensity", func(s *BlockSchedule) { s.Intensity = "yolo" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.Weekdays = append([]time.Weekday(nil), valid.Weekdays...)
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidConfig)
		})
	}
}

func TestBlockSchedule_InWindowOvernight(t *testing.T) {
	s := BlockSchedule{
		ID:          "night",
		StartMinute: 23 * 60, // 23:00
		EndMinute:   7 * 60,  // 07:00 next day
		Weekdays:    []time.Weekday{time.Monday},
		Intensity:   IntensityLocked,
		Enabled:     true,
	}

	// 2025-06-02 is a Monday.
	assert.False(t, s.InWindow(mustTime(t, "2025-06-02 22:59")))
	assert.True(t, s.InWindow(mustTime(t, "2025-06-02 23:00")))
	assert.True(t, s.InWindow(mustTime(t, "2025-06-03 03:00"))) // Tuesday early morning
	assert.True(t, s.InWindow(mustTime(t, "2025-06-03 06:59")))
	assert.False(t, s.InWindow(mustTime(t, "2025-06-03 07:00")))
	// Wednesday early morning is the tail of Tuesday's window, which is
	// not configured.
	assert.False(t, s.InWindow(mustTime(t, "2025-06-04 03:00")))

	s.Enabled = false
	assert.False(t, s.InWindow(mustTime(t, "2025-06-02 23:30")))
}

func TestDailyQuotaConfig_Validate(t *testing.T) {
	assert.NoError(t, (&DailyQuotaConfig{Enabled: true, LimitMinutes: 60}).Validate())
	assert.ErrorIs(t, (&DailyQuotaConfig{LimitMinutes: -1}).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, (&DailyQuotaConfig{Enabled: true, LimitMinutes: 0}).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, (&DailyQuotaConfig{ResetHour: 24}).Validate(), ErrInvalidConfig)
}

func TestUserStats_FoldStreak(t *testing.T) {
	var stats UserStats
	session := FocusSession{DurationMinutes: 25}

	stats.Fold(session, "2025-06-02")
	assert.Equal(t, 1, stats.StreakDays)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 25, stats.TotalMinutes)

	// Next day extends the streak.
	stats.Fold(session, "2025-06-03")
	assert.Equal(t, 2, stats.StreakDays)

	// Same day leaves it alone.
	stats.Fold(FocusSession{DurationMinutes: 50}, "2025-06-03")
	assert.Equal(t, 2, stats.StreakDays)
	assert.Equal(t, 50, stats.LongestSessionMinutes)

	// A gap resets it.
	stats.Fold(session, "2025-06-06")
	assert.Equal(t, 1, stats.StreakDays)
	assert.Equal(t, 4, stats.TotalSessions)
}
