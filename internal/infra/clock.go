package infra

import (
	"time"

	"focusguard/internal/domain"
)

// SystemClock implements domain.Clock over the wall clock.
type SystemClock struct{}

// NewSystemClock creates a wall-clock source.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Ensure SystemClock implements domain.Clock.
var _ domain.Clock = SystemClock{}
