package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTimerAlarms_PastDeadlineFiresImmediately(t *testing.T) {
	alarms := NewTimerAlarms(zap.NewNop())
	defer alarms.CancelAll()

	fired := make(chan struct{})
	alarms.Schedule("past", time.Now().Add(-time.Hour), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("alarm with past deadline never fired")
	}
	assert.Empty(t, alarms.Pending())
}

func TestTimerAlarms_CancelPreventsFiring(t *testing.T) {
	alarms := NewTimerAlarms(zap.NewNop())
	defer alarms.CancelAll()

	fired := make(chan struct{}, 1)
	alarms.Schedule("soon", time.Now().Add(30*time.Millisecond), func() { fired <- struct{}{} })
	alarms.Cancel("soon")

	select {
	case <-fired:
		t.Fatal("canceled alarm fired")
	case <-time.After(150 * time.Millisecond):
	}
	assert.Empty(t, alarms.Pending())
}

func TestTimerAlarms_RescheduleReplaces(t *testing.T) {
	alarms := NewTimerAlarms(zap.NewNop())
	defer alarms.CancelAll()

	fired := make(chan string, 2)
	alarms.Schedule("a", time.Now().Add(time.Hour), func() { fired <- "first" })
	alarms.Schedule("a", time.Now().Add(20*time.Millisecond), func() { fired <- "second" })

	select {
	case which := <-fired:
		assert.Equal(t, "second", which)
	case <-time.After(time.Second):
		t.Fatal("rescheduled alarm never fired")
	}
	assert.Len(t, alarms.Pending(), 0)
}

func TestTimerAlarms_CancelAll(t *testing.T) {
	alarms := NewTimerAlarms(zap.NewNop())

	alarms.Schedule("a", time.Now().Add(time.Hour), func() {})
	alarms.Schedule("b", time.Now().Add(time.Hour), func() {})
	assert.Len(t, alarms.Pending(), 2)

	alarms.CancelAll()
	assert.Empty(t, alarms.Pending())
}
