//go:build integration

package integration

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"focusguard/internal/domain"
	"focusguard/internal/infra"
	"focusguard/internal/schedule"
	"focusguard/internal/state"
	"focusguard/internal/usecase"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingAlarms registers alarms without running timers, so specs can
// deliver firings at manual-clock instants.
type recordingAlarms struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
}

func newRecordingAlarms() *recordingAlarms {
	return &recordingAlarms{scheduled: make(map[string]time.Time)}
}

func (a *recordingAlarms) Schedule(id string, at time.Time, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduled[id] = at
}

func (a *recordingAlarms) Cancel(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.scheduled, id)
}

func (a *recordingAlarms) CancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduled = make(map[string]time.Time)
}

var _ domain.AlarmScheduler = (*recordingAlarms)(nil)

var _ = Describe("Enforcement Core", func() {
	var (
		store     *state.Store
		clock     *manualClock
		sessions  *usecase.SessionEngine
		quota     *usecase.QuotaTracker
		decisions *usecase.DecisionEngine
	)

	BeforeEach(func() {
		// 2025-06-02 09:00 is a Monday morning.
		start, err := time.Parse("2006-01-02 15:04", "2025-06-02 09:00")
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		store = state.NewStore(infra.NewMemoryStore())
		clock = &manualClock{now: start}
		sessions = usecase.NewSessionEngine(store, clock, usecase.NewEmitter(64, logger), logger)
		quota = usecase.NewQuotaTracker(store, clock, logger)
		decisions = usecase.NewDecisionEngine(sessions, quota, store, clock, logger)
	})

	Describe("a flexible focus session end to end", func() {
		It("blocks, pauses, resumes, and expires on the tick loop", func() {
			_, err := sessions.Start(25, domain.IntensityFlexible, []string{"x"})
			Expect(err).NotTo(HaveOccurred())

			Expect(decisions.Decide("x", clock.Now()).Block).To(BeTrue())
			Expect(decisions.Decide("mail", clock.Now()).Block).To(BeFalse())

			By("pausing lifts the block")
			_, err = sessions.Pause()
			Expect(err).NotTo(HaveOccurred())
			Expect(decisions.Decide("x", clock.Now()).Block).To(BeFalse())

			By("the pause freezes remaining time")
			clock.Advance(10 * time.Minute)
			_, err = sessions.Resume()
			Expect(err).NotTo(HaveOccurred())
			Expect(decisions.Decide("x", clock.Now()).Block).To(BeTrue())

			By("ticking until the full 25 focus minutes have elapsed")
			clock.Advance(24 * time.Minute)
			Expect(sessions.Tick()).To(BeTrue())

			clock.Advance(time.Minute)
			sessions.Tick()

			active, err := sessions.Active()
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeNil())
			Expect(decisions.Decide("x", clock.Now()).Block).To(BeFalse())

			By("the completed session lands in history and stats")
			history, err := store.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(1))
			Expect(history[0].Completed).To(BeTrue())

			stats, err := store.Stats()
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalSessions).To(Equal(1))
			Expect(stats.TotalMinutes).To(Equal(25))
		})
	})

	Describe("a locked session", func() {
		It("refuses to stop before expiry", func() {
			_, err := sessions.Start(45, domain.IntensityLocked, []string{"steam"})
			Expect(err).NotTo(HaveOccurred())

			_, err = sessions.Stop(false)
			Expect(err).To(MatchError(domain.ErrSessionLocked))

			verdict := sessions.CanStop()
			Expect(verdict.Allowed).To(BeFalse())
			Expect(verdict.WaitSeconds).To(BeNumerically(">", 0))

			clock.Advance(45 * time.Minute)
			_, err = sessions.Stop(false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("cannot be paused", func() {
			_, err := sessions.Start(45, domain.IntensityLocked, []string{"steam"})
			Expect(err).NotTo(HaveOccurred())

			_, err = sessions.Pause()
			Expect(err).To(MatchError(domain.ErrInvalidTransition))
		})
	})

	Describe("schedule materialization through alarms", func() {
		It("spawns a locked session covering an overnight window", func() {
			logger := zap.NewNop()
			alarms := newRecordingAlarms()
			mat := schedule.NewMaterializer(store, sessions, alarms, clock, logger)

			err := mat.SetSchedules([]domain.BlockSchedule{{
				ID:          "night",
				StartMinute: 23 * 60,
				EndMinute:   7 * 60,
				Weekdays:    []time.Weekday{time.Monday},
				Intensity:   domain.IntensityLocked,
				BlockedApps: []string{"steam"},
				Enabled:     true,
			}})
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(14 * time.Hour) // Monday 23:00
			mat.HandleFire("night")

			active, err := sessions.Active()
			Expect(err).NotTo(HaveOccurred())
			Expect(active).NotTo(BeNil())
			Expect(active.DurationMinutes).To(Equal(480))
			Expect(decisions.Decide("steam", clock.Now()).Block).To(BeTrue())
			Expect(decisions.Decide("steam", clock.Now()).Source).To(Equal("session"))
		})
	})

	Describe("daily quota", func() {
		It("blocks once the limit is consumed and resets on day rollover", func() {
			err := quota.SetConfig(domain.DailyQuotaConfig{
				Enabled:      true,
				LimitMinutes: 30,
				WatchedApps:  []string{"tiktok"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(quota.AddUsage("tiktok", 29)).To(Succeed())
			Expect(decisions.Decide("tiktok", clock.Now()).Block).To(BeFalse())

			Expect(quota.AddUsage("tiktok", 1)).To(Succeed())
			decision := decisions.Decide("tiktok", clock.Now())
			Expect(decision.Block).To(BeTrue())
			Expect(decision.Source).To(Equal("quota"))

			By("other resources stay usable")
			Expect(decisions.Decide("mail", clock.Now()).Block).To(BeFalse())

			By("the next calendar day starts from zero")
			clock.Advance(24 * time.Hour)
			Expect(decisions.Decide("tiktok", clock.Now()).Block).To(BeFalse())
			total, err := quota.TotalToday()
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})
	})

	Describe("overlapping sources", func() {
		It("keeps blocking while any source demands it", func() {
			_, err := sessions.Start(25, domain.IntensityFlexible, []string{"x"})
			Expect(err).NotTo(HaveOccurred())

			err = quota.SetConfig(domain.DailyQuotaConfig{
				Enabled:      true,
				LimitMinutes: 10,
				WatchedApps:  []string{"x"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(quota.AddUsage("x", 10)).To(Succeed())

			Expect(decisions.Decide("x", clock.Now()).Block).To(BeTrue())

			By("stopping the session leaves the quota block in place")
			_, err = sessions.Stop(false)
			Expect(err).NotTo(HaveOccurred())
			decision := decisions.Decide("x", clock.Now())
			Expect(decision.Block).To(BeTrue())
			Expect(decision.Source).To(Equal("quota"))
		})
	})
})
