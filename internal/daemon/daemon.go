// Package daemon implements the enforcement daemon loop.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"focusguard/internal/domain"
	"focusguard/internal/schedule"
	"focusguard/internal/usecase"
)

// Intervenor is the intervention half of observe-and-intervene: it can
// terminate an offending resource's processes and report whether a
// resource is currently running.
type Intervenor interface {
	Terminate(resourceID string) error
	Running(resourceID string) bool
}

// Config holds daemon loop configuration.
type Config struct {
	TickInterval time.Duration // session progress tick, ~1 Hz
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second}
}

// Daemon wires the enforcement core to its triggers: the foreground
// observer, the 1-second tick, and the schedule alarms (which fire on
// their own timers). All mutating paths converge on the engines' mutexes,
// keeping a single-writer discipline over the active-session record.
type Daemon struct {
	config       Config
	sessions     *usecase.SessionEngine
	decisions    *usecase.DecisionEngine
	quota        *usecase.QuotaTracker
	materializer *schedule.Materializer
	observer     domain.ForegroundObserver
	intervenor   Intervenor
	events       *usecase.Emitter
	logger       *zap.Logger

	// Usage accrual: the most recently observed foreground resource and
	// how many tick-seconds it has been on screen since the last whole
	// minute was charged to the quota ledger.
	foreground   string
	onScreenSecs int
}

// New creates a daemon. intervenor may be nil, in which case block
// verdicts are reported but no process is terminated.
func New(
	config Config,
	sessions *usecase.SessionEngine,
	decisions *usecase.DecisionEngine,
	quota *usecase.QuotaTracker,
	materializer *schedule.Materializer,
	observer domain.ForegroundObserver,
	intervenor Intervenor,
	events *usecase.Emitter,
	logger *zap.Logger,
) *Daemon {
	return &Daemon{
		config:       config,
		sessions:     sessions,
		decisions:    decisions,
		quota:        quota,
		materializer: materializer,
		observer:     observer,
		intervenor:   intervenor,
		events:       events,
		logger:       logger,
	}
}

// Run starts the daemon loop. This blocks until the context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	// Startup recovery: a session that expired while the process was down
	// completes now, counting as natural expiry.
	if done, err := d.sessions.ExpireIfDue(); err != nil {
		d.logger.Warn("startup session recovery failed", zap.Error(err))
	} else if done {
		d.logger.Info("stale session completed on startup")
	}

	if err := d.materializer.Rearm(); err != nil {
		d.logger.Warn("failed to arm schedules on startup", zap.Error(err))
	}

	go func() {
		if err := d.observer.Run(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("foreground observer stopped", zap.Error(err))
		}
	}()

	d.logger.Info("daemon started",
		zap.Duration("tick_interval", d.config.TickInterval))

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return ctx.Err()

		case ev := <-d.observer.Events():
			d.handleForeground(ev)

		case <-ticker.C:
			d.sessions.Tick()
			d.accrueUsage()
		}
	}
}

// handleForeground answers one foreground-change observation within the
// call, as the enforcement contract requires.
func (d *Daemon) handleForeground(ev domain.ForegroundEvent) {
	if ev.ResourceID != d.foreground {
		// Seconds accrued against the previous resource must not be
		// charged to the one the user switched to.
		d.foreground = ev.ResourceID
		d.onScreenSecs = 0
	}

	verdict := d.decisions.Decide(ev.ResourceID, ev.At)
	if !verdict.Block || !verdict.Notify {
		return
	}

	d.events.Publish(domain.Event{
		Kind:       domain.EventBlocked,
		ResourceID: ev.ResourceID,
		At:         ev.At,
	})

	if d.intervenor == nil {
		return
	}
	if err := d.intervenor.Terminate(ev.ResourceID); err != nil {
		d.logger.Warn("intervention failed",
			zap.String("resource", ev.ResourceID),
			zap.Error(err))
	}
}

// accrueUsage charges quota-watched screen time to the usage ledger, one
// whole minute at a time.
func (d *Daemon) accrueUsage() {
	if d.foreground == "" || d.intervenor == nil {
		return
	}

	cfg, err := d.quota.Config()
	if err != nil || cfg == nil || !cfg.Enabled || !cfg.Watches(d.foreground) {
		d.onScreenSecs = 0
		return
	}
	if !d.intervenor.Running(d.foreground) {
		d.onScreenSecs = 0
		return
	}

	d.onScreenSecs++
	if d.onScreenSecs < 60 {
		return
	}
	d.onScreenSecs = 0
	if err := d.quota.AddUsage(d.foreground, 1); err != nil {
		d.logger.Warn("usage accrual failed",
			zap.String("resource", d.foreground),
			zap.Error(err))
	}
}
