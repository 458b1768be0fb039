package infra

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"focusguard/internal/domain"
)

// ForegroundPoller implements domain.ForegroundObserver by polling the
// process table. It reports a foreground-change observation whenever a
// watched resource's process newly appears. The watched set is supplied by
// a callback so it always reflects the current session/schedule/quota state.
type ForegroundPoller struct {
	interval time.Duration
	watched  func() []string
	clock    domain.Clock
	logger   *zap.Logger
	events   chan domain.ForegroundEvent

	mu      sync.Mutex
	running map[string]bool
}

// NewForegroundPoller creates a poller. watched returns the resource ids
// currently worth observing.
func NewForegroundPoller(
	interval time.Duration,
	watched func() []string,
	clock domain.Clock,
	logger *zap.Logger,
) *ForegroundPoller {
	return &ForegroundPoller{
		interval: interval,
		watched:  watched,
		clock:    clock,
		logger:   logger,
		events:   make(chan domain.ForegroundEvent, 16),
		running:  make(map[string]bool),
	}
}

// Events returns the observation stream.
func (p *ForegroundPoller) Events() <-chan domain.ForegroundEvent {
	return p.events
}

// Run polls until the context is canceled.
func (p *ForegroundPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.scan()
		}
	}
}

// scan diffs the watched resources against the process table and emits an
// observation for each resource that newly appeared.
func (p *ForegroundPoller) scan() {
	watched := p.watched()
	if len(watched) == 0 {
		p.mu.Lock()
		p.running = make(map[string]bool)
		p.mu.Unlock()
		return
	}

	now := p.clock.Now()
	seen := make(map[string]bool, len(watched))

	p.mu.Lock()
	previous := p.running
	p.mu.Unlock()

	for _, resourceID := range watched {
		pids, err := findByName(resourceID)
		if err != nil {
			p.logger.Warn("process scan failed",
				zap.String("resource", resourceID),
				zap.Error(err))
			continue
		}
		active := len(pids) > 0
		seen[resourceID] = active

		if active && !previous[resourceID] {
			select {
			case p.events <- domain.ForegroundEvent{ResourceID: resourceID, At: now}:
			default:
				p.logger.Warn("foreground event dropped, channel full",
					zap.String("resource", resourceID))
			}
		}
	}

	p.mu.Lock()
	p.running = seen
	p.mu.Unlock()
}

// Running reports whether the resource's process was present in the most
// recent scan.
func (p *ForegroundPoller) Running(resourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[resourceID]
}

// Terminate kills every process matching the resource id. This is the
// intervention half of observe-and-intervene.
func (p *ForegroundPoller) Terminate(resourceID string) error {
	pids, err := findByName(resourceID)
	if err != nil {
		return err
	}
	for _, pid := range pids {
		proc, err := process.NewProcess(int32(pid))
		if err != nil {
			continue // Process may have exited
		}
		if err := proc.Kill(); err != nil {
			p.logger.Warn("failed to kill process",
				zap.Int("pid", pid),
				zap.Error(err))
			continue
		}
		p.logger.Info("killed process",
			zap.String("resource", resourceID),
			zap.Int("pid", pid))
	}
	return nil
}

// findByName returns PIDs of processes matching the pattern (case-insensitive).
func findByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	patternLower := strings.ToLower(pattern)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.EqualFold(name, pattern) || strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

// Ensure ForegroundPoller implements domain.ForegroundObserver.
var _ domain.ForegroundObserver = (*ForegroundPoller)(nil)
