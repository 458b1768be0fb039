// Package main is the CLI entry point for focusguard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"focusguard/internal/config"
	"focusguard/internal/daemon"
	"focusguard/internal/domain"
	"focusguard/internal/infra"
	"focusguard/internal/schedule"
	"focusguard/internal/state"
	"focusguard/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focusguard",
	Short: "Self-restriction enforcer - blocks apps you asked it to block",
	Long: `focusguard decides, at any instant, whether an application should be
blocked for a user who opted into a self-restriction program, and enforces
that decision against the user's own attempts to get around it.

It combines three policy sources: focus sessions, recurring block
schedules, and a daily usage quota. Any one of them blocking blocks.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the enforcement daemon",
	Long: `Runs the enforcement daemon in the foreground: watches for blocked
applications, ticks session progress once a second, and fires schedule
alarms. Stop with SIGINT/SIGTERM.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active session, schedules and quota usage",
	RunE:  runStatus,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the focus session",
}

var (
	sessionDuration  int
	sessionIntensity string
	sessionApps      []string
	stopExplicit     bool
)

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	RunE:  runSessionStart,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active focus session",
	RunE:  runSessionStop,
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active focus session (flexible intensity only)",
	RunE:  runSessionPause,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused focus session",
	RunE:  runSessionResume,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring block schedules",
}

var scheduleFile string

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Install the schedule set from a JSON file",
	Long: `Replaces the full schedule set. The file holds a JSON array of
schedules; all previously registered alarms are canceled first.`,
	RunE: runScheduleSet,
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Manage the daily usage quota",
}

var (
	quotaEnabled   bool
	quotaLimit     int
	quotaApps      []string
	quotaResetHour int
)

var quotaSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the daily usage quota",
	RunE:  runQuotaSet,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")

	sessionStartCmd.Flags().IntVar(&sessionDuration, "duration", 25, "Session duration in minutes")
	sessionStartCmd.Flags().StringVar(&sessionIntensity, "intensity", "flexible", "Intensity: flexible, committed, locked")
	sessionStartCmd.Flags().StringSliceVar(&sessionApps, "apps", nil, "Resource identifiers to block")
	sessionStopCmd.Flags().BoolVar(&stopExplicit, "complete", false, "Mark the stop as a voluntary completion")
	scheduleSetCmd.Flags().StringVar(&scheduleFile, "file", "", "JSON file holding the schedule list")
	scheduleSetCmd.MarkFlagRequired("file")
	quotaSetCmd.Flags().BoolVar(&quotaEnabled, "enabled", true, "Enable the quota")
	quotaSetCmd.Flags().IntVar(&quotaLimit, "limit", 60, "Daily limit in minutes")
	quotaSetCmd.Flags().StringSliceVar(&quotaApps, "apps", nil, "Watched resource identifiers")
	quotaSetCmd.Flags().IntVar(&quotaResetHour, "reset-hour", 0, "Nominal reset hour (kept for compatibility)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStopCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	scheduleCmd.AddCommand(scheduleSetCmd)
	quotaCmd.AddCommand(quotaSetCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(versionCmd)
}

// core bundles the wired enforcement components for one command invocation.
type core struct {
	cfg          *config.Config
	kv           domain.KVStore
	store        *state.Store
	clock        domain.Clock
	events       *usecase.Emitter
	sessions     *usecase.SessionEngine
	quota        *usecase.QuotaTracker
	decisions    *usecase.DecisionEngine
	alarms       *infra.TimerAlarms
	materializer *schedule.Materializer
	logger       *zap.Logger
}

func openCore() (*core, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := createLogger(cfg.LogLevel)

	key, err := infra.NewKeyFile(cfg.DataDir).Ensure()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain store key: %w", err)
	}

	kv, err := infra.NewEncryptedStore(cfg.DataDir, key)
	if err != nil {
		return nil, err
	}

	store := state.NewStoreWithHistoryLimit(kv, cfg.HistoryLimit)
	clock := infra.NewSystemClock()
	events := usecase.NewEmitter(cfg.EventBuffer, logger)
	sessions := usecase.NewSessionEngineWithCooldown(store, clock, events, logger, cfg.StopCooldown)
	quota := usecase.NewQuotaTracker(store, clock, logger)
	decisions := usecase.NewDecisionEngineWithSuppression(sessions, quota, store, clock, logger, cfg.SuppressionWindow)
	alarms := infra.NewTimerAlarms(logger)
	materializer := schedule.NewMaterializer(store, sessions, alarms, clock, logger)

	return &core{
		cfg:          cfg,
		kv:           kv,
		store:        store,
		clock:        clock,
		events:       events,
		sessions:     sessions,
		quota:        quota,
		decisions:    decisions,
		alarms:       alarms,
		materializer: materializer,
		logger:       logger,
	}, nil
}

func (c *core) close() {
	c.alarms.CancelAll()
	_ = c.logger.Sync()
	_ = c.kv.Close()
}

// watchedResources is the union of every resource any policy source could
// currently block; the foreground poller only scans for these.
func (c *core) watchedResources() []string {
	set := make(map[string]struct{})

	if session, err := c.sessions.Active(); err == nil && session != nil {
		for _, app := range session.BlockedApps {
			set[app] = struct{}{}
		}
	}
	if schedules, err := c.store.Schedules(); err == nil {
		for _, s := range schedules {
			if !s.Enabled {
				continue
			}
			for _, app := range s.BlockedApps {
				set[app] = struct{}{}
			}
		}
	}
	if cfg, err := c.quota.Config(); err == nil && cfg != nil && cfg.Enabled {
		for _, app := range cfg.WatchedApps {
			set[app] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for app := range set {
		out = append(out, app)
	}
	sort.Strings(out)
	return out
}

func runStart(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	poller := infra.NewForegroundPoller(c.cfg.PollInterval, c.watchedResources, c.clock, c.logger)
	d := daemon.New(
		daemon.Config{TickInterval: c.cfg.TickInterval},
		c.sessions, c.decisions, c.quota, c.materializer,
		poller, poller, c.events, c.logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("focusguard daemon running, Ctrl-C to stop")
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	fmt.Println("=== focusguard status ===")

	session, err := c.sessions.Active()
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("Session: none")
	} else {
		now := c.clock.Now()
		stateStr := "active"
		if session.Paused {
			stateStr = "paused"
		}
		fmt.Printf("Session: %s (%s, %s)\n", session.ID, session.Intensity, stateStr)
		fmt.Printf("  Remaining: %s (%.0f%%)\n",
			session.Remaining(now).Round(time.Second),
			session.Progress(now)*100)
		fmt.Printf("  Blocking: %s\n", strings.Join(session.BlockedApps, ", "))
	}

	schedules, err := c.store.Schedules()
	if err != nil {
		return err
	}
	next, _ := c.materializer.NextOccurrences()
	fmt.Printf("Schedules: %d\n", len(schedules))
	for _, s := range schedules {
		line := fmt.Sprintf("  [%s] %s %02d:%02d-%02d:%02d", s.ID, s.Name,
			s.StartMinute/60, s.StartMinute%60, s.EndMinute/60, s.EndMinute%60)
		if !s.Enabled {
			line += " (disabled)"
		} else if at, ok := next[s.ID]; ok {
			line += " next " + at.Format("Mon 15:04")
		}
		fmt.Println(line)
	}

	quotaCfg, err := c.quota.Config()
	if err != nil {
		return err
	}
	if quotaCfg == nil || !quotaCfg.Enabled {
		fmt.Println("Quota: disabled")
	} else {
		total, err := c.quota.TotalToday()
		if err != nil {
			return err
		}
		fmt.Printf("Quota: %d/%d min today on %s\n",
			total, quotaCfg.LimitMinutes, strings.Join(quotaCfg.WatchedApps, ", "))
	}

	stats, err := c.store.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Stats: %d sessions, %d min total, longest %d min, streak %d days\n",
		stats.TotalSessions, stats.TotalMinutes, stats.LongestSessionMinutes, stats.StreakDays)

	fmt.Println("=========================")
	return nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	session, err := c.sessions.Start(sessionDuration, domain.Intensity(sessionIntensity), sessionApps)
	if err != nil {
		return err
	}
	fmt.Printf("Started %s session %s: %d min, blocking %s\n",
		session.Intensity, session.ID, session.DurationMinutes,
		strings.Join(session.BlockedApps, ", "))
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	verdict := c.sessions.CanStop()
	if !verdict.Allowed && verdict.Reason == "cooldown" {
		fmt.Printf("Deliberate stop requires waiting %d seconds. Ask again after that.\n", verdict.WaitSeconds)
		return nil
	}

	session, err := c.sessions.Stop(stopExplicit)
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("No active session.")
		return nil
	}
	fmt.Printf("Session %s ended (completed=%t)\n", session.ID, session.Completed)
	return nil
}

func runSessionPause(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	session, err := c.sessions.Pause()
	if err != nil {
		return err
	}
	fmt.Printf("Session %s paused\n", session.ID)
	return nil
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	session, err := c.sessions.Resume()
	if err != nil {
		return err
	}
	fmt.Printf("Session %s resumed, %s remaining\n",
		session.ID, session.Remaining(c.clock.Now()).Round(time.Second))
	return nil
}

func runScheduleSet(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	data, err := os.ReadFile(scheduleFile)
	if err != nil {
		return fmt.Errorf("failed to read schedule file: %w", err)
	}
	var schedules []domain.BlockSchedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	if err := c.materializer.SetSchedules(schedules); err != nil {
		return err
	}
	fmt.Printf("Installed %d schedules\n", len(schedules))
	return nil
}

func runQuotaSet(cmd *cobra.Command, args []string) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.close()

	cfg := domain.DailyQuotaConfig{
		Enabled:      quotaEnabled,
		LimitMinutes: quotaLimit,
		WatchedApps:  quotaApps,
		ResetHour:    quotaResetHour,
	}
	if err := c.quota.SetConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("Quota set: %d min/day on %s (enabled=%t)\n",
		cfg.LimitMinutes, strings.Join(cfg.WatchedApps, ", "), cfg.Enabled)
	return nil
}

func createLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("focusguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
