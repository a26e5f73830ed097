package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep daily at 3 AM.
const DefaultSchedule = "0 3 * * *"

// Scheduler runs the sweeper on a cron schedule.
type Scheduler struct {
	sweeper    *Sweeper
	schedule   string
	runOnStart bool
	cron       *cron.Cron
	mu         sync.Mutex
	logger     *slog.Logger
	running    bool

	// stop is closed by Stop to release the goroutine watching Start's ctx.
	stop chan struct{}
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Schedule is a standard five-field cron expression.
	// Common cron expressions:
	//   - "0 3 * * *"    - Daily at 3 AM
	//   - "0 */6 * * *"  - Every 6 hours
	//   - "@hourly"      - Every hour
	Schedule string

	// RunOnStart performs one sweep as soon as the scheduler starts.
	RunOnStart bool

	// Logger is the structured logger. Default: slog.Default()
	Logger *slog.Logger
}

// NewScheduler creates a new retention scheduler.
func NewScheduler(sweeper *Sweeper, cfg SchedulerConfig) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		sweeper:    sweeper,
		schedule:   cfg.Schedule,
		runOnStart: cfg.RunOnStart,
		cron:       cron.New(),
		logger:     cfg.Logger.With("component", "limits.retention.scheduler"),
	}
}

// Start schedules sweeps until ctx is cancelled or Stop is called.
// A failed sweep is logged and retried on the next tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Validate cron expression
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	// A stopped cron keeps its entries, so every run gets a fresh one.
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron = c
	s.cron.Start()
	s.running = true
	stop := make(chan struct{})
	s.stop = stop

	s.logger.Info("retention scheduler started",
		"schedule", s.schedule,
		"horizon", s.sweeper.Horizon(),
	)

	if s.runOnStart {
		go s.runSweep(ctx)
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stop:
		}
	}()

	return nil
}

// runSweep executes one sweep cycle.
func (s *Scheduler) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Warn("scheduled sweep failed, will retry on next tick", "error", err)
	}
}

// Stop stops the scheduler and waits for any running sweep to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		done := s.cron.Stop()
		<-done.Done()
		close(s.stop)
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled sweep time, or nil when not started.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
