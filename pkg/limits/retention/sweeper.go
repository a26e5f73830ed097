package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
)

// DefaultHorizon is how long ledger entries are kept: 400 days.
const DefaultHorizon = 400 * window.Day

// MinHorizon is the shortest accepted horizon: the annual window plus a day.
const MinHorizon = 366 * window.Day

// ErrHorizonTooShort is returned for horizons that would delete entries the
// annual window still counts.
var ErrHorizonTooShort = errors.New("retention horizon must be at least 366 days")

// ValidateHorizon checks that h keeps every entry any window can count.
func ValidateHorizon(h time.Duration) error {
	if h < MinHorizon {
		return fmt.Errorf("%w: got %s", ErrHorizonTooShort, h)
	}
	return nil
}

// Sweeper deletes ledger entries older than the retention horizon.
type Sweeper struct {
	store   storage.Backend
	horizon time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithMetrics enables sweep metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// NewSweeper creates a sweeper. A zero horizon selects DefaultHorizon.
func NewSweeper(store storage.Backend, horizon time.Duration, opts ...Option) (*Sweeper, error) {
	if horizon == 0 {
		horizon = DefaultHorizon
	}
	if err := ValidateHorizon(horizon); err != nil {
		return nil, err
	}

	s := &Sweeper{
		store:   store,
		horizon: horizon,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "limits.retention")
	return s, nil
}

// Horizon returns the configured retention horizon.
func (s *Sweeper) Horizon() time.Duration {
	return s.horizon
}

// Cutoff returns the timestamp before which entries are deleted.
func (s *Sweeper) Cutoff() time.Time {
	return s.now().Add(-s.horizon)
}

// Sweep deletes entries created before now minus the horizon and returns
// how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff()
	start := time.Now()

	deleted, err := s.store.DeleteEntriesBefore(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "ledger sweep failed",
			"cutoff", cutoff,
			"error", err,
		)
		return 0, fmt.Errorf("sweep ledger: %w", err)
	}

	s.metrics.recordSweep(deleted, s.now())
	s.logger.InfoContext(ctx, "ledger sweep completed",
		"cutoff", cutoff,
		"deleted_count", deleted,
		"duration", time.Since(start),
	)
	return deleted, nil
}
