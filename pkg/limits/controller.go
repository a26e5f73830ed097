package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/spendcap/pkg/events"
	"mercator-hq/spendcap/pkg/limits/budget"
	"mercator-hq/spendcap/pkg/limits/caps"
	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/telemetry/logging"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

// tracerName identifies spans emitted by this package.
const tracerName = "mercator-hq/spendcap/pkg/limits"

// Controller is the spend admission-control engine.
//
// The Controller is the primary interface for checking spend against caps,
// recording committed spend and reporting usage. It composes the cap
// manager and the window aggregator over a single storage backend.
//
// # Example
//
//	ctrl := limits.NewController(limits.Config{
//	    Storage: backend,
//	    Logger:  logger,
//	})
//
//	if err := ctrl.SetDailyLimit(ctx, "key-123", 50_000); err != nil {
//	    return err
//	}
//	decision, err := ctrl.Check(ctx, "key-123", 1_000)
type Controller struct {
	store     storage.Backend
	caps      *caps.Manager
	agg       *budget.Aggregator
	publisher events.Publisher
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	timeout   time.Duration
}

// Config contains the dependencies of a Controller.
type Config struct {
	// Storage is the cap and ledger backend.
	// Default: in-memory backend
	Storage storage.Backend

	// Publisher receives a SpendRecorded event after each committed entry.
	// Default: events.NopPublisher
	Publisher events.Publisher

	// Metrics records Prometheus metrics. Nil disables metrics.
	Metrics *Metrics

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger

	// Tracer creates spans for every operation.
	// Default: the global OpenTelemetry tracer provider
	Tracer trace.Tracer

	// Clock anchors rolling windows.
	// Default: time.Now
	Clock func() time.Time

	// OperationTimeout bounds each operation's storage work. Zero means the
	// caller's context alone governs the deadline.
	OperationTimeout time.Duration
}

// NewController creates a new admission controller with the given configuration.
func NewController(cfg Config) *Controller {
	// Initialize storage if not provided
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemoryBackend()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger := cfg.Logger.With("component", "limits")

	return &Controller{
		store:     cfg.Storage,
		caps:      caps.NewManager(cfg.Storage, cfg.Logger),
		agg:       budget.NewAggregator(cfg.Storage, budget.WithClock(cfg.Clock)),
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
		tracer:    cfg.Tracer,
		now:       cfg.Clock,
		timeout:   cfg.OperationTimeout,
	}
}

// Caps returns the cap manager backing this controller.
func (c *Controller) Caps() *caps.Manager {
	return c.caps
}

// Aggregator returns the window aggregator backing this controller.
func (c *Controller) Aggregator() *budget.Aggregator {
	return c.agg
}

// Check decides whether amountSats fits within every configured cap for
// the resource. It is read-only and reserves nothing.
//
// A resource without caps is always allowed and no aggregation is
// performed. Otherwise the amount is allowed only if, for every configured
// window, cap - spent >= amount. An amount of zero is a valid probe.
func (c *Controller) Check(ctx context.Context, resourceID string, amountSats int64) (*Decision, error) {
	if amountSats < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amountSats)
	}
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return nil, err
	}

	ctx, span, finish := c.begin(ctx, "check", resourceID,
		tracing.AmountSats(amountSats))
	defer finish()

	capRow, err := c.caps.Get(ctx, resourceID)
	if err != nil {
		return nil, c.fail(ctx, span, "check", err)
	}

	decision, err := c.decide(ctx, resourceID, amountSats, capRow)
	if err != nil {
		return nil, c.fail(ctx, span, "check", err)
	}

	c.metrics.RecordCheck(decision)
	span.SetAttributes(tracing.Allowed(decision.Allowed))
	if !decision.Allowed {
		c.logger.DebugContext(ctx, "spend denied",
			"resource_id", resourceID,
			"amount_sats", amountSats,
			"reason", decision.Reason,
		)
	}
	return decision, nil
}

// decide evaluates amountSats against capRow using one batched aggregation.
func (c *Controller) decide(ctx context.Context, resourceID string, amountSats int64, capRow *storage.SpendCap) (*Decision, error) {
	decision := &Decision{
		Allowed:    true,
		ResourceID: resourceID,
		AmountSats: amountSats,
	}

	configured := capRow.Configured()
	if len(configured) == 0 {
		return decision, nil
	}

	spends, err := c.agg.SpendWindows(ctx, resourceID, configured...)
	if err != nil {
		return nil, err
	}

	for _, w := range configured {
		limit := capRow.Get(w)
		spent := spends[w]
		status := WindowStatus{
			Window:        w,
			Cap:           limit,
			SpentSats:     spent.SpentSats,
			Count:         spent.Count,
			RemainingSats: limit.Sats - spent.SpentSats,
		}
		decision.Windows = append(decision.Windows, status)

		if status.RemainingSats < amountSats {
			decision.Allowed = false
			decision.Exceeded = append(decision.Exceeded, w)
		}
	}

	if !decision.Allowed {
		decision.Reason = fmt.Sprintf("%s spend limit exceeded", decision.Exceeded[0])
	}
	return decision, nil
}

// Record appends a ledger entry for amountSats. It does not re-check caps:
// callers check first, commit their payment, then record.
//
// After the entry commits a SpendRecorded event is published. Publish
// failures are logged and never returned.
func (c *Controller) Record(ctx context.Context, resourceID string, amountSats int64, externalRef string) error {
	if amountSats <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveAmount, amountSats)
	}
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return err
	}

	opCtx, span, finish := c.begin(ctx, "record", resourceID,
		tracing.AmountSats(amountSats))
	defer finish()

	entry := &storage.LedgerEntry{
		ID:          uuid.NewString(),
		ResourceID:  resourceID,
		AmountSats:  amountSats,
		ExternalRef: externalRef,
	}
	if err := c.store.InsertEntry(opCtx, entry); err != nil {
		return c.fail(opCtx, span, "record", err)
	}

	c.committed(ctx, entry)
	return nil
}

// CheckAndRecord evaluates caps and appends the entry in one atomic backend
// operation. The entry is written only when the returned decision allows it.
func (c *Controller) CheckAndRecord(ctx context.Context, resourceID string, amountSats int64, externalRef string) (*Decision, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrNonPositiveAmount, amountSats)
	}
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return nil, err
	}

	opCtx, span, finish := c.begin(ctx, "check_and_record", resourceID,
		tracing.AmountSats(amountSats))
	defer finish()

	capRow, err := c.caps.Get(opCtx, resourceID)
	if err != nil {
		return nil, c.fail(opCtx, span, "check_and_record", err)
	}

	decision, err := c.decide(opCtx, resourceID, amountSats, capRow)
	if err != nil {
		return nil, c.fail(opCtx, span, "check_and_record", err)
	}
	if !decision.Allowed {
		c.metrics.RecordCheck(decision)
		span.SetAttributes(tracing.Allowed(false))
		return decision, nil
	}

	now := c.now()
	fences := make([]storage.WindowCap, 0, len(decision.Windows))
	for _, s := range decision.Windows {
		fences = append(fences, storage.WindowCap{
			Since:   now.Add(-s.Window.Duration()),
			CapSats: s.Cap.Sats,
		})
	}

	entry := &storage.LedgerEntry{
		ID:          uuid.NewString(),
		ResourceID:  resourceID,
		AmountSats:  amountSats,
		ExternalRef: externalRef,
	}
	ok, err := c.store.InsertEntryIfWithin(opCtx, entry, fences)
	if err != nil {
		return nil, c.fail(opCtx, span, "check_and_record", err)
	}

	if !ok {
		// A concurrent writer consumed the headroom after the pre-check.
		decision, err = c.decide(opCtx, resourceID, amountSats, capRow)
		if err != nil {
			return nil, c.fail(opCtx, span, "check_and_record", err)
		}
		if decision.Allowed {
			decision.Allowed = false
			decision.Reason = "concurrent spend exhausted the limit"
		}
	}

	c.metrics.RecordCheck(decision)
	span.SetAttributes(tracing.Allowed(decision.Allowed))
	if ok {
		c.committed(ctx, entry)
	}
	return decision, nil
}

// committed updates metrics and publishes the event for a written entry.
// The publish is bounded by the operation timeout.
func (c *Controller) committed(ctx context.Context, entry *storage.LedgerEntry) {
	c.metrics.RecordSpend(entry.AmountSats)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.publisher.PublishSpend(ctx, events.SpendRecorded{
		EntryID:     entry.ID,
		ResourceID:  entry.ResourceID,
		AmountSats:  entry.AmountSats,
		ExternalRef: entry.ExternalRef,
		RecordedAt:  entry.CreatedAt,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to publish spend event",
			"resource_id", entry.ResourceID,
			"entry_id", entry.ID,
			"error", err,
		)
	}
}

// Summary reports caps and spend for all four windows in one aggregation.
// It performs no admission logic.
func (c *Controller) Summary(ctx context.Context, resourceID string) (*SpendingSummary, error) {
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return nil, err
	}

	ctx, span, finish := c.begin(ctx, "summary", resourceID)
	defer finish()

	capRow, err := c.caps.Get(ctx, resourceID)
	if err != nil {
		return nil, c.fail(ctx, span, "summary", err)
	}

	spends, err := c.agg.SpendWindows(ctx, resourceID)
	if err != nil {
		return nil, c.fail(ctx, span, "summary", err)
	}

	summary := &SpendingSummary{ResourceID: resourceID}
	for _, w := range Windows() {
		spent := spends[w]
		summary.Windows = append(summary.Windows, WindowSummary{
			Window:    w,
			Cap:       capRow.Get(w),
			SpentSats: spent.SpentSats,
			Count:     spent.Count,
		})
	}
	return summary, nil
}

// GetLimits returns the caps for a resource; every window is unset when the
// resource has none.
func (c *Controller) GetLimits(ctx context.Context, resourceID string) (*SpendCap, error) {
	ctx, span, finish := c.begin(ctx, "get_limits", resourceID)
	defer finish()

	capRow, err := c.caps.Get(ctx, resourceID)
	if err != nil {
		return nil, c.fail(ctx, span, "get_limits", err)
	}
	return capRow, nil
}

// SetLimit sets the cap for one window.
func (c *Controller) SetLimit(ctx context.Context, resourceID string, w Window, sats int64) error {
	ctx, span, finish := c.begin(ctx, "set_limit", resourceID,
		tracing.Window(w.String()))
	defer finish()

	if err := c.caps.Set(ctx, resourceID, w, sats); err != nil {
		return c.fail(ctx, span, "set_limit", err)
	}
	c.logger.InfoContext(ctx, "spend limit set",
		"resource_id", resourceID,
		"window", w.String(),
		"limit_sats", sats,
	)
	return nil
}

// SetDailyLimit sets the 24h cap.
func (c *Controller) SetDailyLimit(ctx context.Context, resourceID string, sats int64) error {
	return c.SetLimit(ctx, resourceID, Daily, sats)
}

// SetWeeklyLimit sets the 7d cap.
func (c *Controller) SetWeeklyLimit(ctx context.Context, resourceID string, sats int64) error {
	return c.SetLimit(ctx, resourceID, Weekly, sats)
}

// SetMonthlyLimit sets the 30d cap.
func (c *Controller) SetMonthlyLimit(ctx context.Context, resourceID string, sats int64) error {
	return c.SetLimit(ctx, resourceID, Monthly, sats)
}

// SetAnnualLimit sets the 365d cap.
func (c *Controller) SetAnnualLimit(ctx context.Context, resourceID string, sats int64) error {
	return c.SetLimit(ctx, resourceID, Annual, sats)
}

// RemoveLimit clears the cap for one window, deleting the cap row when no
// window remains capped.
func (c *Controller) RemoveLimit(ctx context.Context, resourceID string, w Window) error {
	ctx, span, finish := c.begin(ctx, "remove_limit", resourceID,
		tracing.Window(w.String()))
	defer finish()

	if err := c.caps.Remove(ctx, resourceID, w); err != nil {
		return c.fail(ctx, span, "remove_limit", err)
	}
	c.logger.InfoContext(ctx, "spend limit removed",
		"resource_id", resourceID,
		"window", w.String(),
	)
	return nil
}

// RemoveDailyLimit clears the 24h cap.
func (c *Controller) RemoveDailyLimit(ctx context.Context, resourceID string) error {
	return c.RemoveLimit(ctx, resourceID, Daily)
}

// RemoveWeeklyLimit clears the 7d cap.
func (c *Controller) RemoveWeeklyLimit(ctx context.Context, resourceID string) error {
	return c.RemoveLimit(ctx, resourceID, Weekly)
}

// RemoveMonthlyLimit clears the 30d cap.
func (c *Controller) RemoveMonthlyLimit(ctx context.Context, resourceID string) error {
	return c.RemoveLimit(ctx, resourceID, Monthly)
}

// RemoveAnnualLimit clears the 365d cap.
func (c *Controller) RemoveAnnualLimit(ctx context.Context, resourceID string) error {
	return c.RemoveLimit(ctx, resourceID, Annual)
}

// RemoveAllLimits deletes every cap for a resource. Idempotent.
func (c *Controller) RemoveAllLimits(ctx context.Context, resourceID string) error {
	ctx, span, finish := c.begin(ctx, "remove_all_limits", resourceID)
	defer finish()

	if err := c.caps.RemoveAll(ctx, resourceID); err != nil {
		return c.fail(ctx, span, "remove_all_limits", err)
	}
	c.logger.InfoContext(ctx, "all spend limits removed", "resource_id", resourceID)
	return nil
}

// begin starts the span, applies the operation timeout and returns a
// finish func that ends both and records the latency.
func (c *Controller) begin(ctx context.Context, op, resourceID string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func()) {
	start := time.Now()

	ctx = logging.WithResourceID(ctx, resourceID)
	attrs = append(attrs, tracing.ResourceID(resourceID))
	ctx, span := c.tracer.Start(ctx, "limits."+op, trace.WithAttributes(attrs...))

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	return ctx, span, func() {
		cancel()
		span.End()
		c.metrics.ObserveDuration(op, start)
	}
}

// fail classifies err: storage and context failures become *StoreError,
// validation errors pass through unchanged.
func (c *Controller) fail(ctx context.Context, span trace.Span, op string, err error) error {
	tracing.SetStatus(span, err)

	if IsValidationError(err) {
		return err
	}

	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c.metrics.RecordStoreError(op)
		c.logger.ErrorContext(ctx, "limits store operation failed",
			"operation", op,
			"error", err,
		)
		return &StoreError{Operation: op, Err: err}
	}
	return err
}
