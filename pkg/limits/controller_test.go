package limits

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/spendcap/pkg/events"
	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/telemetry/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SpendRecorded
	err    error
}

func (p *recordingPublisher) PublishSpend(_ context.Context, e events.SpendRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []events.SpendRecorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.SpendRecorded(nil), p.events...)
}

// failingBackend fails reads or writes on demand.
type failingBackend struct {
	*storage.MemoryBackend
	failReads  bool
	failWrites bool
}

var errBackendDown = errors.New("connection refused")

func (f *failingBackend) GetCap(ctx context.Context, id string) (*storage.SpendCap, error) {
	if f.failReads {
		return nil, storage.NewStorageError("fake", "get_cap", errBackendDown)
	}
	return f.MemoryBackend.GetCap(ctx, id)
}

func (f *failingBackend) Aggregate(ctx context.Context, id string, since []time.Time) ([]storage.WindowTotal, error) {
	if f.failReads {
		return nil, storage.NewStorageError("fake", "aggregate", errBackendDown)
	}
	return f.MemoryBackend.Aggregate(ctx, id, since)
}

func (f *failingBackend) InsertEntry(ctx context.Context, e *storage.LedgerEntry) error {
	if f.failWrites {
		return storage.NewStorageError("fake", "insert_entry", errBackendDown)
	}
	return f.MemoryBackend.InsertEntry(ctx, e)
}

type testEnv struct {
	ctrl      *Controller
	store     *storage.MemoryBackend
	clock     *fakeClock
	publisher *recordingPublisher
	metrics   *Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryBackend(storage.WithMemoryClock(clock.Now))
	t.Cleanup(func() { store.Close() })

	publisher := &recordingPublisher{}
	metrics := NewMetrics(prometheus.NewRegistry())

	ctrl := NewController(Config{
		Storage:   store,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logging.Discard(),
		Clock:     clock.Now,
	})
	return &testEnv{ctrl: ctrl, store: store, clock: clock, publisher: publisher, metrics: metrics}
}

func TestController_UnlimitedAllowsAndReportsSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	decision, err := env.ctrl.Check(ctx, "key-1", 1_000_000_000)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("resource without caps must be allowed")
	}
	if len(decision.Windows) != 0 {
		t.Errorf("expected no window statuses, got %d", len(decision.Windows))
	}

	if err := env.ctrl.Record(ctx, "key-1", 700, "pay-1"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	summary, err := env.ctrl.Summary(ctx, "key-1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(summary.Windows) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(summary.Windows))
	}
	for _, ws := range summary.Windows {
		if ws.Cap.Valid {
			t.Errorf("%s: expected unset cap", ws.Window)
		}
		if ws.SpentSats != 700 || ws.Count != 1 {
			t.Errorf("%s: spent=%d count=%d, want 700/1", ws.Window, ws.SpentSats, ws.Count)
		}
		if _, ok := ws.Remaining(); ok {
			t.Errorf("%s: Remaining should be unset for unlimited window", ws.Window)
		}
	}
}

func TestController_CheckBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 1000); err != nil {
		t.Fatalf("SetDailyLimit failed: %v", err)
	}

	tests := []struct {
		amount  int64
		allowed bool
	}{
		{0, true},
		{999, true},
		{1000, true},
		{1001, false},
	}
	for _, tt := range tests {
		decision, err := env.ctrl.Check(ctx, "key-1", tt.amount)
		if err != nil {
			t.Fatalf("Check(%d) failed: %v", tt.amount, err)
		}
		if decision.Allowed != tt.allowed {
			t.Errorf("Check(%d).Allowed = %v, want %v", tt.amount, decision.Allowed, tt.allowed)
		}
	}

	decision, err := env.ctrl.Check(ctx, "key-1", 1001)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(decision.Exceeded) != 1 || decision.Exceeded[0] != Daily {
		t.Errorf("Exceeded = %v, want [daily]", decision.Exceeded)
	}
	if decision.Reason == "" {
		t.Error("denied decision should carry a reason")
	}
	if rem, ok := decision.Remaining(Daily); !ok || rem != 1000 {
		t.Errorf("Remaining(daily) = %d,%v, want 1000,true", rem, ok)
	}
	if _, ok := decision.Remaining(Weekly); ok {
		t.Error("Remaining(weekly) should be unset")
	}
}

func TestController_CheckIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 1000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := env.ctrl.Check(ctx, "key-1", 800); err != nil {
			t.Fatal(err)
		}
	}
	if _, entries := env.store.Size(); entries != 0 {
		t.Errorf("Check wrote %d ledger entries", entries)
	}
}

func TestController_RecordThenSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 1000); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.Record(ctx, "key-1", 300, "inv-1"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	summary, err := env.ctrl.Summary(ctx, "key-1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	daily := summary.Window(Daily)
	if daily.SpentSats < 300 || daily.Count < 1 {
		t.Errorf("daily spent=%d count=%d, want >=300/>=1", daily.SpentSats, daily.Count)
	}
	if rem, ok := daily.Remaining(); !ok || rem != 700 {
		t.Errorf("daily remaining = %d,%v, want 700,true", rem, ok)
	}

	decision, err := env.ctrl.Check(ctx, "key-1", 701)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Error("701 should exceed remaining 700")
	}
}

func TestController_RecordDoesNotRecheckCaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 100); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.Record(ctx, "key-1", 500, ""); err != nil {
		t.Fatalf("Record over cap should succeed: %v", err)
	}

	decision, err := env.ctrl.Check(ctx, "key-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Error("overspent window should deny even a zero probe")
	}
	if rem, _ := decision.Remaining(Daily); rem != -400 {
		t.Errorf("remaining = %d, want -400", rem)
	}
}

func TestController_WindowsRollForward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 1000); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.SetWeeklyLimit(ctx, "key-1", 5000); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.Record(ctx, "key-1", 900, ""); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(30 * time.Hour)

	summary, err := env.ctrl.Summary(ctx, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := summary.Window(Daily).SpentSats; got != 0 {
		t.Errorf("daily spent after 30h = %d, want 0", got)
	}
	if got := summary.Window(Weekly).SpentSats; got != 900 {
		t.Errorf("weekly spent after 30h = %d, want 900", got)
	}

	decision, err := env.ctrl.Check(ctx, "key-1", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Errorf("daily headroom should have rolled forward: %+v", decision)
	}
}

func TestController_EndToEndDailyBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 500); err != nil {
		t.Fatal(err)
	}

	var accepted int64
	for i := 0; i < 10; i++ {
		decision, err := env.ctrl.Check(ctx, "key-1", 120)
		if err != nil {
			t.Fatal(err)
		}
		if !decision.Allowed {
			break
		}
		if err := env.ctrl.Record(ctx, "key-1", 120, ""); err != nil {
			t.Fatal(err)
		}
		accepted++
	}
	if accepted != 4 {
		t.Errorf("accepted %d payments of 120 under cap 500, want 4", accepted)
	}

	decision, err := env.ctrl.Check(ctx, "key-1", 20)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Error("remaining 20 should still be spendable")
	}
}

func TestController_MultipleWindowsReportAllExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for w, sats := range map[Window]int64{Daily: 100, Weekly: 150, Annual: 10_000} {
		if err := env.ctrl.SetLimit(ctx, "key-1", w, sats); err != nil {
			t.Fatal(err)
		}
	}

	decision, err := env.ctrl.Check(ctx, "key-1", 200)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if len(decision.Exceeded) != 2 || decision.Exceeded[0] != Daily || decision.Exceeded[1] != Weekly {
		t.Errorf("Exceeded = %v, want [daily weekly]", decision.Exceeded)
	}
	if len(decision.Windows) != 3 {
		t.Errorf("expected 3 configured windows, got %d", len(decision.Windows))
	}
}

func TestController_RemoveLastLimitDeletesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetWeeklyLimit(ctx, "key-1", 5000); err != nil {
		t.Fatal(err)
	}
	if caps, _ := env.store.Size(); caps != 1 {
		t.Fatalf("expected 1 cap row, got %d", caps)
	}
	if err := env.ctrl.RemoveWeeklyLimit(ctx, "key-1"); err != nil {
		t.Fatalf("RemoveWeeklyLimit failed: %v", err)
	}
	if caps, _ := env.store.Size(); caps != 0 {
		t.Errorf("cap row should be deleted, %d remain", caps)
	}

	got, err := env.ctrl.GetLimits(ctx, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() {
		t.Errorf("GetLimits after removal = %+v, want empty", got)
	}
}

func TestController_RemoveOneOfSeveral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 100); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.SetMonthlyLimit(ctx, "key-1", 3000); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.RemoveDailyLimit(ctx, "key-1"); err != nil {
		t.Fatal(err)
	}

	got, err := env.ctrl.GetLimits(ctx, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Daily.Valid {
		t.Error("daily should be cleared")
	}
	if sats, ok := got.Monthly.Get(); !ok || sats != 3000 {
		t.Errorf("monthly = %d,%v, want 3000,true", sats, ok)
	}
}

func TestController_RemoveAllIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetAnnualLimit(ctx, "key-1", 1_000_000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := env.ctrl.RemoveAllLimits(ctx, "key-1"); err != nil {
			t.Fatalf("RemoveAllLimits #%d failed: %v", i+1, err)
		}
	}
	if err := env.ctrl.RemoveAnnualLimit(ctx, "key-1"); err != nil {
		t.Errorf("removing an unset limit should succeed: %v", err)
	}
}

func TestController_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "negative check",
			call: func() error { _, err := env.ctrl.Check(ctx, "key-1", -1); return err },
			want: ErrInvalidAmount,
		},
		{
			name: "zero record",
			call: func() error { return env.ctrl.Record(ctx, "key-1", 0, "") },
			want: ErrNonPositiveAmount,
		},
		{
			name: "negative record",
			call: func() error { return env.ctrl.Record(ctx, "key-1", -5, "") },
			want: ErrNonPositiveAmount,
		},
		{
			name: "zero limit",
			call: func() error { return env.ctrl.SetDailyLimit(ctx, "key-1", 0) },
			want: ErrInvalidLimit,
		},
		{
			name: "negative limit",
			call: func() error { return env.ctrl.SetWeeklyLimit(ctx, "key-1", -100) },
			want: ErrInvalidLimit,
		},
		{
			name: "unknown window",
			call: func() error { return env.ctrl.SetLimit(ctx, "key-1", Window(9), 100) },
			want: ErrUnknownWindow,
		},
		{
			name: "empty resource",
			call: func() error { _, err := env.ctrl.Check(ctx, "", 1); return err },
			want: ErrInvalidResourceID,
		},
		{
			name: "empty resource summary",
			call: func() error { _, err := env.ctrl.Summary(ctx, ""); return err },
			want: ErrInvalidResourceID,
		},
		{
			name: "check and record zero",
			call: func() error { _, err := env.ctrl.CheckAndRecord(ctx, "key-1", 0, ""); return err },
			want: ErrNonPositiveAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !IsValidationError(err) {
				t.Errorf("IsValidationError(%v) = false", err)
			}
			if errors.Is(err, ErrStore) {
				t.Errorf("validation error should not match ErrStore")
			}
		})
	}

	if caps, entries := env.store.Size(); caps != 0 || entries != 0 {
		t.Errorf("validation failures touched storage: caps=%d entries=%d", caps, entries)
	}
}

func TestController_StoreErrors(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	backend := &failingBackend{MemoryBackend: storage.NewMemoryBackend(storage.WithMemoryClock(clock.Now))}
	metrics := NewMetrics(nil)
	ctrl := NewController(Config{
		Storage: backend,
		Metrics: metrics,
		Logger:  logging.Discard(),
		Clock:   clock.Now,
	})
	ctx := context.Background()

	backend.failReads = true
	_, err := ctrl.Check(ctx, "key-1", 10)
	if !errors.Is(err, ErrStore) {
		t.Fatalf("Check error = %v, want ErrStore", err)
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Operation != "check" {
		t.Errorf("expected *StoreError for check, got %#v", err)
	}
	if !errors.Is(err, errBackendDown) {
		t.Error("StoreError should unwrap to the backend cause")
	}
	if IsValidationError(err) {
		t.Error("store error classified as validation error")
	}

	backend.failReads = false
	backend.failWrites = true
	if err := ctrl.Record(ctx, "key-1", 10, ""); !errors.Is(err, ErrStore) {
		t.Errorf("Record error = %v, want ErrStore", err)
	}

	if got := testutil.ToFloat64(metrics.storeErrors.WithLabelValues("check")); got != 1 {
		t.Errorf("store errors for check = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.storeErrors.WithLabelValues("record")); got != 1 {
		t.Errorf("store errors for record = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.recordedEntries); got != 0 {
		t.Errorf("failed record counted as recorded: %v", got)
	}
}

func TestController_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	if err := env.ctrl.SetDailyLimit(context.Background(), "key-1", 100); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.ctrl.Check(ctx, "key-1", 10)
	if !errors.Is(err, ErrStore) || !errors.Is(err, context.Canceled) {
		t.Errorf("Check with cancelled context = %v, want ErrStore wrapping context.Canceled", err)
	}
}

func TestController_PublishesSpendEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.Record(ctx, "key-1", 250, "invoice-9"); err != nil {
		t.Fatal(err)
	}

	got := env.publisher.Events()
	if len(got) != 1 {
		t.Fatalf("published %d events, want 1", len(got))
	}
	e := got[0]
	if e.ResourceID != "key-1" || e.AmountSats != 250 || e.ExternalRef != "invoice-9" {
		t.Errorf("unexpected event %+v", e)
	}
	if e.EntryID == "" {
		t.Error("event should carry the entry ID")
	}
	if !e.RecordedAt.Equal(env.clock.Now()) {
		t.Errorf("RecordedAt = %v, want %v", e.RecordedAt, env.clock.Now())
	}
}

func TestController_PublishFailureDoesNotFailRecord(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker down")

	if err := env.ctrl.Record(context.Background(), "key-1", 10, ""); err != nil {
		t.Fatalf("Record should not surface publish failures: %v", err)
	}
	if _, entries := env.store.Size(); entries != 1 {
		t.Errorf("entry should be committed, have %d", entries)
	}
}

// stalledPublisher blocks until the publish context ends, like a Kafka
// writer whose brokers are unreachable.
type stalledPublisher struct {
	errs chan error
}

func (p *stalledPublisher) PublishSpend(ctx context.Context, _ events.SpendRecorded) error {
	<-ctx.Done()
	p.errs <- ctx.Err()
	return ctx.Err()
}

func (p *stalledPublisher) Close() error { return nil }

func TestController_PublishBoundedByOperationTimeout(t *testing.T) {
	store := storage.NewMemoryBackend()
	t.Cleanup(func() { store.Close() })
	publisher := &stalledPublisher{errs: make(chan error, 1)}

	ctrl := NewController(Config{
		Storage:          store,
		Publisher:        publisher,
		Logger:           logging.Discard(),
		OperationTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	if err := ctrl.Record(context.Background(), "key-1", 10, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Record took %v with a stalled publisher", elapsed)
	}
	if err := <-publisher.errs; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("publish context error = %v, want deadline exceeded", err)
	}
	if _, entries := store.Size(); entries != 1 {
		t.Errorf("entry should be committed, have %d", entries)
	}
}

func TestController_OverflowingSpendStaysDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 1000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := env.ctrl.Record(ctx, "key-1", 5e18, ""); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	decision, err := env.ctrl.Check(ctx, "key-1", 1)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("resource far over its cap must be denied")
	}
	status, ok := decision.Window(Daily)
	if !ok {
		t.Fatal("expected a daily window status")
	}
	if status.SpentSats != math.MaxInt64 {
		t.Errorf("spent = %d, want saturated %d", status.SpentSats, int64(math.MaxInt64))
	}
	if status.RemainingSats >= 0 {
		t.Errorf("remaining = %d, want negative", status.RemainingSats)
	}

	fenced, err := env.ctrl.CheckAndRecord(ctx, "key-1", 1, "")
	if err != nil {
		t.Fatalf("CheckAndRecord failed: %v", err)
	}
	if fenced.Allowed {
		t.Error("fenced record must be denied once spend saturates")
	}
}

func TestController_Metrics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.Check(ctx, "key-1", 50); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.Check(ctx, "key-1", 500); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.Record(ctx, "key-1", 40, ""); err != nil {
		t.Fatal(err)
	}

	m := env.metrics
	if got := testutil.ToFloat64(m.checks.WithLabelValues("allowed")); got != 1 {
		t.Errorf("allowed checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.checks.WithLabelValues("denied")); got != 1 {
		t.Errorf("denied checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.denials.WithLabelValues("daily")); got != 1 {
		t.Errorf("daily denials = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.recordedSats); got != 40 {
		t.Errorf("recorded sats = %v, want 40", got)
	}
	if got := testutil.CollectAndCount(m.duration); got == 0 {
		t.Error("expected duration observations")
	}
}

func TestController_CheckAndRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 250); err != nil {
		t.Fatal(err)
	}

	var allowed int
	for i := 0; i < 4; i++ {
		decision, err := env.ctrl.CheckAndRecord(ctx, "key-1", 100, "")
		if err != nil {
			t.Fatalf("CheckAndRecord failed: %v", err)
		}
		if decision.Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed %d payments of 100 under cap 250, want 2", allowed)
	}
	if _, entries := env.store.Size(); entries != 2 {
		t.Errorf("ledger holds %d entries, want 2", entries)
	}
	if got := len(env.publisher.Events()); got != 2 {
		t.Errorf("published %d events, want 2", got)
	}
}

func TestController_CheckAndRecordUnlimited(t *testing.T) {
	env := newTestEnv(t)

	decision, err := env.ctrl.CheckAndRecord(context.Background(), "key-1", 1_000_000, "")
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Error("resource without caps must be allowed")
	}
	if _, entries := env.store.Size(); entries != 1 {
		t.Errorf("expected entry to be written, have %d", entries)
	}
}

func TestController_CheckAndRecordConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ctrl.SetDailyLimit(ctx, "key-1", 1000); err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := env.ctrl.CheckAndRecord(ctx, "key-1", 100, "")
			if err != nil {
				t.Errorf("CheckAndRecord failed: %v", err)
				return
			}
			if decision.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed %d concurrent payments, want 10", allowed)
	}
	summary, err := env.ctrl.Summary(ctx, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := summary.Window(Daily).SpentSats; got != 1000 {
		t.Errorf("daily spent = %d, want exactly the cap", got)
	}
}

func TestController_OperationTimeout(t *testing.T) {
	store := storage.NewMemoryBackend()
	t.Cleanup(func() { store.Close() })
	ctrl := NewController(Config{
		Storage:          store,
		Logger:           logging.Discard(),
		OperationTimeout: time.Second,
	})

	if _, err := ctrl.Check(context.Background(), "key-1", 1); err != nil {
		t.Errorf("Check within timeout failed: %v", err)
	}
}

func TestNewController_Defaults(t *testing.T) {
	ctrl := NewController(Config{})
	ctx := context.Background()

	if err := ctrl.SetDailyLimit(ctx, "key-1", 10); err != nil {
		t.Fatalf("default controller SetDailyLimit failed: %v", err)
	}
	if ctrl.Caps() == nil || ctrl.Aggregator() == nil {
		t.Error("accessors returned nil")
	}
	decision, err := ctrl.Check(ctx, "key-1", 11)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Error("11 should exceed cap 10")
	}
}
