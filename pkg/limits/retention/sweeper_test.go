package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
	"mercator-hq/spendcap/pkg/telemetry/logging"
)

var testNow = time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)

func seed(t *testing.T, store storage.Backend, ages ...time.Duration) {
	t.Helper()
	for _, age := range ages {
		err := store.InsertEntry(context.Background(), &storage.LedgerEntry{
			ResourceID: "key-1",
			AmountSats: 10,
			CreatedAt:  testNow.Add(-age),
		})
		if err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}
}

func TestValidateHorizon(t *testing.T) {
	tests := []struct {
		name    string
		horizon time.Duration
		wantErr bool
	}{
		{"default", DefaultHorizon, false},
		{"minimum", MinHorizon, false},
		{"exactly annual", window.Annual.Duration(), true},
		{"one week", 7 * window.Day, true},
		{"negative", -time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHorizon(tt.horizon)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateHorizon(%s) error = %v, wantErr %v", tt.horizon, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrHorizonTooShort) {
				t.Errorf("error should wrap ErrHorizonTooShort, got %v", err)
			}
		})
	}
}

func TestNewSweeper(t *testing.T) {
	store := storage.NewMemoryBackend()
	defer store.Close()

	s, err := NewSweeper(store, 0)
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}
	if s.Horizon() != DefaultHorizon {
		t.Errorf("Horizon() = %s, want %s", s.Horizon(), DefaultHorizon)
	}

	if _, err := NewSweeper(store, 30*window.Day); !errors.Is(err, ErrHorizonTooShort) {
		t.Errorf("NewSweeper with 30d horizon error = %v, want ErrHorizonTooShort", err)
	}
}

func TestSweeper_Sweep(t *testing.T) {
	store := storage.NewMemoryBackend()
	defer store.Close()

	seed(t, store,
		time.Hour,
		364*window.Day,
		399*window.Day,
		401*window.Day,
		800*window.Day,
	)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s, err := NewSweeper(store, DefaultHorizon,
		WithClock(func() time.Time { return testNow }),
		WithLogger(logging.Discard()),
		WithMetrics(metrics),
	)
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, entries := store.Size(); entries != 3 {
		t.Errorf("remaining entries = %d, want 3", entries)
	}

	// Annual spend is untouched by the sweep.
	totals, err := store.Aggregate(context.Background(), "key-1",
		[]time.Time{testNow.Add(-window.Annual.Duration())})
	if err != nil {
		t.Fatal(err)
	}
	if totals[0].SpentSats != 20 {
		t.Errorf("annual spend after sweep = %d, want 20", totals[0].SpentSats)
	}

	if got := testutil.ToFloat64(metrics.sweptRows); got != 2 {
		t.Errorf("swept rows metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.lastSweep); got != float64(testNow.Unix()) {
		t.Errorf("last sweep metric = %v, want %d", got, testNow.Unix())
	}

	deleted, err = s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("second sweep deleted %d, want 0", deleted)
	}
}

func TestSweeper_StoreFailure(t *testing.T) {
	store := storage.NewMemoryBackend()
	store.Close()

	metrics := NewMetrics(nil)
	s, err := NewSweeper(store, 0, WithLogger(logging.Discard()), WithMetrics(metrics))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Sweep(context.Background()); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Sweep on closed store error = %v, want ErrClosed", err)
	}
	if got := testutil.ToFloat64(metrics.lastSweep); got != 0 {
		t.Errorf("failed sweep updated last sweep timestamp: %v", got)
	}
}
