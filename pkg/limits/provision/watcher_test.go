package provision

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/spendcap/pkg/limits/window"
	"mercator-hq/spendcap/pkg/telemetry/logging"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_ReappliesOnChange(t *testing.T) {
	p, manager, path := newTestProvisioner(t)
	writeFile(t, path, "resources:\n  - id: key-1\n    daily: 100\n")
	if _, err := p.Apply(context.Background()); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, 20*time.Millisecond, logging.Discard())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, p.Reload) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "resources:\n  - id: key-1\n    daily: 200\n")

	ok := waitFor(t, 3*time.Second, func() bool {
		sats, _ := capOf(t, manager, "key-1", window.Daily)
		return sats == 200
	})
	if !ok {
		t.Error("caps were not re-applied after the file changed")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	_, _, path := newTestProvisioner(t)
	writeFile(t, path, "resources: []\n")

	w, err := NewWatcher(path, 20*time.Millisecond, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = w.Watch(ctx, func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, path+".bak", "unrelated")
	time.Sleep(200 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("callback ran %d times for an unrelated file", n)
	}
	cancel()
	_ = w.Stop()
}

func TestWatcher_StopWithoutWatch(t *testing.T) {
	w, err := NewWatcher("caps.yaml", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(2 * time.Millisecond)
	}

	if !waitFor(t, time.Second, func() bool { return calls.Load() == 1 }) {
		t.Fatalf("callback ran %d times, want 1", calls.Load())
	}
	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callback ran %d times after quiet period, want 1", n)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("callback ran %d times after Stop", n)
	}
}
