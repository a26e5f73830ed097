package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/spendcap/pkg/limits/caps"
	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
	"mercator-hq/spendcap/pkg/telemetry/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestProvisioner(t *testing.T) (*Provisioner, *caps.Manager, string) {
	t.Helper()
	store := storage.NewMemoryBackend()
	t.Cleanup(func() { store.Close() })

	manager := caps.NewManager(store, logging.Discard())
	path := filepath.Join(t.TempDir(), "caps.yaml")
	return NewProvisioner(manager, path, logging.Discard()), manager, path
}

func capOf(t *testing.T, m *caps.Manager, id string, w window.Window) (int64, bool) {
	t.Helper()
	c, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return c.Get(w).Get()
}

func TestProvisioner_Apply(t *testing.T) {
	p, manager, path := newTestProvisioner(t)
	ctx := context.Background()

	writeFile(t, path, `
resources:
  - id: key-1
    daily: 1000
    monthly: 20000
  - id: key-2
    weekly: 300
`)

	res, err := p.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if res.Applied != 2 || res.Removed != 0 {
		t.Errorf("result = %+v, want 2 applied", res)
	}
	if sats, ok := capOf(t, manager, "key-1", window.Daily); !ok || sats != 1000 {
		t.Errorf("key-1 daily = %d,%v", sats, ok)
	}
	if sats, ok := capOf(t, manager, "key-2", window.Weekly); !ok || sats != 300 {
		t.Errorf("key-2 weekly = %d,%v", sats, ok)
	}
}

func TestProvisioner_ReapplyReconciles(t *testing.T) {
	p, manager, path := newTestProvisioner(t)
	ctx := context.Background()

	// Set outside the file; must survive reloads.
	if err := manager.SetAnnual(ctx, "manual", 5000); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, `
resources:
  - id: key-1
    daily: 1000
    monthly: 20000
  - id: key-2
    weekly: 300
`)
	if _, err := p.Apply(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, `
resources:
  - id: key-1
    daily: 1500
`)
	res, err := p.Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 1 || res.Removed != 1 {
		t.Errorf("result = %+v, want 1 applied 1 removed", res)
	}

	if sats, ok := capOf(t, manager, "key-1", window.Daily); !ok || sats != 1500 {
		t.Errorf("key-1 daily = %d,%v, want 1500", sats, ok)
	}
	if _, ok := capOf(t, manager, "key-1", window.Monthly); ok {
		t.Error("key-1 monthly should be cleared")
	}
	if _, ok := capOf(t, manager, "key-2", window.Weekly); ok {
		t.Error("key-2 dropped from file should have no caps")
	}
	if sats, ok := capOf(t, manager, "manual", window.Annual); !ok || sats != 5000 {
		t.Error("caps not managed by the file must be left alone")
	}
}

func TestProvisioner_InvalidFileKeepsCaps(t *testing.T) {
	p, manager, path := newTestProvisioner(t)
	ctx := context.Background()

	writeFile(t, path, "resources:\n  - id: key-1\n    daily: 1000\n")
	if _, err := p.Apply(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "resources:\n  - id: key-1\n    daily: -1\n")
	if err := p.Reload(ctx); err == nil {
		t.Fatal("Reload of invalid file should fail")
	}

	if sats, ok := capOf(t, manager, "key-1", window.Daily); !ok || sats != 1000 {
		t.Errorf("invalid file changed caps: daily = %d,%v", sats, ok)
	}
}

func TestProvisioner_StateFileSurvivesRestart(t *testing.T) {
	store := storage.NewMemoryBackend()
	t.Cleanup(func() { store.Close() })
	manager := caps.NewManager(store, logging.Discard())
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "caps.yaml")
	statePath := filepath.Join(dir, "caps.state.yaml")

	writeFile(t, path, `
resources:
  - id: key-1
    daily: 1000
  - id: key-2
    weekly: 300
`)
	first := NewProvisioner(manager, path, logging.Discard(), WithStateFile(statePath))
	if _, err := first.Apply(ctx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	// key-2 is dropped while no provisioner is running.
	writeFile(t, path, "resources:\n  - id: key-1\n    daily: 1000\n")

	restarted := NewProvisioner(manager, path, logging.Discard(), WithStateFile(statePath))
	res, err := restarted.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply after restart failed: %v", err)
	}
	if res.Removed != 1 {
		t.Errorf("result = %+v, want 1 removed", res)
	}
	if _, ok := capOf(t, manager, "key-2", window.Weekly); ok {
		t.Error("key-2 dropped while down should have no caps")
	}
	if sats, ok := capOf(t, manager, "key-1", window.Daily); !ok || sats != 1000 {
		t.Errorf("key-1 daily = %d,%v, want 1000", sats, ok)
	}

	ids, err := loadState(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ids["key-2"]; ok || len(ids) != 1 {
		t.Errorf("state = %v, want only key-1", ids)
	}
}

func TestProvisioner_WithoutStateForgetsOnRestart(t *testing.T) {
	p, manager, path := newTestProvisioner(t)
	ctx := context.Background()

	writeFile(t, path, "resources:\n  - id: key-1\n    daily: 1000\n  - id: key-2\n    weekly: 300\n")
	if _, err := p.Apply(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "resources:\n  - id: key-1\n    daily: 1000\n")
	restarted := NewProvisioner(manager, path, logging.Discard())
	res, err := restarted.Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 0 {
		t.Errorf("in-memory provisioner removed %d resources it never applied", res.Removed)
	}
	if _, ok := capOf(t, manager, "key-2", window.Weekly); !ok {
		t.Error("without a state file key-2 keeps its caps until cleared by hand")
	}
}

func TestLoadState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeFile(t, path, "resources: [unterminated\n")
	if _, err := loadState(path); err == nil {
		t.Error("corrupt state file should fail to load")
	}
}
