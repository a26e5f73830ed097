package provision

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change is re-applied.
const DefaultDebounce = 250 * time.Millisecond

// Watcher watches the provisioning file and re-applies it on change.
//
// The parent directory is watched rather than the file itself so that
// editors and config management tools that replace the file by rename are
// still observed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	path     string
	debounce *Debouncer

	// State
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		logger:   logger.With("component", "limits.provision.watcher"),
		path:     abs,
		debounce: NewDebouncer(debounce),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, invoking onChange
// after each debounced change to the file.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context) error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("provisioning watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("provisioning watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("provisioning watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			w.logger.Debug("provisioning file event", "op", event.Op.String())

			w.debounce.Trigger(func() {
				if err := onChange(ctx); err != nil {
					w.logger.Warn("provisioning change not applied", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Continue watching despite errors
			w.logger.Error("provisioning watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and cancels any pending re-apply. Safe to call
// more than once and before Watch.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	select {
	case <-w.stopCh:
		w.mu.Unlock()
		return nil
	default:
		close(w.stopCh)
	}
	w.mu.Unlock()

	if running {
		<-w.doneCh
	}
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// shouldProcessEvent reports whether event concerns the watched file.
func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// Debouncer collects rapid events and runs the latest callback only after
// a quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.callback = nil
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
