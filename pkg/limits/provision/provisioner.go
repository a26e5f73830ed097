package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mercator-hq/spendcap/pkg/limits/caps"
)

// Result summarises one apply pass.
type Result struct {
	// Applied is the number of resources reconciled to the file.
	Applied int

	// Removed is the number of resources dropped from the file whose caps
	// were cleared.
	Removed int
}

// Provisioner reconciles stored caps to a provisioning file.
//
// Without a state file the set of managed resources lives in memory, so a
// resource dropped from the file while the process is down keeps its caps
// until "spendcap limits clear" removes them.
type Provisioner struct {
	caps      *caps.Manager
	path      string
	statePath string
	logger    *slog.Logger

	mu      sync.Mutex
	applied map[string]struct{}
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithStateFile persists the managed resource IDs at path across restarts.
func WithStateFile(path string) Option {
	return func(p *Provisioner) {
		p.statePath = path
	}
}

// NewProvisioner creates a provisioner for the file at path.
func NewProvisioner(manager *caps.Manager, path string, logger *slog.Logger, opts ...Option) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provisioner{
		caps:   manager,
		path:   path,
		logger: logger.With("component", "limits.provision", "path", path),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path returns the provisioning file path.
func (p *Provisioner) Path() string {
	return p.path
}

// Apply loads the file and reconciles every listed resource. On a parse or
// validation error nothing is written.
func (p *Provisioner) Apply(ctx context.Context) (Result, error) {
	f, err := Load(p.path)
	if err != nil {
		return Result{}, err
	}
	return p.ApplyFile(ctx, f)
}

// ApplyFile reconciles stored caps to f.
func (p *Provisioner) ApplyFile(ctx context.Context, f *File) (res Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.applied == nil {
		if err := p.loadApplied(); err != nil {
			return res, err
		}
	}
	if p.statePath != "" {
		// Persist whatever was reconciled, even when a later step fails.
		defer func() {
			if saveErr := saveState(p.statePath, p.path, p.applied); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
		}()
	}

	listed := make(map[string]struct{}, len(f.Resources))
	for _, r := range f.Resources {
		if err := p.caps.Apply(ctx, r.ID, r.SpendCap()); err != nil {
			return res, fmt.Errorf("apply caps for %q: %w", r.ID, err)
		}
		listed[r.ID] = struct{}{}
		p.applied[r.ID] = struct{}{}
		res.Applied++
	}

	// Clear resources this provisioner wrote earlier that the file no
	// longer lists. Sorted for deterministic logs.
	var stale []string
	for id := range p.applied {
		if _, ok := listed[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		if err := p.caps.RemoveAll(ctx, id); err != nil {
			return res, fmt.Errorf("remove caps for %q: %w", id, err)
		}
		delete(p.applied, id)
		res.Removed++
	}

	p.logger.InfoContext(ctx, "provisioned spend caps",
		"applied", res.Applied,
		"removed", res.Removed,
	)
	return res, nil
}

func (p *Provisioner) loadApplied() error {
	if p.statePath == "" {
		p.applied = make(map[string]struct{})
		return nil
	}
	ids, err := loadState(p.statePath)
	if err != nil {
		return err
	}
	p.applied = ids
	return nil
}

// Reload applies the file and logs failures instead of returning them.
// It is the callback used by Watch.
func (p *Provisioner) Reload(ctx context.Context) error {
	if _, err := p.Apply(ctx); err != nil {
		p.logger.ErrorContext(ctx, "provisioning reload failed, keeping current caps", "error", err)
		return err
	}
	return nil
}
