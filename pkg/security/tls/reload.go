package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is the quiet period after a file event before the
// key pair is reloaded. Certificate renewal usually rewrites both files.
const DefaultReloadDebounce = 500 * time.Millisecond

// Reloader serves a certificate key pair and reloads it when the files
// change.
type Reloader struct {
	certFile string
	keyFile  string
	debounce time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewReloader loads the key pair and returns a reloader serving it.
func NewReloader(certFile, keyFile string, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reloader{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		debounce: DefaultReloadDebounce,
		logger:   logger.With("component", "tls"),
		now:      time.Now,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload loads and validates the key pair. On failure the current
// certificate is kept.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	leaf, err := Leaf(&cert, r.now())
	if err != nil {
		return err
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()

	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"issuer", leaf.Issuer.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if ExpiresSoon(leaf, r.now()) {
		r.logger.Warn("certificate expiring soon", attrs...)
	} else {
		r.logger.Info("certificate loaded", attrs...)
	}
	return nil
}

// Certificate returns the certificate currently served.
func (r *Reloader) Certificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.Certificate(), nil
}

// Watch reloads the key pair after changes to either file until ctx is
// cancelled. The parent directories are watched so atomic renames and
// Kubernetes secret symlink swaps are seen.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create certificate watcher: %w", err)
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %q: %w", dir, err)
		}
	}

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("certificate watcher events channel closed")
			}
			if r.relevant(event) {
				reload = time.After(r.debounce)
			}

		case <-reload:
			reload = nil
			if err := r.Reload(); err != nil {
				r.logger.Error("certificate reload failed, keeping previous certificate",
					"cert_file", r.certFile,
					"error", err,
				)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("certificate watcher errors channel closed")
			}
			r.logger.Error("certificate watcher error", "error", err)
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == r.certFile || name == r.keyFile ||
		strings.HasPrefix(filepath.Base(name), "..")
}
