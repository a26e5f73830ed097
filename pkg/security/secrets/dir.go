package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirProvider reads secrets from one file per secret in a directory, the
// layout produced by Kubernetes and Docker secret mounts. Trailing newlines
// are trimmed.
type DirProvider struct {
	dir string
}

// NewDirProvider creates a provider for dir, which must exist.
func NewDirProvider(dir string) (*DirProvider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secrets dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets dir is not a directory: %s", dir)
	}
	return &DirProvider{dir: abs}, nil
}

// GetSecret implements Provider. Names that would escape the directory and
// files writable by group or others are rejected.
func (p *DirProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.dir, name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: no file %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("secret %s is a directory", name)
	}
	if info.Mode().Perm()&0o022 != 0 {
		return "", fmt.Errorf("secret file %s is writable by group or others (mode %s)", name, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Name implements Provider.
func (p *DirProvider) Name() string { return "dir" }
