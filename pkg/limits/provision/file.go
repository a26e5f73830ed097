package provision

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
)

// ErrInvalidFile is wrapped by every parse and validation failure.
var ErrInvalidFile = errors.New("invalid provisioning file")

// File is the parsed provisioning document.
type File struct {
	Resources []Resource `yaml:"resources"`
}

// Resource declares the caps of one resource. Nil fields are unlimited.
type Resource struct {
	ID      string `yaml:"id"`
	Daily   *int64 `yaml:"daily,omitempty"`
	Weekly  *int64 `yaml:"weekly,omitempty"`
	Monthly *int64 `yaml:"monthly,omitempty"`
	Annual  *int64 `yaml:"annual,omitempty"`
}

// SpendCap converts the declaration into a cap record.
func (r Resource) SpendCap() storage.SpendCap {
	c := storage.SpendCap{ResourceID: r.ID}
	for w, v := range r.fields() {
		if v != nil {
			c.Set(w, storage.LimitOf(*v))
		}
	}
	return c
}

func (r Resource) fields() map[window.Window]*int64 {
	return map[window.Window]*int64{
		window.Daily:   r.Daily,
		window.Weekly:  r.Weekly,
		window.Monthly: r.Monthly,
		window.Annual:  r.Annual,
	}
}

// Load reads and validates a provisioning file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioning file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a provisioning document. Unknown fields are
// rejected so a misspelled window name is not silently treated as unlimited.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			// empty document
			return &f, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks IDs and cap values.
func (f *File) Validate() error {
	seen := make(map[string]int, len(f.Resources))
	for i, r := range f.Resources {
		if err := storage.ValidateResourceID(r.ID); err != nil {
			return fmt.Errorf("%w: resources[%d]: %v", ErrInvalidFile, i, err)
		}
		if j, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: resources[%d]: id %q already declared at resources[%d]",
				ErrInvalidFile, i, r.ID, j)
		}
		seen[r.ID] = i

		for _, w := range window.All() {
			if v := r.fields()[w]; v != nil && *v <= 0 {
				return fmt.Errorf("%w: resources[%d] (%s): %s cap must be positive, got %d",
					ErrInvalidFile, i, r.ID, w, *v)
			}
		}
	}
	return nil
}
