package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// state is the on-disk record of the resources a provisioning file manages.
// It lets a restarted process clear resources dropped from the file while
// it was down.
type state struct {
	File      string   `yaml:"file"`
	Resources []string `yaml:"resources"`
}

// loadState reads the managed resource IDs. A missing file is an empty set.
func loadState(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioning state %q: %w", path, err)
	}

	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning state %q: %w", path, err)
	}
	ids := make(map[string]struct{}, len(st.Resources))
	for _, id := range st.Resources {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// saveState replaces the state file atomically.
func saveState(path, file string, ids map[string]struct{}) error {
	st := state{File: file, Resources: make([]string, 0, len(ids))}
	for id := range ids {
		st.Resources = append(st.Resources, id)
	}
	sort.Strings(st.Resources)

	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to encode provisioning state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".provision-state-*")
	if err != nil {
		return fmt.Errorf("failed to write provisioning state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write provisioning state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write provisioning state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write provisioning state: %w", err)
	}
	return nil
}
