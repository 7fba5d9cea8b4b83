package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dongho-jung/lanes/internal/constants"
)

// ErrRunNotFound is returned when a run has no plan record.
var ErrRunNotFound = errors.New("run not found")

// Store reads run records from a runs directory laid out as
// <runsDir>/<slug>/{plan.yaml,status.yaml}.
type Store struct {
	runsDir string
}

// NewStore creates a store rooted at runsDir.
func NewStore(runsDir string) *Store {
	return &Store{runsDir: runsDir}
}

// RunsDir returns the root directory of the store.
func (s *Store) RunsDir() string {
	return s.runsDir
}

// RunDir returns the directory of a run.
func (s *Store) RunDir(slug string) string {
	return filepath.Join(s.runsDir, slug)
}

// LoadRun reads and validates the plan record of a run.
func (s *Store) LoadRun(slug string) (*Run, error) {
	if slug == "" || slug != filepath.Base(slug) || slug == "." || slug == ".." {
		return nil, fmt.Errorf("%w: invalid slug %q", ErrRunNotFound, slug)
	}

	path := filepath.Join(s.RunDir(slug), constants.PlanFileName)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the runs directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, slug)
		}
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	var r Run
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if r.Slug == "" {
		r.Slug = slug
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadStatus reads the status record of a run. A missing status file means
// every lane is pending.
func (s *Store) LoadStatus(slug string) (*Status, error) {
	path := filepath.Join(s.RunDir(slug), constants.StatusFileName)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the runs directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Status{Lanes: map[string]LaneStatus{}}, nil
		}
		return nil, fmt.Errorf("failed to read status %s: %w", path, err)
	}

	var st Status
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse status %s: %w", path, err)
	}
	if st.Lanes == nil {
		st.Lanes = map[string]LaneStatus{}
	}
	return &st, nil
}

// ListRuns returns the slugs of every run that has a plan record, sorted.
func (s *Store) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.runsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var slugs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.runsDir, entry.Name(), constants.PlanFileName)); err == nil {
			slugs = append(slugs, entry.Name())
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}
