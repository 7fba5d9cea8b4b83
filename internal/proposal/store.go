package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dongho-jung/lanes/internal/constants"
)

// ErrNotFound is returned when a run has no saved proposal.
var ErrNotFound = errors.New("merge proposal not found")

// Store persists one proposal per run at <runsDir>/<slug>/merge-proposal.json.
type Store struct {
	runsDir string
}

// NewStore creates a store rooted at runsDir.
func NewStore(runsDir string) *Store {
	return &Store{runsDir: runsDir}
}

func (s *Store) path(slug string) string {
	return filepath.Join(s.runsDir, slug, constants.ProposalFileName)
}

// Save replaces the run's proposal. The file is written to a temp file and
// renamed so readers never see a partial document.
func (s *Store) Save(p *Proposal) error {
	if p.RunSlug == "" {
		return fmt.Errorf("save proposal: run slug is empty")
	}
	path := s.path(p.RunSlug)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil { //nolint:gosec // G301: standard directory permissions
		return fmt.Errorf("create run directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode proposal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".merge-proposal-*.json")
	if err != nil {
		return fmt.Errorf("create temp proposal: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write proposal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close proposal: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace proposal: %w", err)
	}
	success = true
	return nil
}

// Load returns the last saved proposal for slug.
func (s *Store) Load(slug string) (*Proposal, error) {
	data, err := os.ReadFile(s.path(slug)) //nolint:gosec // G304: path is built from the runs directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
		}
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	var p Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	return &p, nil
}

// PromptDiff returns a unified diff between the prompt documents of two
// proposals. A nil previous proposal diffs against an empty document.
func PromptDiff(previous, current *Proposal) (string, error) {
	var a, b string
	if previous != nil {
		a = previous.Prompt
	}
	if current != nil {
		b = current.Prompt
	}
	if a == b {
		return "", nil
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
