// Package inspect reports how far each lane branch has diverged from its base.
package inspect

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dongho-jung/lanes/internal/constants"
	"github.com/dongho-jung/lanes/internal/git"
	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/run"
)

var (
	// ErrNoBaseBranch means neither the integration branch nor a trunk exists.
	ErrNoBaseBranch = errors.New("no base branch")
	// ErrBranchMissing means the lane branch does not exist.
	ErrBranchMissing = errors.New("branch missing")
)

// LaneState is the inspection result for one lane. Err is set when the lane
// could not be inspected; the other lanes' results remain valid.
type LaneState struct {
	LaneID       string   `json:"laneId"`
	Branch       string   `json:"branch"`
	Base         string   `json:"base,omitempty"`
	CommitsAhead int      `json:"commitsAhead"`
	ChangedFiles []string `json:"changedFiles"`
	Err          error    `json:"-"`
}

// Degraded reports whether the lane could not be inspected.
func (s LaneState) Degraded() bool {
	return s.Err != nil
}

// Inspector answers branch-state queries against one repository.
type Inspector struct {
	git         git.Client
	repo        string
	concurrency int
}

// New creates an inspector for repo. concurrency bounds parallel git queries.
func New(client git.Client, repo string, concurrency int) *Inspector {
	if concurrency < 1 {
		concurrency = constants.DefaultInspectConcurrency
	}
	return &Inspector{git: client, repo: repo, concurrency: concurrency}
}

// ResolveBase returns preferred if it exists, otherwise the primary and then
// the legacy trunk name.
func (i *Inspector) ResolveBase(preferred string) (string, error) {
	for _, candidate := range []string{preferred, constants.PrimaryTrunk, constants.LegacyTrunk} {
		if candidate == "" {
			continue
		}
		if i.git.BranchExists(i.repo, candidate) {
			if candidate != preferred {
				logging.Debug("base %q missing, falling back to %s", preferred, candidate)
			}
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: tried %q, %s, %s", ErrNoBaseBranch, preferred, constants.PrimaryTrunk, constants.LegacyTrunk)
}

// ResolveTrunk returns the primary trunk name, falling back to the legacy one.
func (i *Inspector) ResolveTrunk() (string, error) {
	return i.ResolveBase("")
}

// CommitsAhead counts commits on laneBranch that are not on the resolved base.
func (i *Inspector) CommitsAhead(laneBranch, preferred string) (int, error) {
	base, err := i.prepare(laneBranch, preferred)
	if err != nil {
		return 0, err
	}
	return i.git.CountCommits(i.repo, base, laneBranch)
}

// ChangedFiles lists paths changed on laneBranch since it diverged from the
// resolved base. Files changed only on the base are excluded.
func (i *Inspector) ChangedFiles(laneBranch, preferred string) ([]string, error) {
	base, err := i.prepare(laneBranch, preferred)
	if err != nil {
		return []string{}, err
	}
	return i.changedFiles(base, laneBranch)
}

func (i *Inspector) changedFiles(base, laneBranch string) ([]string, error) {
	files, err := i.git.DiffNameOnly(i.repo, base, laneBranch)
	if err != nil {
		return []string{}, err
	}
	return sortedUnique(files), nil
}

func (i *Inspector) prepare(laneBranch, preferred string) (string, error) {
	base, err := i.ResolveBase(preferred)
	if err != nil {
		return "", err
	}
	if !i.git.BranchExists(i.repo, laneBranch) {
		return "", fmt.Errorf("%w: %s", ErrBranchMissing, laneBranch)
	}
	return base, nil
}

// InspectLanes inspects every lane concurrently. The returned slice follows
// the order of lanes.
func (i *Inspector) InspectLanes(preferred string, lanes []run.Lane) []LaneState {
	timer := logging.StartTimer("inspect lanes")
	defer timer.Stop()

	states := make([]LaneState, len(lanes))
	base, baseErr := i.ResolveBase(preferred)

	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for idx, lane := range lanes {
		states[idx] = LaneState{LaneID: lane.ID, Branch: lane.Branch, Base: base, ChangedFiles: []string{}}
		if baseErr != nil {
			states[idx].Err = baseErr
			continue
		}
		g.Go(func() error {
			states[idx] = i.inspectLane(base, lane)
			return nil
		})
	}
	_ = g.Wait()

	for _, st := range states {
		if st.Err != nil {
			logging.Warn("lane %s degraded: %v", st.LaneID, st.Err)
		}
	}
	return states
}

func (i *Inspector) inspectLane(base string, lane run.Lane) LaneState {
	st := LaneState{LaneID: lane.ID, Branch: lane.Branch, Base: base, ChangedFiles: []string{}}
	if !i.git.BranchExists(i.repo, lane.Branch) {
		st.Err = fmt.Errorf("%w: %s", ErrBranchMissing, lane.Branch)
		return st
	}

	count, err := i.git.CountCommits(i.repo, base, lane.Branch)
	if err != nil {
		st.Err = fmt.Errorf("count commits: %w", err)
		return st
	}
	files, err := i.changedFiles(base, lane.Branch)
	if err != nil {
		st.Err = fmt.Errorf("changed files: %w", err)
		return st
	}
	st.CommitsAhead = count
	st.ChangedFiles = files
	return st
}

func sortedUnique(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
