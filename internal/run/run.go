// Package run defines the run, lane, and status records that the merge
// choreography reads. The records are authored elsewhere; lanes only loads them.
package run

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dongho-jung/lanes/internal/logging"
)

// MergeMethod names how a lane is folded into the integration branch.
type MergeMethod string

const (
	MethodSquash     MergeMethod = "squash"
	MethodMerge      MergeMethod = "merge"
	MethodCherryPick MergeMethod = "cherry-pick"
)

// Valid reports whether m is one of the known merge methods.
func (m MergeMethod) Valid() bool {
	switch m {
	case MethodSquash, MethodMerge, MethodCherryPick:
		return true
	}
	return false
}

// ParseMergeMethod converts a user-supplied string into a MergeMethod.
func ParseMergeMethod(s string) (MergeMethod, error) {
	m := MergeMethod(s)
	if s == "cherrypick" || s == "cherry_pick" {
		m = MethodCherryPick
	}
	if !m.Valid() {
		return "", fmt.Errorf("unknown merge method %q (want squash, merge, or cherry-pick)", s)
	}
	return m, nil
}

// LaneStatus is the completion state of a lane.
type LaneStatus string

const (
	StatusPending    LaneStatus = "pending"
	StatusInProgress LaneStatus = "in_progress"
	StatusComplete   LaneStatus = "complete"
	StatusFailed     LaneStatus = "failed"
	StatusConflict   LaneStatus = "conflict"
)

// Lane is one independently developed unit of work.
type Lane struct {
	ID        string   `yaml:"id" json:"id" validate:"required"`
	Branch    string   `yaml:"branch" json:"branch" validate:"required"`
	Worktree  string   `yaml:"worktree,omitempty" json:"worktree,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"dependsOn,omitempty"`
	Role      string   `yaml:"role,omitempty" json:"role,omitempty"`
}

// Run is one coordinated integration effort.
type Run struct {
	ID                 string      `yaml:"id" json:"id" validate:"required"`
	Slug               string      `yaml:"slug" json:"slug" validate:"required"`
	IntegrationBranch  string      `yaml:"integration_branch" json:"integrationBranch" validate:"required"`
	RepoPath           string      `yaml:"repo_path" json:"repoPath" validate:"required"`
	Goal               string      `yaml:"goal,omitempty" json:"goal,omitempty"`
	Lanes              []Lane      `yaml:"lanes" json:"lanes" validate:"dive"`
	DefaultMergeMethod MergeMethod `yaml:"default_merge_method,omitempty" json:"defaultMergeMethod,omitempty"`
}

// Lane returns the lane with the given id.
func (r *Run) Lane(id string) (Lane, bool) {
	for _, l := range r.Lanes {
		if l.ID == id {
			return l, true
		}
	}
	return Lane{}, false
}

// LaneIDs returns lane ids in plan order.
func (r *Run) LaneIDs() []string {
	ids := make([]string, len(r.Lanes))
	for i, l := range r.Lanes {
		ids[i] = l.ID
	}
	return ids
}

// PushPreferences are optional per-run push settings carried in the status record.
type PushPreferences struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Remote  string `yaml:"remote,omitempty" json:"remote,omitempty"`
}

// ObservedMergeState is the last merge state an external observer recorded.
type ObservedMergeState struct {
	Phase         string    `yaml:"phase" json:"phase"`
	CurrentLane   string    `yaml:"current_lane,omitempty" json:"currentLane,omitempty"`
	ConflictFiles []string  `yaml:"conflict_files,omitempty" json:"conflictFiles,omitempty"`
	UpdatedAt     time.Time `yaml:"updated_at,omitempty" json:"updatedAt,omitempty"`
}

// Status is the mutable per-lane status record of a run.
type Status struct {
	Lanes      map[string]LaneStatus `yaml:"lanes" json:"lanes"`
	Push       *PushPreferences      `yaml:"push,omitempty" json:"push,omitempty"`
	MergeState *ObservedMergeState   `yaml:"merge_state,omitempty" json:"mergeState,omitempty"`
}

// Of returns the status of a lane; lanes without an entry are pending.
func (s *Status) Of(laneID string) LaneStatus {
	if s == nil || s.Lanes == nil {
		return StatusPending
	}
	if st, ok := s.Lanes[laneID]; ok && st != "" {
		return st
	}
	return StatusPending
}

// IsComplete reports whether the lane is a merge candidate.
func (s *Status) IsComplete(laneID string) bool {
	return s.Of(laneID) == StatusComplete
}

var planValidate = validator.New()

// Validate checks required fields and lane id uniqueness, and drops
// dependencies on lanes that are not part of the run.
func (r *Run) Validate() error {
	if err := planValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	if r.DefaultMergeMethod != "" && !r.DefaultMergeMethod.Valid() {
		return fmt.Errorf("invalid plan: unknown default_merge_method %q", r.DefaultMergeMethod)
	}

	seen := make(map[string]bool, len(r.Lanes))
	for _, l := range r.Lanes {
		if seen[l.ID] {
			return fmt.Errorf("invalid plan: duplicate lane id %q", l.ID)
		}
		seen[l.ID] = true
	}

	for i := range r.Lanes {
		lane := &r.Lanes[i]
		kept := lane.DependsOn[:0]
		for _, dep := range lane.DependsOn {
			switch {
			case dep == lane.ID:
				logging.Warn("lane %s depends on itself, ignoring", lane.ID)
			case !seen[dep]:
				logging.Warn("lane %s depends on unknown lane %s, ignoring", lane.ID, dep)
			default:
				kept = append(kept, dep)
			}
		}
		lane.DependsOn = kept
	}
	return nil
}
