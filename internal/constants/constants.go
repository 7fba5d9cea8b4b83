// Package constants defines shared constants used throughout the lanes application.
package constants

import (
	"path"
	"strings"
	"time"
)

// Git timeouts
const (
	GitCommandTimeout = 30 * time.Second // Upper bound for any single git invocation
	GitMergeTimeout   = 2 * time.Minute  // Merges and cherry-picks may rewrite many files
)

// Inspection settings
const (
	DefaultInspectConcurrency = 8 // Parallel read-only git queries during inspection
)

// Branch names
const (
	PrimaryTrunk = "main"
	LegacyTrunk  = "master"
)

// MainMergeLaneID is the sentinel lane id reported when folding the
// integration branch into the trunk produces a conflict.
const MainMergeLaneID = "__main__"

// Directory and file names
const (
	LanesDirName         = ".lanes"
	RunsDirName          = "runs"
	PlanFileName         = "plan.yaml"
	StatusFileName       = "status.yaml"
	ProposalFileName     = "merge-proposal.json"
	LedgerFileName       = "ledger.db"
	PromptsDirName       = "prompts"
	LogFileName          = "log"
	ConfigFileName       = "config.yaml"
	EnvLocalFileName     = ".env.local"
	DefaultListenAddress = "127.0.0.1:7878"
)

// BookkeepingFiles are lane-local artifacts that every lane writes for itself.
// They never count toward overlap or conflict detection. Matched by base name.
var BookkeepingFiles = []string{
	".lane-status.json",
	"LANE_NOTES.md",
	"PROGRESS.md",
	".lane",
	"LANE_LOG.md",
}

// IsBookkeepingFile reports whether the given repository path is a lane-local
// bookkeeping artifact.
func IsBookkeepingFile(p string) bool {
	base := path.Base(strings.TrimSuffix(p, "/"))
	for _, name := range BookkeepingFiles {
		if base == name {
			return true
		}
	}
	return false
}

// Commit message templates
const (
	CommitMessageSquash   = "lanes(%s): squash %s into %s"
	CommitMessageMerge    = "lanes(%s): merge %s into %s"
	CommitMessageMainFold = "lanes: merge %s into %s"
)

// FormatLaneForCommit turns a lane id such as "api_auth-flow" into a
// human-readable commit subject fragment ("api auth flow").
func FormatLaneForCommit(laneID string) string {
	r := strings.NewReplacer("-", " ", "_", " ")
	return strings.Join(strings.Fields(r.Replace(laneID)), " ")
}
