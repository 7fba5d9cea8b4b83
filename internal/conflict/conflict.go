// Package conflict splits file overlaps between lanes into ancestry-explained
// ("included") and independent ("conflicting") overlaps and derives a risk tier.
package conflict

import (
	"sort"

	"github.com/dongho-jung/lanes/internal/ancestry"
	"github.com/dongho-jung/lanes/internal/constants"
)

// RiskTier is a coarse classification of unresolved overlap with other lanes.
type RiskTier string

const (
	RiskNone   RiskTier = "none"
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Elevated reports whether the tier is medium or high.
func (t RiskTier) Elevated() bool {
	return t == RiskMedium || t == RiskHigh
}

// TierFor maps a conflicting-lane count to a risk tier.
func TierFor(conflicting int) RiskTier {
	switch {
	case conflicting <= 0:
		return RiskNone
	case conflicting == 1:
		return RiskLow
	case conflicting <= 3:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Assessment is the conflict picture of one lane against every other lane.
type Assessment struct {
	LaneID           string              `json:"laneId"`
	OverlappingLanes []string            `json:"overlappingLanes"`
	IncludedLanes    []string            `json:"includedLanes"`
	ConflictingLanes []string            `json:"conflictingLanes"`
	SharedFiles      map[string][]string `json:"sharedFiles,omitempty"`
	RiskTier         RiskTier            `json:"riskTier"`
}

// FilterBookkeeping drops lane-local bookkeeping artifacts from files.
func FilterBookkeeping(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !constants.IsBookkeepingFile(f) {
			out = append(out, f)
		}
	}
	return out
}

// Classify assesses laneID against every other lane in files. files maps lane
// ids to their changed paths; anc is the containment relation for the same lanes.
func Classify(laneID string, files map[string][]string, anc ancestry.Map) Assessment {
	a := Assessment{
		LaneID:           laneID,
		OverlappingLanes: []string{},
		IncludedLanes:    []string{},
		ConflictingLanes: []string{},
		SharedFiles:      map[string][]string{},
	}

	mine := toSet(FilterBookkeeping(files[laneID]))
	for _, other := range sortedKeys(files) {
		if other == laneID {
			continue
		}
		shared := intersect(mine, FilterBookkeeping(files[other]))
		if len(shared) == 0 {
			continue
		}
		a.OverlappingLanes = append(a.OverlappingLanes, other)
		a.SharedFiles[other] = shared
		if anc.Related(laneID, other) {
			a.IncludedLanes = append(a.IncludedLanes, other)
		} else {
			a.ConflictingLanes = append(a.ConflictingLanes, other)
		}
	}

	a.RiskTier = TierFor(len(a.ConflictingLanes))
	return a
}

// ClassifyAll assesses every lane in files.
func ClassifyAll(files map[string][]string, anc ancestry.Map) map[string]Assessment {
	out := make(map[string]Assessment, len(files))
	for id := range files {
		out[id] = Classify(id, files, anc)
	}
	return out
}

// OverlapMatrix returns, for every unordered pair of lanes sharing at least one
// non-bookkeeping path, the shared paths. Both orientations are present.
func OverlapMatrix(files map[string][]string) map[string]map[string][]string {
	ids := sortedKeys(files)
	filtered := make(map[string]map[string]bool, len(ids))
	for _, id := range ids {
		filtered[id] = toSet(FilterBookkeeping(files[id]))
	}

	matrix := make(map[string]map[string][]string)
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			shared := intersect(filtered[a], keys(filtered[b]))
			if len(shared) == 0 {
				continue
			}
			if matrix[a] == nil {
				matrix[a] = map[string][]string{}
			}
			if matrix[b] == nil {
				matrix[b] = map[string][]string{}
			}
			matrix[a][b] = shared
			matrix[b][a] = shared
		}
	}
	return matrix
}

func toSet(files []string) map[string]bool {
	s := make(map[string]bool, len(files))
	for _, f := range files {
		s[f] = true
	}
	return s
}

func keys(s map[string]bool) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func intersect(set map[string]bool, files []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range files {
		if set[f] && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
