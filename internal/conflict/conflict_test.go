package conflict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/lanes/internal/ancestry"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		n    int
		want RiskTier
	}{
		{0, RiskNone},
		{1, RiskLow},
		{2, RiskMedium},
		{3, RiskMedium},
		{4, RiskHigh},
		{12, RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.n), "TierFor(%d)", tt.n)
	}
}

func TestTierFor_Monotonic(t *testing.T) {
	rank := map[RiskTier]int{RiskNone: 0, RiskLow: 1, RiskMedium: 2, RiskHigh: 3}
	for n := 0; n < 20; n++ {
		assert.LessOrEqual(t, rank[TierFor(n)], rank[TierFor(n+1)], "tier must not decrease from %d to %d", n, n+1)
	}
}

func TestClassify_DisjointSetsNeverOverlap(t *testing.T) {
	files := map[string][]string{
		"a": {"src/a.go", "PROGRESS.md"},
		"b": {"src/b.go", "PROGRESS.md", "nested/.lane"},
		"c": {},
	}

	for id := range files {
		got := Classify(id, files, ancestry.Map{})
		assert.Empty(t, got.OverlappingLanes, id)
		assert.Empty(t, got.IncludedLanes, id)
		assert.Empty(t, got.ConflictingLanes, id)
		assert.Equal(t, RiskNone, got.RiskTier, id)
	}
}

func TestClassify_IndependentOverlapConflicts(t *testing.T) {
	files := map[string][]string{
		"A": {"src/app.ts", "README.md"},
		"B": {"src/app.ts"},
	}

	all := ClassifyAll(files, ancestry.Map{})

	for _, pair := range [][2]string{{"A", "B"}, {"B", "A"}} {
		got := all[pair[0]]
		assert.Equal(t, []string{pair[1]}, got.ConflictingLanes)
		assert.Empty(t, got.IncludedLanes)
		assert.Equal(t, RiskLow, got.RiskTier)
		assert.Equal(t, []string{"src/app.ts"}, got.SharedFiles[pair[1]])
	}
}

func TestClassify_AncestryOverlapIsIncludedBothWays(t *testing.T) {
	files := map[string][]string{
		"A": {"src/shared.ts"},
		"B": {"src/shared.ts", "src/b.ts"},
	}
	anc := ancestry.Map{"A": {}, "B": {"A": true}}

	for _, pair := range [][2]string{{"A", "B"}, {"B", "A"}} {
		got := Classify(pair[0], files, anc)
		assert.Equal(t, []string{pair[1]}, got.OverlappingLanes)
		assert.Equal(t, []string{pair[1]}, got.IncludedLanes)
		assert.Empty(t, got.ConflictingLanes)
		assert.Equal(t, RiskNone, got.RiskTier)
	}
}

func TestClassify_TierIgnoresIncludedOverlap(t *testing.T) {
	// A dependency chain: every lane contains all earlier ones and they all
	// touch the same file. Lots of overlap, no conflict.
	files := map[string][]string{}
	anc := ancestry.Map{}
	var ids []string
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("lane-%d", i)
		files[id] = []string{"go.mod"}
		anc[id] = map[string]bool{}
		for _, prev := range ids {
			anc[id][prev] = true
		}
		ids = append(ids, id)
	}

	got := Classify("lane-0", files, anc)
	assert.Len(t, got.OverlappingLanes, 5)
	assert.Len(t, got.IncludedLanes, 5)
	assert.Equal(t, RiskNone, got.RiskTier)
}

func TestClassify_HighRisk(t *testing.T) {
	files := map[string][]string{"x": {"f"}}
	for i := 0; i < 4; i++ {
		files[fmt.Sprintf("o%d", i)] = []string{"f"}
	}

	got := Classify("x", files, nil)
	assert.Equal(t, []string{"o0", "o1", "o2", "o3"}, got.ConflictingLanes)
	assert.Equal(t, RiskHigh, got.RiskTier)
	assert.True(t, got.RiskTier.Elevated())
}

func TestOverlapMatrix(t *testing.T) {
	files := map[string][]string{
		"a": {"x.go", "y.go", "LANE_NOTES.md"},
		"b": {"y.go", "LANE_NOTES.md"},
		"c": {"z.go", "docs/LANE_NOTES.md"},
	}

	m := OverlapMatrix(files)

	require.Contains(t, m, "a")
	assert.Equal(t, []string{"y.go"}, m["a"]["b"])
	assert.Equal(t, []string{"y.go"}, m["b"]["a"])
	assert.NotContains(t, m, "c")
}

func TestFilterBookkeeping(t *testing.T) {
	got := FilterBookkeeping([]string{"src/main.go", ".lane-status.json", "sub/PROGRESS.md", "LANE_LOG.md"})
	assert.Equal(t, []string{"src/main.go"}, got)
}
