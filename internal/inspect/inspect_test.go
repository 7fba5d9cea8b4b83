package inspect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/lanes/internal/git"
	"github.com/dongho-jung/lanes/internal/gittest"
	"github.com/dongho-jung/lanes/internal/run"
)

func TestResolveBase(t *testing.T) {
	repo := gittest.New(t)
	insp := New(git.New(), repo.Root, 2)

	base, err := insp.ResolveBase("lanes/integration")
	require.NoError(t, err)
	assert.Equal(t, "main", base, "missing integration branch falls back to main")

	repo.Git(t, "branch", "lanes/integration")
	base, err = insp.ResolveBase("lanes/integration")
	require.NoError(t, err)
	assert.Equal(t, "lanes/integration", base)
}

func TestResolveBase_LegacyTrunk(t *testing.T) {
	repo := gittest.New(t)
	repo.Git(t, "branch", "-m", "main", "master")
	insp := New(git.New(), repo.Root, 2)

	base, err := insp.ResolveBase("lanes/integration")
	require.NoError(t, err)
	assert.Equal(t, "master", base)
}

func TestResolveBase_NoBase(t *testing.T) {
	repo := gittest.New(t)
	repo.Git(t, "branch", "-m", "main", "trunk")
	insp := New(git.New(), repo.Root, 2)

	_, err := insp.ResolveBase("lanes/integration")
	assert.True(t, errors.Is(err, ErrNoBaseBranch))

	states := insp.InspectLanes("lanes/integration", []run.Lane{{ID: "a", Branch: "trunk"}})
	require.Len(t, states, 1)
	assert.True(t, errors.Is(states[0].Err, ErrNoBaseBranch))
}

func TestInspectLanes_NoBaseDegradesEveryLane(t *testing.T) {
	repo := gittest.New(t)
	repo.LaneBranch(t, "lane-a", "main", map[string]string{"a.txt": "a\n"})
	repo.LaneBranch(t, "lane-b", "main", map[string]string{"b.txt": "b\n"})
	repo.Git(t, "branch", "-m", "main", "trunk")
	insp := New(git.New(), repo.Root, 2)

	lanes := []run.Lane{
		{ID: "a", Branch: "lane-a"},
		{ID: "b", Branch: "lane-b"},
		{ID: "ghost", Branch: "lane-ghost"},
	}
	states := insp.InspectLanes("lanes/integration", lanes)
	require.Len(t, states, len(lanes))

	for i, st := range states {
		assert.True(t, errors.Is(st.Err, ErrNoBaseBranch), st.LaneID)
		assert.True(t, st.Degraded())
		assert.Equal(t, lanes[i].ID, st.LaneID)
		assert.Equal(t, lanes[i].Branch, st.Branch)
		assert.Empty(t, st.Base)
		assert.Zero(t, st.CommitsAhead)
		assert.NotNil(t, st.ChangedFiles)
		assert.Empty(t, st.ChangedFiles)
	}
}

func TestCommitsAheadAndChangedFiles(t *testing.T) {
	repo := gittest.New(t)
	repo.LaneBranch(t, "lane", "main",
		map[string]string{"src/b.go": "b\n", "src/a.go": "a\n"},
		map[string]string{"src/a.go": "a2\n"},
	)
	repo.CommitFiles(t, "trunk moves on", map[string]string{"docs/trunk.md": "t\n"})
	insp := New(git.New(), repo.Root, 2)

	n, err := insp.CommitsAhead("lane", "lanes/integration")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	files, err := insp.ChangedFiles("lane", "lanes/integration")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go", "src/b.go"}, files)
}

func TestChangedFiles_BranchMissing(t *testing.T) {
	repo := gittest.New(t)
	insp := New(git.New(), repo.Root, 2)

	files, err := insp.ChangedFiles("ghost", "main")
	assert.True(t, errors.Is(err, ErrBranchMissing))
	assert.Empty(t, files)

	n, err := insp.CommitsAhead("ghost", "main")
	assert.True(t, errors.Is(err, ErrBranchMissing))
	assert.Zero(t, n)
}

func TestInspectLanes_DegradedLaneDoesNotAbort(t *testing.T) {
	repo := gittest.New(t)
	repo.LaneBranch(t, "lane-a", "main", map[string]string{"a.txt": "a\n"})
	repo.LaneBranch(t, "lane-c", "main", map[string]string{"c1.txt": "1\n"}, map[string]string{"c2.txt": "2\n"})
	insp := New(git.New(), repo.Root, 2)

	states := insp.InspectLanes("main", []run.Lane{
		{ID: "a", Branch: "lane-a"},
		{ID: "b", Branch: "lane-b"},
		{ID: "c", Branch: "lane-c"},
	})
	require.Len(t, states, 3)

	assert.Equal(t, "a", states[0].LaneID)
	assert.NoError(t, states[0].Err)
	assert.Equal(t, 1, states[0].CommitsAhead)
	assert.Equal(t, []string{"a.txt"}, states[0].ChangedFiles)

	assert.True(t, states[1].Degraded())
	assert.True(t, errors.Is(states[1].Err, ErrBranchMissing))
	assert.Empty(t, states[1].ChangedFiles)

	assert.NoError(t, states[2].Err)
	assert.Equal(t, 2, states[2].CommitsAhead)
	assert.Equal(t, "main", states[2].Base)
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedUnique([]string{"c", "a", "b", "a"}))
	assert.Equal(t, []string{}, sortedUnique(nil))
}
