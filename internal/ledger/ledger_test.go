package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestMarkAndIsMerged(t *testing.T) {
	l := openTemp(t)

	merged, err := l.IsMerged("run-1", "api")
	require.NoError(t, err)
	assert.False(t, merged)

	require.NoError(t, l.Mark(Marker{RunID: "run-1", LaneID: "api", Method: "squash", Commit: "abc"}))

	merged, err = l.IsMerged("run-1", "api")
	require.NoError(t, err)
	assert.True(t, merged)

	merged, err = l.IsMerged("run-2", "api")
	require.NoError(t, err)
	assert.False(t, merged, "markers are scoped per run")
}

func TestMark_ReplacesExisting(t *testing.T) {
	l := openTemp(t)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Mark(Marker{RunID: "r", LaneID: "api", Method: "squash", Commit: "one", MergedAt: t0}))
	require.NoError(t, l.Mark(Marker{RunID: "r", LaneID: "api", Method: "merge", Commit: "two", MergedAt: t0.Add(time.Hour)}))
	require.NoError(t, l.Mark(Marker{RunID: "r", LaneID: "ui", Method: "squash", Commit: "three", MergedAt: t0.Add(30 * time.Minute)}))

	markers, err := l.List("r")
	require.NoError(t, err)
	require.Len(t, markers, 2)
	assert.Equal(t, "ui", markers[0].LaneID)
	assert.Equal(t, "api", markers[1].LaneID)
	assert.Equal(t, "merge", markers[1].Method)
	assert.Equal(t, "two", markers[1].Commit)
	assert.True(t, t0.Add(time.Hour).Equal(markers[1].MergedAt))
}

func TestReset(t *testing.T) {
	l := openTemp(t)
	require.NoError(t, l.Mark(Marker{RunID: "r", LaneID: "a", Method: "squash"}))
	require.NoError(t, l.Mark(Marker{RunID: "r", LaneID: "b", Method: "squash"}))
	require.NoError(t, l.Mark(Marker{RunID: "other", LaneID: "a", Method: "squash"}))

	n, err := l.Reset("r")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	markers, err := l.List("r")
	require.NoError(t, err)
	assert.Empty(t, markers)

	merged, err := l.IsMerged("other", "a")
	require.NoError(t, err)
	assert.True(t, merged)
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Mark(Marker{RunID: "r", LaneID: "a", Method: "squash"}))
	require.NoError(t, l.Migrate())
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, path, l.Path())

	merged, err := l.IsMerged("r", "a")
	require.NoError(t, err)
	assert.True(t, merged, "markers survive reopen")
}

func TestPending_PromoteAndClear(t *testing.T) {
	l := openTemp(t)

	pending, err := l.Pending("r")
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, l.MarkPending(Pending{RunID: "r", LaneID: "api", Method: "squash", Base: "aaa"}))
	require.NoError(t, l.MarkPending(Pending{RunID: "r", LaneID: "api", Method: "cherry_pick", Base: "bbb"}))
	require.NoError(t, l.MarkPending(Pending{RunID: "r", LaneID: "ui", Method: "merge", Base: "ccc"}))

	pending, err = l.Pending("r")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	byLane := map[string]Pending{}
	for _, p := range pending {
		byLane[p.LaneID] = p
	}
	assert.Equal(t, "bbb", byLane["api"].Base, "marking again replaces the record")
	assert.Equal(t, "cherry_pick", byLane["api"].Method)
	assert.False(t, byLane["api"].StartedAt.IsZero())

	require.NoError(t, l.Promote(Marker{RunID: "r", LaneID: "api", Method: "cherry_pick", Commit: "ddd"}))
	merged, err := l.IsMerged("r", "api")
	require.NoError(t, err)
	assert.True(t, merged)

	require.NoError(t, l.ClearPending("r", "ui"))
	merged, err = l.IsMerged("r", "ui")
	require.NoError(t, err)
	assert.False(t, merged, "clearing does not mark")

	pending, err = l.Pending("r")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReset_ClearsPending(t *testing.T) {
	l := openTemp(t)
	require.NoError(t, l.Mark(Marker{RunID: "r", LaneID: "a", Method: "squash"}))
	require.NoError(t, l.MarkPending(Pending{RunID: "r", LaneID: "b", Method: "squash", Base: "abc"}))

	n, err := l.Reset("r")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	pending, err := l.Pending("r")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
