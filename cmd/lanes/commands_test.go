package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/lanes/internal/run"
)

func TestParseOverrides(t *testing.T) {
	got, err := parseOverrides([]string{"A=squash", " B =cherry_pick"})
	require.NoError(t, err)
	assert.Equal(t, map[string]run.MergeMethod{"A": run.MethodSquash, "B": run.MethodCherryPick}, got)

	got, err = parseOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"A", "=merge", "A=rebase"} {
		_, err := parseOverrides([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRunHelpPrintsEmbeddedHelp(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, runHelp(rootCmd, nil))
	assert.Contains(t, buf.String(), "lanes propose <slug>")
}

func TestMergeRequiresConfirmBeforeLoading(t *testing.T) {
	mergeToMain, mergeConfirm = true, false
	t.Cleanup(func() { mergeToMain, mergeConfirm = false, false })

	err := runMerge(mergeCmd, []string{"demo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--confirm")
}
