package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/lanes/internal/constants"
)

// isolate points HOME at an empty directory and clears LANES_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"LANES_RUNS_DIR", "LANES_LOG_PATH", "LANES_DEBUG",
		"LANES_LISTEN_ADDR", "LANES_GIT_TIMEOUT", "LANES_INSPECT_CONCURRENCY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return t.TempDir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	project := isolate(t)

	cfg, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(project, ".lanes", "runs"), cfg.RunsDir)
	assert.Equal(t, filepath.Join(project, ".lanes", "log"), cfg.LogPath)
	assert.Equal(t, constants.DefaultListenAddress, cfg.ListenAddr)
	assert.Equal(t, constants.DefaultInspectConcurrency, cfg.InspectConcurrency)
	assert.Equal(t, constants.GitCommandTimeout, cfg.GitTimeoutDuration())
	assert.False(t, cfg.Debug)
}

func TestLoad_ProjectYAMLOverridesUserYAML(t *testing.T) {
	project := isolate(t)
	home := os.Getenv("HOME")

	writeFile(t, filepath.Join(home, ".config", "lanes", "config.yaml"),
		"listen_addr: 0.0.0.0:9000\ninspect_concurrency: 2\n")
	writeFile(t, filepath.Join(project, ".lanes", "config.yaml"),
		"inspect_concurrency: 4\ngit_timeout: 5s\n")

	cfg, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.InspectConcurrency)
	assert.Equal(t, 5*time.Second, cfg.GitTimeoutDuration())
}

func TestLoad_EnvLocalAndEnvironment(t *testing.T) {
	project := isolate(t)
	writeFile(t, filepath.Join(project, ".env.local"),
		"LANES_RUNS_DIR=/tmp/from-dotenv\nLANES_DEBUG=1\n")
	t.Setenv("LANES_LISTEN_ADDR", "127.0.0.1:1")

	cfg, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-dotenv", cfg.RunsDir)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "127.0.0.1:1", cfg.ListenAddr)
	assert.Equal(t, filepath.Join("/tmp/from-dotenv", "ledger.db"), cfg.LedgerPath())

	// godotenv exported these into the process environment.
	t.Cleanup(func() {
		os.Unsetenv("LANES_RUNS_DIR")
		os.Unsetenv("LANES_DEBUG")
	})
}

func TestLoad_InvalidYAML(t *testing.T) {
	project := isolate(t)
	writeFile(t, filepath.Join(project, ".lanes", "config.yaml"), "inspect_concurrency: [oops\n")

	_, err := Load(project)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{InspectConcurrency: 0, GitTimeout: "soon", ListenAddr: ""}

	warnings := cfg.Normalize()

	assert.Len(t, warnings, 3)
	assert.Equal(t, constants.DefaultInspectConcurrency, cfg.InspectConcurrency)
	assert.Equal(t, constants.GitCommandTimeout.String(), cfg.GitTimeout)
	assert.Equal(t, constants.DefaultListenAddress, cfg.ListenAddr)

	assert.Empty(t, cfg.Normalize(), "normalized config should produce no further warnings")
}
