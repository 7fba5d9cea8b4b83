package main

import (
	"runtime/debug"
	"testing"
)

func TestApplyBuildInfoUsesModuleVersion(t *testing.T) {
	originalVersion := Version
	originalCommit := Commit
	t.Cleanup(func() {
		Version = originalVersion
		Commit = originalCommit
	})

	Version = "dev"
	Commit = "unknown"

	applyBuildInfo(&debug.BuildInfo{
		Main:     debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abcdef0123456789"}},
	})

	if Version != "v0.3.1" {
		t.Fatalf("Version = %q, want %q", Version, "v0.3.1")
	}
	if Commit != "abcdef0" {
		t.Fatalf("Commit = %q, want %q", Commit, "abcdef0")
	}
}

func TestApplyBuildInfoSkipsDevelVersion(t *testing.T) {
	originalVersion := Version
	t.Cleanup(func() { Version = originalVersion })

	Version = "dev"
	applyBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})

	if Version != "dev" {
		t.Fatalf("Version = %q, want %q", Version, "dev")
	}
}

func TestApplyBuildInfoDoesNotOverrideExistingValues(t *testing.T) {
	originalVersion := Version
	originalCommit := Commit
	t.Cleanup(func() {
		Version = originalVersion
		Commit = originalCommit
	})

	Version = "v1.0.0"
	Commit = "deadbee"

	applyBuildInfo(&debug.BuildInfo{
		Main:     debug.Module{Version: "v2.0.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "cafebabe1234567"}},
	})

	if Version != "v1.0.0" || Commit != "deadbee" {
		t.Fatalf("got %s (%s), want v1.0.0 (deadbee)", Version, Commit)
	}
}
