// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Repo is a temporary git repository rooted at Root.
type Repo struct {
	Root string
}

// New creates a repository on the "main" branch with one initial commit.
func New(tb testing.TB) *Repo {
	tb.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		tb.Skip("git binary not available")
	}

	r := &Repo{Root: tb.TempDir()}
	r.Git(tb, "init", "--initial-branch=main")
	r.Git(tb, "config", "user.name", "Lanes Test")
	r.Git(tb, "config", "user.email", "test@example.com")
	r.Git(tb, "config", "commit.gpgsign", "false")
	r.WriteFile(tb, "README.md", "# lanes test repository\n")
	r.Git(tb, "add", "README.md")
	r.Git(tb, "commit", "-m", "Initial commit")
	return r
}

// Git runs git in the repository and fails the test on error.
func (r *Repo) Git(tb testing.TB, args ...string) string {
	tb.Helper()
	out, err := r.TryGit(args...)
	if err != nil {
		tb.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(out)
}

// TryGit runs git in the repository and returns combined output and error.
func (r *Repo) TryGit(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Root
	cmd.Env = append(os.Environ(), "GIT_EDITOR=true")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// WriteFile writes content to a path relative to the repository root.
func (r *Repo) WriteFile(tb testing.TB, rel, content string) {
	tb.Helper()
	path := filepath.Join(r.Root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %s: %v", rel, err)
	}
}

// CommitFiles writes files and commits them on the current branch.
func (r *Repo) CommitFiles(tb testing.TB, message string, files map[string]string) {
	tb.Helper()
	for rel, content := range files {
		r.WriteFile(tb, rel, content)
		r.Git(tb, "add", rel)
	}
	r.Git(tb, "commit", "-m", message)
}

// Branch creates branch from start (HEAD when empty) and checks it out.
func (r *Repo) Branch(tb testing.TB, branch, start string) {
	tb.Helper()
	args := []string{"checkout", "-b", branch}
	if start != "" {
		args = append(args, start)
	}
	r.Git(tb, args...)
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(tb testing.TB, branch string) {
	tb.Helper()
	r.Git(tb, "checkout", branch)
}

// Head returns the current commit hash.
func (r *Repo) Head(tb testing.TB) string {
	tb.Helper()
	return r.Git(tb, "rev-parse", "HEAD")
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(tb testing.TB) string {
	tb.Helper()
	return r.Git(tb, "rev-parse", "--abbrev-ref", "HEAD")
}

// LaneBranch creates branch from start, commits each file set as a separate
// commit, and returns to the previously checked-out branch.
func (r *Repo) LaneBranch(tb testing.TB, branch, start string, commits ...map[string]string) {
	tb.Helper()
	previous := r.CurrentBranch(tb)
	r.Branch(tb, branch, start)
	for i, files := range commits {
		r.CommitFiles(tb, branch+" commit "+string(rune('1'+i)), files)
	}
	r.Checkout(tb, previous)
}
