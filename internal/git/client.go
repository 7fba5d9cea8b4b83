// Package git provides an interface for the git operations lanes relies on.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dongho-jung/lanes/internal/constants"
)

// bufferPool reuses bytes.Buffer instances to reduce allocations in run/runOutput.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// AncestryResult is the tri-state outcome of an ancestry query.
type AncestryResult int

const (
	// Undetermined means git could not answer (bad ref, timeout, corrupt repo).
	Undetermined AncestryResult = iota
	// Ancestor means the first commit is reachable from the second.
	Ancestor
	// NotAncestor means git positively answered no.
	NotAncestor
)

func (r AncestryResult) String() string {
	switch r {
	case Ancestor:
		return "ancestor"
	case NotAncestor:
		return "not-ancestor"
	default:
		return "undetermined"
	}
}

// Client defines the interface for git operations.
type Client interface {
	// Repository
	IsGitRepo(dir string) bool
	GetRepoRoot(dir string) (string, error)

	// Refs and ancestry (read-only)
	BranchExists(dir, branch string) bool
	IsAncestor(dir, ancestor, descendant string) AncestryResult
	MergeBase(dir, a, b string) (string, error)
	CountCommits(dir, base, branch string) (int, error)
	CountMergeCommits(dir, base, branch string) (int, error)
	DiffNameOnly(dir, base, branch string) ([]string, error)
	GetBranchCommits(dir, branch, baseBranch string, maxCount int) ([]CommitInfo, error)

	// Branch
	BranchCreate(dir, branch, startPoint string) error
	GetCurrentBranch(dir string) (string, error)
	GetHeadCommit(dir string) (string, error)
	Checkout(dir, target string) error

	// Changes
	HasChanges(dir string) bool
	HasStagedChanges(dir string) bool
	Commit(dir, message string) error

	// Merge
	Merge(dir, branch string, noFF bool, message string) error
	MergeSquash(dir, branch, message string) error
	MergeAbort(dir string) error
	CherryPickRange(dir, from, to string) error
	CherryPickAbort(dir string) error
	HasConflicts(dir string) (bool, []string, error)
	HasOngoingMerge(dir string) bool
	HasOngoingCherryPick(dir string) bool
}

// CommitInfo represents basic information about a git commit.
type CommitInfo struct {
	Hash    string
	Subject string
}

// gitClient implements the Client interface.
type gitClient struct {
	timeout      time.Duration
	mergeTimeout time.Duration
}

// Compile-time check that gitClient implements Client interface.
var _ Client = (*gitClient)(nil)

// New creates a new git client with the default per-call timeout.
func New() Client {
	return NewWithTimeout(constants.GitCommandTimeout)
}

// NewWithTimeout creates a git client whose read-only calls are bounded by timeout.
// Mutating merge calls get at least constants.GitMergeTimeout.
func NewWithTimeout(timeout time.Duration) Client {
	mergeTimeout := constants.GitMergeTimeout
	if timeout > mergeTimeout {
		mergeTimeout = timeout
	}
	return &gitClient{
		timeout:      timeout,
		mergeTimeout: mergeTimeout,
	}
}

func (c *gitClient) cmd(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never block on an editor or a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_EDITOR=true", "GIT_TERMINAL_PROMPT=0")
	return cmd
}

func (c *gitClient) run(dir string, args ...string) error {
	return c.runWithTimeout(c.timeout, dir, args...)
}

func (c *gitClient) runWithTimeout(timeout time.Duration, dir string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := c.cmd(ctx, dir, args...)

	stderr := bufferPool.Get().(*bytes.Buffer)
	stderr.Reset()
	defer bufferPool.Put(stderr)

	cmd.Stderr = stderr
	cmd.Stdout = stderr

	if err := cmd.Run(); err != nil {
		return &CommandError{Args: args, Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}

func (c *gitClient) runOutput(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := c.cmd(ctx, dir, args...)

	stdout := bufferPool.Get().(*bytes.Buffer)
	stderr := bufferPool.Get().(*bytes.Buffer)
	stdout.Reset()
	stderr.Reset()
	defer bufferPool.Put(stdout)
	defer bufferPool.Put(stderr)

	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{Args: args, Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CommandError is returned when a git subprocess fails.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode returns the subprocess exit code, or -1 when the process did not
// exit normally (killed by timeout, binary missing).
func (e *CommandError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// splitLines splits git output into non-empty trimmed lines.
func splitLines(output string) []string {
	if output == "" {
		return nil
	}
	lines := strings.Split(output, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return result
}

// Repository

func (c *gitClient) IsGitRepo(dir string) bool {
	_, err := c.runOutput(dir, "rev-parse", "--git-dir")
	return err == nil
}

func (c *gitClient) GetRepoRoot(dir string) (string, error) {
	return c.runOutput(dir, "rev-parse", "--show-toplevel")
}

// Refs and ancestry

func (c *gitClient) BranchExists(dir, branch string) bool {
	err := c.run(dir, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
// git merge-base --is-ancestor exits 0 for yes and 1 for no; every other
// outcome is Undetermined.
func (c *gitClient) IsAncestor(dir, ancestor, descendant string) AncestryResult {
	err := c.run(dir, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return Ancestor
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode() == 1 {
		return NotAncestor
	}
	return Undetermined
}

func (c *gitClient) MergeBase(dir, a, b string) (string, error) {
	return c.runOutput(dir, "merge-base", a, b)
}

// CountCommits returns the number of commits reachable from branch but not from base.
func (c *gitClient) CountCommits(dir, base, branch string) (int, error) {
	return c.countRevs(dir, "--count", base+".."+branch)
}

// CountMergeCommits returns the number of merge commits reachable from branch
// but not from base.
func (c *gitClient) CountMergeCommits(dir, base, branch string) (int, error) {
	return c.countRevs(dir, "--count", "--merges", base+".."+branch)
}

func (c *gitClient) countRevs(dir string, args ...string) (int, error) {
	output, err := c.runOutput(dir, append([]string{"rev-list"}, args...)...)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(output)
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", output, err)
	}
	return n, nil
}

// DiffNameOnly lists files changed on branch since it diverged from base
// (three-dot comparison against the merge base).
func (c *gitClient) DiffNameOnly(dir, base, branch string) ([]string, error) {
	output, err := c.runOutput(dir, "diff", "--name-only", base+"..."+branch)
	if err != nil {
		return nil, err
	}
	return splitLines(output), nil
}

// GetBranchCommits returns commits that are in branch but not in baseBranch.
func (c *gitClient) GetBranchCommits(dir, branch, baseBranch string, maxCount int) ([]CommitInfo, error) {
	args := []string{"log", "--format=%H %s", fmt.Sprintf("%s..%s", baseBranch, branch)}
	if maxCount > 0 {
		args = append(args, fmt.Sprintf("-n%d", maxCount))
	}

	output, err := c.runOutput(dir, args...)
	if err != nil {
		return nil, err
	}

	lines := splitLines(output)
	commits := make([]CommitInfo, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) < 2 {
			continue
		}
		commits = append(commits, CommitInfo{
			Hash:    parts[0],
			Subject: parts[1],
		})
	}
	return commits, nil
}

// Branch

func (c *gitClient) BranchCreate(dir, branch, startPoint string) error {
	args := []string{"branch", branch}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	return c.run(dir, args...)
}

func (c *gitClient) GetCurrentBranch(dir string) (string, error) {
	return c.runOutput(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *gitClient) GetHeadCommit(dir string) (string, error) {
	return c.runOutput(dir, "rev-parse", "HEAD")
}

func (c *gitClient) Checkout(dir, target string) error {
	return c.run(dir, "checkout", target)
}

// Changes

func (c *gitClient) HasChanges(dir string) bool {
	output, err := c.runOutput(dir, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false
	}
	return output != ""
}

func (c *gitClient) HasStagedChanges(dir string) bool {
	output, err := c.runOutput(dir, "diff", "--cached", "--name-only")
	if err != nil {
		return false
	}
	return output != ""
}

func (c *gitClient) Commit(dir, message string) error {
	return c.run(dir, "commit", "-m", message)
}

// Merge

func (c *gitClient) Merge(dir, branch string, noFF bool, message string) error {
	args := []string{"merge", "--no-edit"}
	if noFF {
		args = append(args, "--no-ff")
	}
	if message != "" {
		args = append(args, "-m", message)
	}
	args = append(args, branch)
	return c.runWithTimeout(c.mergeTimeout, dir, args...)
}

// MergeSquash stages branch's changes and commits them only when something
// was staged; a squash of already-merged work is a no-op.
func (c *gitClient) MergeSquash(dir, branch, message string) error {
	if err := c.runWithTimeout(c.mergeTimeout, dir, "merge", "--squash", branch); err != nil {
		return err
	}
	if !c.HasStagedChanges(dir) {
		return nil
	}
	return c.Commit(dir, message)
}

func (c *gitClient) MergeAbort(dir string) error {
	return c.run(dir, "merge", "--abort")
}

// CherryPickRange replays the commits in (from, to] onto HEAD, recording the
// source commit in each message.
func (c *gitClient) CherryPickRange(dir, from, to string) error {
	return c.runWithTimeout(c.mergeTimeout, dir, "cherry-pick", "-x", "--keep-redundant-commits", from+".."+to)
}

func (c *gitClient) CherryPickAbort(dir string) error {
	return c.run(dir, "cherry-pick", "--abort")
}

// HasConflicts lists unmerged paths in the working tree.
func (c *gitClient) HasConflicts(dir string) (bool, []string, error) {
	output, err := c.runOutput(dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return false, nil, err
	}
	files := splitLines(output)
	return len(files) > 0, files, nil
}

// HasOngoingMerge checks for MERGE_HEAD in the git directory.
func (c *gitClient) HasOngoingMerge(dir string) bool {
	return c.gitPathExists(dir, "MERGE_HEAD")
}

// HasOngoingCherryPick checks for CHERRY_PICK_HEAD or a leftover sequencer
// directory in the git directory. A range pick that stops before writing
// CHERRY_PICK_HEAD still leaves the sequencer behind.
func (c *gitClient) HasOngoingCherryPick(dir string) bool {
	return c.gitPathExists(dir, "CHERRY_PICK_HEAD") || c.gitPathExists(dir, "sequencer")
}

func (c *gitClient) gitPathExists(dir, name string) bool {
	gitDir, err := c.runOutput(dir, "rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(dir, gitDir)
	}
	_, err = os.Stat(filepath.Join(gitDir, name))
	return err == nil
}

// GenerateMergeCommitMessage builds the commit message used when folding a
// lane into the integration branch.
func GenerateMergeCommitMessage(template, laneID, branch, into string, commits []CommitInfo) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf(template, laneID, branch, into))
	msg.WriteString("\n")

	if subject := constants.FormatLaneForCommit(laneID); subject != "" && subject != laneID {
		msg.WriteString("\nLane: ")
		msg.WriteString(subject)
		msg.WriteString("\n")
	}

	if len(commits) > 0 {
		msg.WriteString("\nChanges:\n")
		for _, commit := range commits {
			subj := commit.Subject
			if len(subj) > 72 {
				subj = subj[:69] + "..."
			}
			msg.WriteString(fmt.Sprintf("- %s\n", subj))
		}
	}

	return msg.String()
}
