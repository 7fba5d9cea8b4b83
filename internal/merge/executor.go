// Package merge executes a merge proposal against the repository, one lane at
// a time, halting on the first conflict or failure.
package merge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dongho-jung/lanes/internal/constants"
	"github.com/dongho-jung/lanes/internal/git"
	"github.com/dongho-jung/lanes/internal/inspect"
	"github.com/dongho-jung/lanes/internal/ledger"
	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/proposal"
	"github.com/dongho-jung/lanes/internal/run"
)

var (
	// ErrConfirmationRequired is returned when folding into the trunk was
	// requested without confirmation. Nothing has been touched.
	ErrConfirmationRequired = errors.New("merge to main requires confirmation")
	// ErrNoProposal is returned when there is no proposal to execute.
	ErrNoProposal = errors.New("no merge proposal")
	// ErrUnknownLane is returned when a requested lane is not in the proposal.
	ErrUnknownLane = errors.New("lane not in proposal")
	// ErrUnresolvedConflict is returned when the repository still holds an
	// unfinished merge or cherry-pick from an earlier attempt.
	ErrUnresolvedConflict = errors.New("unresolved merge in progress")
	// ErrDirtyWorktree is returned when tracked files have uncommitted
	// changes, such as a resolved conflict that was staged but not committed.
	ErrDirtyWorktree = errors.New("worktree has uncommitted changes")
	// ErrIncompleteIntegration is returned when folding into the trunk was
	// requested while some proposal lanes are not yet merged.
	ErrIncompleteIntegration = errors.New("integration branch is missing lanes")
	// ErrCherryPickMerges is returned when a cherry-pick lane contains merge
	// commits, which cannot be replayed without choosing a mainline.
	ErrCherryPickMerges = errors.New("cherry-pick range contains merge commits")
)

// State is the executor's position in a merge sequence.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateMerging   State = "merging"
	StateFolding   State = "folding"
	StateConflict  State = "conflict"
	StateFailed    State = "failed"
	StateDone      State = "done"
)

// Outcome is what happened to one lane.
type Outcome string

const (
	OutcomeMerged   Outcome = "merged"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

// Request selects what to execute.
type Request struct {
	// LaneIDs restricts execution to these lanes, still in proposal order.
	LaneIDs            []string `json:"laneIds,omitempty"`
	MergeToMain        bool     `json:"mergeToMain,omitempty"`
	ConfirmMergeToMain bool     `json:"confirmMergeToMain,omitempty"`
}

// ConflictInfo describes a halted merge.
type ConflictInfo struct {
	LaneID   string   `json:"laneId"`
	Branch   string   `json:"branch"`
	Files    []string `json:"files"`
	Worktree string   `json:"worktree"`
}

// LaneResult is the outcome for one lane.
type LaneResult struct {
	LaneID  string          `json:"laneId"`
	Branch  string          `json:"branch"`
	Method  run.MergeMethod `json:"method"`
	Outcome Outcome         `json:"outcome"`
	Commit  string          `json:"commit,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Result is the outcome of one Execute call.
type Result struct {
	Lanes        []LaneResult  `json:"lanes"`
	Conflict     *ConflictInfo `json:"conflict,omitempty"`
	MergedToMain bool          `json:"mergedToMain"`
	State        State         `json:"state"`
}

// Ledger is the subset of the marker store the executor needs.
type Ledger interface {
	IsMerged(runID, laneID string) (bool, error)
	Mark(m ledger.Marker) error
	MarkPending(p ledger.Pending) error
	Pending(runID string) ([]ledger.Pending, error)
	ClearPending(runID, laneID string) error
	Promote(m ledger.Marker) error
}

// Recorder receives merge attempt outcomes.
type Recorder interface {
	MergeAttempt(method, outcome string)
}

// Executor runs proposals against one repository. It performs no locking;
// callers must not run two executors against the same repository at once.
type Executor struct {
	git      git.Client
	repo     string
	ledger   Ledger
	recorder Recorder
	state    State

	// OnLaneStart is called before each lane is applied.
	OnLaneStart func(e proposal.Entry)
}

// NewExecutor creates an executor for repo. recorder may be nil.
func NewExecutor(client git.Client, repo string, l Ledger, recorder Recorder) *Executor {
	return &Executor{git: client, repo: repo, ledger: l, recorder: recorder, state: StateIdle}
}

// State returns the current state.
func (x *Executor) State() State {
	return x.state
}

func (x *Executor) transition(to State) {
	logging.Debug("merge: %s -> %s", x.state, to)
	x.state = to
}

// Execute walks the proposal in order. A conflict is reported in
// Result.Conflict with a nil error; a fatal failure returns the partial result
// together with the error. Previously merged lanes are never rolled back.
func (x *Executor) Execute(p *proposal.Proposal, req Request) (*Result, error) {
	res := &Result{Lanes: []LaneResult{}, State: x.state}

	if req.MergeToMain && !req.ConfirmMergeToMain {
		return res, ErrConfirmationRequired
	}
	if p == nil {
		return res, ErrNoProposal
	}
	entries, err := selectEntries(p, req.LaneIDs)
	if err != nil {
		return res, err
	}

	timer := logging.StartTimer("merge run " + p.RunSlug)
	defer func() { timer.StopWithResult(res.State != StateFailed, string(res.State)) }()

	x.transition(StatePreparing)
	if err := x.prepare(p.IntegrationBranch); err != nil {
		return x.fail(res, err)
	}
	if err := x.settlePending(p); err != nil {
		return x.fail(res, err)
	}

	for _, e := range entries {
		if e.Method == "" {
			e.Method = p.DefaultMethod
		}
		if e.Method == "" {
			e.Method = run.MethodSquash
		}

		x.transition(StateMerging)
		lr, conflict, err := x.mergeLane(p, e)
		res.Lanes = append(res.Lanes, lr)
		if conflict != nil {
			res.Conflict = conflict
			x.transition(StateConflict)
			res.State = x.state
			return res, nil
		}
		if err != nil {
			return x.fail(res, err)
		}
	}

	if req.MergeToMain {
		if err := x.requireAllMerged(p); err != nil {
			return x.fail(res, err)
		}
		x.transition(StateFolding)
		conflict, err := x.foldIntoTrunk(p.IntegrationBranch)
		if conflict != nil {
			res.Conflict = conflict
			x.transition(StateConflict)
			res.State = x.state
			return res, nil
		}
		if err != nil {
			return x.fail(res, err)
		}
		res.MergedToMain = true
	}

	x.transition(StateDone)
	res.State = x.state
	return res, nil
}

func (x *Executor) fail(res *Result, err error) (*Result, error) {
	x.transition(StateFailed)
	res.State = x.state
	logging.Error("merge failed: %v", err)
	return res, err
}

func selectEntries(p *proposal.Proposal, laneIDs []string) ([]proposal.Entry, error) {
	if len(laneIDs) == 0 {
		return p.Lanes, nil
	}
	want := make(map[string]bool, len(laneIDs))
	for _, id := range laneIDs {
		if _, ok := p.Entry(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLane, id)
		}
		want[id] = true
	}
	var out []proposal.Entry
	for _, e := range p.Lanes {
		if want[e.LaneID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// prepare makes sure the integration branch exists and is checked out with no
// leftover merge state.
func (x *Executor) prepare(integration string) error {
	if x.git.HasOngoingMerge(x.repo) || x.git.HasOngoingCherryPick(x.repo) {
		return ErrUnresolvedConflict
	}
	if has, files, err := x.git.HasConflicts(x.repo); err != nil {
		return fmt.Errorf("check conflicts: %w", err)
	} else if has {
		return fmt.Errorf("%w: %v", ErrUnresolvedConflict, files)
	}
	if x.git.HasChanges(x.repo) {
		return ErrDirtyWorktree
	}

	if !x.git.BranchExists(x.repo, integration) {
		trunk, err := inspect.New(x.git, x.repo, 1).ResolveTrunk()
		if err != nil {
			return err
		}
		logging.Info("creating integration branch %s from %s", integration, trunk)
		if err := x.git.BranchCreate(x.repo, integration, trunk); err != nil {
			return fmt.Errorf("create integration branch: %w", err)
		}
	}

	if current, _ := x.git.GetCurrentBranch(x.repo); current != integration {
		if err := x.git.Checkout(x.repo, integration); err != nil {
			return fmt.Errorf("checkout %s: %w", integration, err)
		}
	}
	return nil
}

// settlePending decides the fate of lanes a previous run halted on. When the
// integration HEAD moved past the commit recorded before the attempt, the
// conflict was resolved and committed by hand and the lane is marked merged.
// Otherwise the attempt was abandoned and the lane is retried.
func (x *Executor) settlePending(p *proposal.Proposal) error {
	pending, err := x.ledger.Pending(p.RunID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	head, err := x.git.GetHeadCommit(x.repo)
	if err != nil {
		return fmt.Errorf("read integration head: %w", err)
	}
	for _, pd := range pending {
		if head != pd.Base && x.git.IsAncestor(x.repo, pd.Base, head) == git.Ancestor {
			logging.Info("lane %s was resolved at %s, marking merged", pd.LaneID, head)
			if err := x.ledger.Promote(ledger.Marker{RunID: p.RunID, LaneID: pd.LaneID, Method: pd.Method, Commit: head}); err != nil {
				return err
			}
			continue
		}
		logging.Info("lane %s was not resolved, it will be retried", pd.LaneID)
		if err := x.ledger.ClearPending(p.RunID, pd.LaneID); err != nil {
			return err
		}
	}
	return nil
}

// requireAllMerged fails unless every lane of the proposal has a marker.
func (x *Executor) requireAllMerged(p *proposal.Proposal) error {
	var missing []string
	for _, e := range p.Lanes {
		merged, err := x.ledger.IsMerged(p.RunID, e.LaneID)
		if err != nil {
			return err
		}
		if !merged {
			missing = append(missing, e.LaneID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteIntegration, strings.Join(missing, ", "))
	}
	return nil
}

func (x *Executor) mergeLane(p *proposal.Proposal, e proposal.Entry) (LaneResult, *ConflictInfo, error) {
	lr := LaneResult{LaneID: e.LaneID, Branch: e.Branch, Method: e.Method}

	merged, err := x.ledger.IsMerged(p.RunID, e.LaneID)
	if err != nil {
		lr.Outcome = OutcomeFailed
		lr.Error = err.Error()
		return lr, nil, err
	}
	if merged {
		logging.Info("lane %s already merged, skipping", e.LaneID)
		lr.Outcome = OutcomeSkipped
		x.record(e.Method, OutcomeSkipped)
		return lr, nil, nil
	}

	if x.OnLaneStart != nil {
		x.OnLaneStart(e)
	}
	logging.Info("merging lane %s (%s) into %s with %s", e.LaneID, e.Branch, p.IntegrationBranch, e.Method)

	before, err := x.git.GetHeadCommit(x.repo)
	if err != nil {
		lr.Outcome = OutcomeFailed
		lr.Error = err.Error()
		return lr, nil, fmt.Errorf("read head before lane %s: %w", e.LaneID, err)
	}

	if applyErr := x.apply(p.IntegrationBranch, e); applyErr != nil {
		has, files, err := x.git.HasConflicts(x.repo)
		if err == nil && has {
			logging.Warn("lane %s conflicts in %d files, leaving merge in progress", e.LaneID, len(files))
			pending := ledger.Pending{RunID: p.RunID, LaneID: e.LaneID, Method: string(e.Method), Base: before}
			if err := x.ledger.MarkPending(pending); err != nil {
				logging.Warn("failed to record pending lane %s: %v", e.LaneID, err)
			}
			lr.Outcome = OutcomeConflict
			lr.Error = applyErr.Error()
			x.record(e.Method, OutcomeConflict)
			worktree := e.Worktree
			if worktree == "" {
				worktree = x.repo
			}
			return lr, &ConflictInfo{LaneID: e.LaneID, Branch: e.Branch, Files: files, Worktree: worktree}, nil
		}
		if x.git.HasOngoingCherryPick(x.repo) {
			if err := x.git.CherryPickAbort(x.repo); err != nil {
				logging.Warn("failed to abort cherry-pick of lane %s: %v", e.LaneID, err)
			}
		}
		lr.Outcome = OutcomeFailed
		lr.Error = applyErr.Error()
		x.record(e.Method, OutcomeFailed)
		return lr, nil, fmt.Errorf("merge lane %s: %w", e.LaneID, applyErr)
	}

	head, err := x.git.GetHeadCommit(x.repo)
	if err != nil {
		lr.Outcome = OutcomeFailed
		lr.Error = err.Error()
		return lr, nil, fmt.Errorf("read head after lane %s: %w", e.LaneID, err)
	}
	if err := x.ledger.Mark(ledger.Marker{RunID: p.RunID, LaneID: e.LaneID, Method: string(e.Method), Commit: head}); err != nil {
		lr.Outcome = OutcomeFailed
		lr.Error = err.Error()
		return lr, nil, err
	}

	lr.Outcome = OutcomeMerged
	lr.Commit = head
	x.record(e.Method, OutcomeMerged)
	return lr, nil, nil
}

func (x *Executor) apply(integration string, e proposal.Entry) error {
	commits, _ := x.git.GetBranchCommits(x.repo, e.Branch, integration, 20)

	switch e.Method {
	case run.MethodSquash:
		msg := git.GenerateMergeCommitMessage(constants.CommitMessageSquash, e.LaneID, e.Branch, integration, commits)
		return x.git.MergeSquash(x.repo, e.Branch, msg)
	case run.MethodMerge:
		msg := git.GenerateMergeCommitMessage(constants.CommitMessageMerge, e.LaneID, e.Branch, integration, commits)
		return x.git.Merge(x.repo, e.Branch, true, msg)
	case run.MethodCherryPick:
		base, err := x.git.MergeBase(x.repo, integration, e.Branch)
		if err != nil {
			return err
		}
		n, err := x.git.CountCommits(x.repo, base, e.Branch)
		if err != nil {
			return err
		}
		if n == 0 {
			logging.Debug("lane %s has nothing to cherry-pick", e.LaneID)
			return nil
		}
		merges, err := x.git.CountMergeCommits(x.repo, base, e.Branch)
		if err != nil {
			return err
		}
		if merges > 0 {
			return fmt.Errorf("%w: %s has %d, use the squash or merge method", ErrCherryPickMerges, e.Branch, merges)
		}
		return x.git.CherryPickRange(x.repo, base, e.Branch)
	default:
		return fmt.Errorf("unknown merge method %q", e.Method)
	}
}

// foldIntoTrunk merges the integration branch into the trunk. A conflict is
// aborted so the trunk is left untouched.
func (x *Executor) foldIntoTrunk(integration string) (*ConflictInfo, error) {
	trunk, err := inspect.New(x.git, x.repo, 1).ResolveTrunk()
	if err != nil {
		return nil, err
	}
	if trunk == integration {
		return nil, fmt.Errorf("integration branch %s is the trunk", integration)
	}

	if err := x.git.Checkout(x.repo, trunk); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", trunk, err)
	}
	defer func() {
		if err := x.git.Checkout(x.repo, integration); err != nil {
			logging.Warn("failed to return to %s: %v", integration, err)
		}
	}()

	msg := fmt.Sprintf(constants.CommitMessageMainFold, integration, trunk)
	mergeErr := x.git.Merge(x.repo, integration, true, msg)
	if mergeErr == nil {
		logging.Info("folded %s into %s", integration, trunk)
		x.record("main", OutcomeMerged)
		return nil, nil
	}

	has, files, _ := x.git.HasConflicts(x.repo)
	if x.git.HasOngoingMerge(x.repo) {
		if err := x.git.MergeAbort(x.repo); err != nil {
			logging.Error("failed to abort merge into %s: %v", trunk, err)
		}
	}
	if has {
		x.record("main", OutcomeConflict)
		return &ConflictInfo{
			LaneID:   constants.MainMergeLaneID,
			Branch:   integration,
			Files:    files,
			Worktree: x.repo,
		}, nil
	}
	x.record("main", OutcomeFailed)
	return nil, fmt.Errorf("merge %s into %s: %w", integration, trunk, mergeErr)
}

func (x *Executor) record(method run.MergeMethod, outcome Outcome) {
	if x.recorder != nil {
		x.recorder.MergeAttempt(string(method), string(outcome))
	}
}
