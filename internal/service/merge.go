// Package service wires run records, git inspection, proposals, the ledger,
// and the executor into the operations exposed by the CLI and HTTP server.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/dongho-jung/lanes/internal/ancestry"
	"github.com/dongho-jung/lanes/internal/conflict"
	"github.com/dongho-jung/lanes/internal/embed"
	"github.com/dongho-jung/lanes/internal/git"
	"github.com/dongho-jung/lanes/internal/inspect"
	"github.com/dongho-jung/lanes/internal/ledger"
	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/merge"
	"github.com/dongho-jung/lanes/internal/metrics"
	"github.com/dongho-jung/lanes/internal/proposal"
	"github.com/dongho-jung/lanes/internal/run"
)

// ErrInvalidRequest marks a malformed request.
var ErrInvalidRequest = errors.New("invalid request")

// Ledger is the marker store the service reads and the executor writes.
type Ledger interface {
	merge.Ledger
	List(runID string) ([]ledger.Marker, error)
	Reset(runID string) (int64, error)
}

// Options configure a MergeService.
type Options struct {
	Git         git.Client
	Ledger      Ledger
	Metrics     *metrics.Metrics
	Concurrency int
	// PromptDir may hold overrides of the embedded prompt documents.
	PromptDir string
}

// MergeService implements merge-info, merge-proposal, and merge.
type MergeService struct {
	runs        *run.Store
	proposals   *proposal.Store
	git         git.Client
	ledger      Ledger
	metrics     *metrics.Metrics
	concurrency int
	promptDir   string
}

// New creates a service over the runs directory.
func New(runsDir string, opts Options) *MergeService {
	client := opts.Git
	if client == nil {
		client = git.New()
	}
	return &MergeService{
		runs:        run.NewStore(runsDir),
		proposals:   proposal.NewStore(runsDir),
		git:         client,
		ledger:      opts.Ledger,
		metrics:     opts.Metrics,
		concurrency: opts.Concurrency,
		promptDir:   opts.PromptDir,
	}
}

// LaneInfo is the merge-relevant view of one lane.
type LaneInfo struct {
	ID               string            `json:"id"`
	Branch           string            `json:"branch"`
	Worktree         string            `json:"worktree,omitempty"`
	Role             string            `json:"role,omitempty"`
	Status           run.LaneStatus    `json:"status"`
	DependsOn        []string          `json:"dependsOn"`
	CommitsAhead     int               `json:"commitsAhead"`
	ChangedFiles     []string          `json:"changedFiles"`
	Error            string            `json:"error,omitempty"`
	OverlappingLanes []string          `json:"overlappingLanes"`
	IncludedLanes    []string          `json:"includedLanes"`
	ConflictingLanes []string          `json:"conflictingLanes"`
	RiskTier         conflict.RiskTier `json:"riskTier"`
	Merged           bool              `json:"merged"`
}

// Info is the read-only merge picture of a run.
type Info struct {
	RunID             string                         `json:"runId"`
	Slug              string                         `json:"slug"`
	IntegrationBranch string                         `json:"integrationBranch"`
	BaseBranch        string                         `json:"baseBranch,omitempty"`
	BaseError         string                         `json:"baseError,omitempty"`
	Lanes             []LaneInfo                     `json:"lanes"`
	OverlapMatrix     map[string]map[string][]string `json:"overlapMatrix"`
	MergeState        *run.ObservedMergeState        `json:"mergeState,omitempty"`
	Push              *run.PushPreferences           `json:"push,omitempty"`
	MergedLanes       []ledger.Marker                `json:"mergedLanes"`
	HasProposal       bool                           `json:"hasProposal"`
}

// snapshot is one consistent read of a run and its repository.
type snapshot struct {
	run         *run.Run
	status      *run.Status
	states      []inspect.LaneState
	ancestry    ancestry.Map
	files       map[string][]string
	assessments map[string]conflict.Assessment
	base        string
	baseErr     error
}

func (s *MergeService) analyze(slug string) (*snapshot, error) {
	r, err := s.runs.LoadRun(slug)
	if err != nil {
		return nil, err
	}
	st, err := s.runs.LoadStatus(slug)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	insp := inspect.New(s.git, r.RepoPath, s.concurrency)
	base, baseErr := insp.ResolveBase(r.IntegrationBranch)
	states := insp.InspectLanes(r.IntegrationBranch, r.Lanes)

	lanes := make([]ancestry.Lane, len(r.Lanes))
	for i, l := range r.Lanes {
		lanes[i] = ancestry.Lane{ID: l.ID, Branch: l.Branch}
	}
	anc := ancestry.Build(s.git, r.RepoPath, lanes, s.concurrency)

	files := make(map[string][]string, len(states))
	for _, ls := range states {
		files[ls.LaneID] = ls.ChangedFiles
	}
	s.metrics.ObserveInspection(time.Since(start))

	return &snapshot{
		run:         r,
		status:      st,
		states:      states,
		ancestry:    anc,
		files:       files,
		assessments: conflict.ClassifyAll(files, anc),
		base:        base,
		baseErr:     baseErr,
	}, nil
}

// MergeInfo reports divergence, overlap, and risk for every lane. It never
// mutates the repository.
func (s *MergeService) MergeInfo(slug string) (*Info, error) {
	snap, err := s.analyze(slug)
	if err != nil {
		return nil, err
	}
	r := snap.run

	info := &Info{
		RunID:             r.ID,
		Slug:              r.Slug,
		IntegrationBranch: r.IntegrationBranch,
		BaseBranch:        snap.base,
		Lanes:             make([]LaneInfo, 0, len(r.Lanes)),
		OverlapMatrix:     conflict.OverlapMatrix(snap.files),
		MergeState:        snap.status.MergeState,
		Push:              snap.status.Push,
		MergedLanes:       []ledger.Marker{},
	}
	if snap.baseErr != nil {
		info.BaseError = snap.baseErr.Error()
	}

	merged := map[string]bool{}
	if s.ledger != nil {
		markers, err := s.ledger.List(r.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range markers {
			merged[m.LaneID] = true
			info.MergedLanes = append(info.MergedLanes, m)
		}
	}

	for i, l := range r.Lanes {
		ls := snap.states[i]
		a := snap.assessments[l.ID]
		li := LaneInfo{
			ID:               l.ID,
			Branch:           l.Branch,
			Worktree:         l.Worktree,
			Role:             l.Role,
			Status:           snap.status.Of(l.ID),
			DependsOn:        nonNil(l.DependsOn),
			CommitsAhead:     ls.CommitsAhead,
			ChangedFiles:     ls.ChangedFiles,
			OverlappingLanes: a.OverlappingLanes,
			IncludedLanes:    a.IncludedLanes,
			ConflictingLanes: a.ConflictingLanes,
			RiskTier:         a.RiskTier,
			Merged:           merged[l.ID],
		}
		if ls.Err != nil {
			li.Error = ls.Err.Error()
		}
		info.Lanes = append(info.Lanes, li)
	}

	if _, err := s.proposals.Load(slug); err == nil {
		info.HasProposal = true
	}
	return info, nil
}

// CreateProposal computes, saves, and returns a fresh proposal, replacing any
// previous one.
func (s *MergeService) CreateProposal(slug string, opts proposal.Options) (*proposal.Proposal, error) {
	snap, err := s.analyze(slug)
	if err != nil {
		return nil, err
	}
	for id, m := range opts.Overrides {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: override for lane %s has unknown method %q", ErrInvalidRequest, id, m)
		}
	}
	if opts.Checklist == "" {
		checklist, err := embed.LoadPrompt(s.promptDir, embed.PromptMergeChecklist)
		if err != nil {
			return nil, fmt.Errorf("load merge checklist: %w", err)
		}
		opts.Checklist = checklist
	}

	p, err := proposal.Generate(proposal.Input{
		Run:         snap.run,
		Status:      snap.status,
		States:      snap.states,
		Assessments: snap.assessments,
	}, opts)
	if err != nil {
		return nil, err
	}
	if err := s.proposals.Save(p); err != nil {
		return nil, err
	}

	tiers := map[string]int{}
	for _, e := range p.Lanes {
		tiers[string(e.RiskTier)]++
	}
	s.metrics.ProposalGenerated(tiers)
	return p, nil
}

// GetProposal returns the last saved proposal or proposal.ErrNotFound.
func (s *MergeService) GetProposal(slug string) (*proposal.Proposal, error) {
	if _, err := s.runs.LoadRun(slug); err != nil {
		return nil, err
	}
	return s.proposals.Load(slug)
}

// Merge executes the saved proposal. onLane, when set, is called before each
// lane is applied.
func (s *MergeService) Merge(slug string, req merge.Request, onLane func(proposal.Entry)) (*merge.Result, error) {
	r, err := s.runs.LoadRun(slug)
	if err != nil {
		return nil, err
	}
	if req.MergeToMain && !req.ConfirmMergeToMain {
		return nil, merge.ErrConfirmationRequired
	}
	if s.ledger == nil {
		return nil, fmt.Errorf("merge %s: no ledger configured", slug)
	}

	p, err := s.proposals.Load(slug)
	if err != nil {
		if errors.Is(err, proposal.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", merge.ErrNoProposal, err)
		}
		return nil, err
	}
	if p.RunID != r.ID {
		return nil, fmt.Errorf("%w: proposal belongs to run %s, not %s", ErrInvalidRequest, p.RunID, r.ID)
	}
	if err := validateLaneIDs(p, req.LaneIDs); err != nil {
		return nil, err
	}

	logging.Info("executing proposal %s for run %s", p.ID, slug)
	x := merge.NewExecutor(s.git, r.RepoPath, s.ledger, s.metrics)
	x.OnLaneStart = onLane
	return x.Execute(p, req)
}

// ResetMarkers forgets every merged-lane marker of a run.
func (s *MergeService) ResetMarkers(slug string) (int64, error) {
	r, err := s.runs.LoadRun(slug)
	if err != nil {
		return 0, err
	}
	if s.ledger == nil {
		return 0, nil
	}
	return s.ledger.Reset(r.ID)
}

// ListRuns returns the slugs of every run.
func (s *MergeService) ListRuns() ([]string, error) {
	return s.runs.ListRuns()
}

func validateLaneIDs(p *proposal.Proposal, ids []string) error {
	known := make([]string, len(p.Lanes))
	for i, e := range p.Lanes {
		known[i] = e.LaneID
	}
	for _, id := range ids {
		if _, ok := p.Entry(id); ok {
			continue
		}
		if hint := suggest(id, known); hint != "" {
			return fmt.Errorf("%w: lane %q is not in the proposal (did you mean %q?)", ErrInvalidRequest, id, hint)
		}
		return fmt.Errorf("%w: lane %q is not in the proposal", ErrInvalidRequest, id)
	}
	return nil
}

// suggest returns the closest candidate to id, or "" if nothing matches.
func suggest(id string, candidates []string) string {
	matches := fuzzy.Find(id, candidates)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
