// Package proposal turns inspection and conflict results into an ordered,
// persisted merge plan.
package proposal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dongho-jung/lanes/internal/conflict"
	"github.com/dongho-jung/lanes/internal/embed"
	"github.com/dongho-jung/lanes/internal/inspect"
	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/planner"
	"github.com/dongho-jung/lanes/internal/run"
)

// Entry is one lane's place in the merge order.
type Entry struct {
	LaneID           string            `json:"laneId"`
	Branch           string            `json:"branch"`
	Worktree         string            `json:"worktree,omitempty"`
	Order            int               `json:"order"`
	Method           run.MergeMethod   `json:"method"`
	DependsOn        []string          `json:"dependsOn"`
	CommitsAhead     int               `json:"commitsAhead"`
	RiskTier         conflict.RiskTier `json:"riskTier"`
	OverlappingLanes []string          `json:"overlappingLanes"`
	ConflictingLanes []string          `json:"conflictingLanes"`
	Notes            []string          `json:"notes,omitempty"`
}

// Proposal is the persisted merge plan for a run. Regeneration replaces it whole.
type Proposal struct {
	ID                string          `json:"id"`
	RunID             string          `json:"runId"`
	RunSlug           string          `json:"runSlug"`
	IntegrationBranch string          `json:"integrationBranch"`
	Lanes             []Entry         `json:"lanes"`
	Warnings          []string        `json:"warnings"`
	Prompt            string          `json:"prompt"`
	DefaultMethod     run.MergeMethod `json:"defaultMethod"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

// Entry returns the entry for laneID.
func (p *Proposal) Entry(laneID string) (Entry, bool) {
	for _, e := range p.Lanes {
		if e.LaneID == laneID {
			return e, true
		}
	}
	return Entry{}, false
}

// Input is everything the generator reads. States and Assessments come from
// the inspector and classifier for the same repository snapshot.
type Input struct {
	Run         *run.Run
	Status      *run.Status
	States      []inspect.LaneState
	Assessments map[string]conflict.Assessment
}

// Options tune generation.
type Options struct {
	// Overrides force a method for a lane regardless of the rule.
	Overrides map[string]run.MergeMethod
	// Checklist replaces the embedded manual-execution checklist.
	Checklist string
	// Now stamps GeneratedAt; defaults to time.Now.
	Now func() time.Time
}

// ChooseMethod picks the merge method for a lane: a single commit is always
// squashed, medium or high risk keeps full history, anything else is squashed.
func ChooseMethod(commitsAhead int, tier conflict.RiskTier) run.MergeMethod {
	if commitsAhead == 1 {
		return run.MethodSquash
	}
	if tier.Elevated() {
		return run.MethodMerge
	}
	return run.MethodSquash
}

// Generate builds a proposal covering every complete lane in dependency order.
func Generate(in Input, opts Options) (*Proposal, error) {
	if in.Run == nil {
		return nil, fmt.Errorf("generate proposal: run is required")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	checklist := opts.Checklist
	if checklist == "" {
		var err error
		if checklist, err = embed.GetDefaultPrompt(embed.PromptMergeChecklist); err != nil {
			return nil, fmt.Errorf("load merge checklist: %w", err)
		}
	}

	defaultMethod := in.Run.DefaultMergeMethod
	if defaultMethod == "" {
		defaultMethod = run.MethodSquash
	}

	p := &Proposal{
		ID:                uuid.NewString(),
		RunID:             in.Run.ID,
		RunSlug:           in.Run.Slug,
		IntegrationBranch: in.Run.IntegrationBranch,
		Lanes:             []Entry{},
		Warnings:          []string{},
		DefaultMethod:     defaultMethod,
		GeneratedAt:       now().UTC(),
	}

	states := make(map[string]inspect.LaneState, len(in.States))
	for _, st := range in.States {
		states[st.LaneID] = st
	}

	nodes := planner.FilterComplete(in.Run.Lanes, in.Status)
	deps := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		deps[n.ID] = n.DependsOn
	}
	plan := planner.TopologicalSort(nodes)

	for i, id := range plan.Order {
		lane, _ := in.Run.Lane(id)
		st := states[id]
		a := in.Assessments[id]
		tier := a.RiskTier
		if tier == "" {
			tier = conflict.RiskNone
		}

		e := Entry{
			LaneID:           id,
			Branch:           lane.Branch,
			Worktree:         lane.Worktree,
			Order:            i + 1,
			DependsOn:        nonNil(deps[id]),
			CommitsAhead:     st.CommitsAhead,
			RiskTier:         tier,
			OverlappingLanes: nonNil(a.OverlappingLanes),
			ConflictingLanes: nonNil(a.ConflictingLanes),
		}
		ruled := ChooseMethod(e.CommitsAhead, tier)
		e.Method = ruled
		if m, ok := opts.Overrides[id]; ok {
			e.Method = m
		}
		e.Notes = notesFor(e, a, st)
		if e.Method != ruled {
			e.Notes = append(e.Notes, fmt.Sprintf("method overridden to %s (rule chose %s)", e.Method, ruled))
		}
		p.Lanes = append(p.Lanes, e)
	}

	p.Warnings = warningsFor(in, p, plan, opts.Overrides)
	p.Prompt = RenderPrompt(p, checklist)

	logging.Info("proposal %s for run %s: %d lanes, %d warnings", p.ID, p.RunSlug, len(p.Lanes), len(p.Warnings))
	return p, nil
}

func notesFor(e Entry, a conflict.Assessment, st inspect.LaneState) []string {
	var notes []string
	switch {
	case st.Err != nil:
		notes = append(notes, "inspection failed: "+st.Err.Error())
	case e.CommitsAhead == 0:
		notes = append(notes, "no commits ahead of base")
	case e.CommitsAhead == 1:
		notes = append(notes, "single commit")
	}
	if e.Method == run.MethodMerge {
		notes = append(notes, "full merge keeps per-commit history for manual resolution")
	}
	if len(a.IncludedLanes) > 0 {
		notes = append(notes, "overlap already reconciled with "+strings.Join(a.IncludedLanes, ", "))
	}
	return notes
}

func warningsFor(in Input, p *Proposal, plan planner.Result, overrides map[string]run.MergeMethod) []string {
	warnings := []string{}

	seenPair := map[string]bool{}
	for _, e := range p.Lanes {
		for _, other := range e.ConflictingLanes {
			a, b := e.LaneID, other
			if b < a {
				a, b = b, a
			}
			key := a + "\x00" + b
			if seenPair[key] {
				continue
			}
			seenPair[key] = true
			shared := in.Assessments[a].SharedFiles[b]
			warnings = append(warnings, fmt.Sprintf("lanes %s and %s change the same files independently: %s",
				a, b, strings.Join(shared, ", ")))
		}
	}

	for _, e := range p.Lanes {
		if e.RiskTier.Elevated() {
			warnings = append(warnings, fmt.Sprintf("lane %s has %s risk: conflicts with %s",
				e.LaneID, e.RiskTier, strings.Join(e.ConflictingLanes, ", ")))
		}
	}

	for _, edge := range plan.BrokenEdges {
		warnings = append(warnings, fmt.Sprintf("dependency cycle: ignored %s -> %s", edge.From, edge.To))
	}

	for _, st := range in.States {
		if st.Err != nil {
			warnings = append(warnings, fmt.Sprintf("lane %s could not be inspected: %v", st.LaneID, st.Err))
		}
	}

	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := p.Entry(id); !ok {
			warnings = append(warnings, fmt.Sprintf("override for lane %s ignored: lane is not in the merge order", id))
		}
	}

	var pending []string
	for _, l := range in.Run.Lanes {
		if s := in.Status.Of(l.ID); s != run.StatusComplete {
			pending = append(pending, fmt.Sprintf("%s (%s)", l.ID, s))
		}
	}
	if len(pending) > 0 {
		warnings = append(warnings, "not complete, excluded from this proposal: "+strings.Join(pending, ", "))
	}
	return warnings
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
