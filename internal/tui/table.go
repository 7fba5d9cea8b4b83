package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dongho-jung/lanes/internal/conflict"
	"github.com/dongho-jung/lanes/internal/merge"
	"github.com/dongho-jung/lanes/internal/proposal"
	"github.com/dongho-jung/lanes/internal/service"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...)
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// RenderInfo renders the merge picture of a run.
func RenderInfo(info *service.Info) string {
	var b strings.Builder
	b.WriteString(Title("Run " + info.Slug))
	b.WriteString("\n")
	fmt.Fprintf(&b, "integration branch: %s\n", info.IntegrationBranch)
	if info.BaseBranch != "" {
		fmt.Fprintf(&b, "base: %s\n", info.BaseBranch)
	}
	if info.BaseError != "" {
		b.WriteString(Warning("base: " + info.BaseError))
		b.WriteString("\n")
	}
	if info.MergeState != nil && info.MergeState.Phase != "" {
		fmt.Fprintf(&b, "merge state: %s\n", info.MergeState.Phase)
	}

	tiers := make([]conflict.RiskTier, len(info.Lanes))
	t := newTable("Lane", "Branch", "Status", "Ahead", "Files", "Risk", "Conflicts", "Merged")
	for i, l := range info.Lanes {
		tiers[i] = l.RiskTier
		ahead := fmt.Sprintf("%d", l.CommitsAhead)
		if l.Error != "" {
			ahead = "?"
		}
		merged := ""
		if l.Merged {
			merged = "✓"
		}
		t.Row(l.ID, l.Branch, string(l.Status), ahead, fmt.Sprintf("%d", len(l.ChangedFiles)),
			string(l.RiskTier), list(l.ConflictingLanes), merged)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 5 && row >= 0 && row < len(tiers) {
			return RiskStyle(tiers[row]).Padding(0, 1)
		}
		return cellStyle
	})
	b.WriteString(t.Render())
	b.WriteString("\n")

	for _, l := range info.Lanes {
		if l.Error != "" {
			b.WriteString(Warning(fmt.Sprintf("%s: %s", l.ID, l.Error)))
			b.WriteString("\n")
		}
	}
	if !info.HasProposal {
		b.WriteString(dimStyle.Render("no merge proposal yet"))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderProposal renders the merge order and warnings of a proposal.
func RenderProposal(p *proposal.Proposal) string {
	var b strings.Builder
	b.WriteString(Title("Merge proposal for " + p.RunSlug))
	b.WriteString("\n")
	fmt.Fprintf(&b, "into %s, generated %s\n", p.IntegrationBranch, p.GeneratedAt.Format("2006-01-02 15:04:05"))

	tiers := make([]conflict.RiskTier, len(p.Lanes))
	t := newTable("#", "Lane", "Branch", "Method", "Commits", "Risk", "Depends on")
	for i, e := range p.Lanes {
		tiers[i] = e.RiskTier
		t.Row(fmt.Sprintf("%d", e.Order), e.LaneID, e.Branch, string(e.Method),
			fmt.Sprintf("%d", e.CommitsAhead), string(e.RiskTier), list(e.DependsOn))
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 5 && row >= 0 && row < len(tiers) {
			return RiskStyle(tiers[row]).Padding(0, 1)
		}
		return cellStyle
	})
	b.WriteString(t.Render())
	b.WriteString("\n")

	for _, e := range p.Lanes {
		for _, n := range e.Notes {
			b.WriteString(dimStyle.Render(fmt.Sprintf("%s: %s", e.LaneID, n)))
			b.WriteString("\n")
		}
	}
	for _, w := range p.Warnings {
		b.WriteString(Warning(w))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderResult renders the outcome of a merge.
func RenderResult(res *merge.Result) string {
	var b strings.Builder
	if len(res.Lanes) > 0 {
		outcomes := make([]merge.Outcome, len(res.Lanes))
		t := newTable("Lane", "Branch", "Method", "Outcome", "Commit")
		for i, l := range res.Lanes {
			outcomes[i] = l.Outcome
			commit := l.Commit
			if len(commit) > 10 {
				commit = commit[:10]
			}
			t.Row(l.LaneID, l.Branch, string(l.Method), string(l.Outcome), commit)
		}
		t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 && row >= 0 && row < len(outcomes) {
				return outcomeStyle(outcomes[row]).Padding(0, 1)
			}
			return cellStyle
		})
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	for _, l := range res.Lanes {
		if l.Error != "" {
			b.WriteString(Failure(fmt.Sprintf("%s: %s", l.LaneID, l.Error)))
			b.WriteString("\n")
		}
	}

	switch {
	case res.Conflict != nil:
		b.WriteString(Failure(fmt.Sprintf("conflict merging %s (%s)", res.Conflict.LaneID, res.Conflict.Branch)))
		b.WriteString("\n")
		for _, f := range res.Conflict.Files {
			b.WriteString("  " + f + "\n")
		}
	case res.MergedToMain:
		b.WriteString(Success("integration branch merged into main"))
		b.WriteString("\n")
	case res.State == merge.StateDone:
		b.WriteString(Success("merge complete"))
		b.WriteString("\n")
	}
	return b.String()
}

func outcomeStyle(o merge.Outcome) lipgloss.Style {
	switch o {
	case merge.OutcomeMerged:
		return successStyle
	case merge.OutcomeConflict, merge.OutcomeFailed:
		return errorStyle
	default:
		return dimStyle
	}
}
