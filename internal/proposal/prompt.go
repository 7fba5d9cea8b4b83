package proposal

import (
	"fmt"
	"strings"
)

// RenderPrompt renders the proposal as a markdown document a person can
// follow by hand instead of running the executor.
func RenderPrompt(p *Proposal, checklist string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Merge choreography: %s\n\n", p.RunSlug)
	fmt.Fprintf(&sb, "Integration branch: `%s`\n", p.IntegrationBranch)
	fmt.Fprintf(&sb, "Default method: %s\n\n", p.DefaultMethod)

	sb.WriteString("## Order\n\n")
	if len(p.Lanes) == 0 {
		sb.WriteString("No lane is ready to merge.\n\n")
	} else {
		sb.WriteString("| # | Lane | Branch | Method | Commits | Risk | Depends on |\n")
		sb.WriteString("|---|------|--------|--------|---------|------|------------|\n")
		for _, e := range p.Lanes {
			deps := "-"
			if len(e.DependsOn) > 0 {
				deps = strings.Join(e.DependsOn, ", ")
			}
			fmt.Fprintf(&sb, "| %d | %s | `%s` | %s | %d | %s | %s |\n",
				e.Order, e.LaneID, e.Branch, e.Method, e.CommitsAhead, e.RiskTier, deps)
		}
		sb.WriteString("\n")

		for _, e := range p.Lanes {
			if len(e.Notes) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "- **%s**: %s\n", e.LaneID, strings.Join(e.Notes, "; "))
		}
		sb.WriteString("\n")
	}

	if len(p.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Manual procedure\n\n")
	sb.WriteString(strings.TrimRight(checklist, "\n"))
	sb.WriteString("\n")
	return sb.String()
}
