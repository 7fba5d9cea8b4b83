package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dongho-jung/lanes/internal/conflict"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// RiskStyle returns the style used to render a risk tier.
func RiskStyle(tier conflict.RiskTier) lipgloss.Style {
	switch tier {
	case conflict.RiskHigh:
		return errorStyle
	case conflict.RiskMedium:
		return warnStyle
	case conflict.RiskLow:
		return accentStyle
	default:
		return dimStyle
	}
}

// Title renders a section title.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Warning renders a warning line.
func Warning(s string) string {
	return warnStyle.Render("! " + s)
}

// Success renders a success line.
func Success(s string) string {
	return successStyle.Render("✓ " + s)
}

// Failure renders a failure line.
func Failure(s string) string {
	return errorStyle.Render("✗ " + s)
}
