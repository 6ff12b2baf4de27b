package tui

import "github.com/charmbracelet/lipgloss"

var (
	// PromptStyle styles the picker prompt line.
	PromptStyle = lipgloss.NewStyle().Bold(true)

	// SelectedStyle highlights the picker's cursor row.
	SelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)

	// DimStyle fades unselected rows and hints.
	DimStyle = lipgloss.NewStyle().Faint(true)

	// ActiveBadgeStyle marks the currently active version in listings.
	ActiveBadgeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// WarnStyle renders warnings such as stale-catalog fallbacks.
	WarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	// ErrorStyle renders failures.
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)
