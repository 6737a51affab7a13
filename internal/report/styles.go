package report

import "github.com/charmbracelet/lipgloss"

// Styles controls how FormatText decorates its output.
type Styles struct {
	Title   lipgloss.Style
	Heading lipgloss.Style
	Good    lipgloss.Style
	Bad     lipgloss.Style
	Dim     lipgloss.Style
}

// TerminalStyles colors the summary for interactive terminals.
func TerminalStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1),
		Heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Good:    lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
		Bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// PlainStyles renders without decoration.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{Title: plain, Heading: plain, Good: plain, Bad: plain, Dim: plain}
}
