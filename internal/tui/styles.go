// ABOUTME: Lipgloss styles for the workbench terminal frontend
// ABOUTME: Panel border and accent colors are 256-color codes

package tui

import "github.com/charmbracelet/lipgloss"

// Styles groups the frontend's lipgloss styles.
type Styles struct {
	Title     lipgloss.Style
	Muted     lipgloss.Style
	EventName lipgloss.Style
	Status    lipgloss.Style
	Main      lipgloss.Style
	Side      lipgloss.Style
}

// DefaultStyles returns the built-in styles.
func DefaultStyles() Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		EventName: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Main:      lipgloss.NewStyle().Padding(0, 1),
		Side: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),
	}
}
