// Package styles holds the lipgloss and glamour styles shared by the lift
// CLI and viewer.
package styles

import "github.com/charmbracelet/lipgloss/v2"

var (
	Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)

	SelectedAddr = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	Addr         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	Error        = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	MenuBar = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)
)
