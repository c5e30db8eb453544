package report

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray
	modelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")) // magenta
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))            // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))            // red
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	outputBlockStyle = lipgloss.NewStyle().
				PaddingLeft(1).
				BorderLeft(true).
				BorderStyle(lipgloss.ThickBorder()).
				BorderForeground(lipgloss.Color("6"))
)
