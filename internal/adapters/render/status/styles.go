package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	column  lipgloss.Style
	id      lipgloss.Style
	detail  lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	warning lipgloss.Style
	section lipgloss.Style
	empty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		column:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Underline(true),
		id:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		ok:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("114")),
		failed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		section: lipgloss.NewStyle().MarginTop(1),
		empty:   lipgloss.NewStyle().Faint(true),
	}
}
