package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	step     lipgloss.Style
	panel    lipgloss.Style
	label    lipgloss.Style
	selected lipgloss.Style
	muted    lipgloss.Style
	token    lipgloss.Style
	ok       lipgloss.Style
	err      lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		step:     lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14")),
		panel:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1),
		label:    lipgloss.NewStyle().Bold(true),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		token:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		ok:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
