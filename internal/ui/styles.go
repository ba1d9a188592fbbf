package ui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title, stepActive, stepIdle     lipgloss.Style
	label, labelFocused, hint       lipgloss.Style
	card, cardSelected              lipgloss.Style
	ok, fail, pending, warn         lipgloss.Style
	alert, notice                   lipgloss.Style
	summary                         lipgloss.Style
	failureCard, successCard, stall lipgloss.Style
}

func newStyles() styles {
	base := lipgloss.NewStyle()
	return styles{
		title:        base.Bold(true).Foreground(lipgloss.Color("205")),
		stepActive:   base.Bold(true).Foreground(lipgloss.Color("39")),
		stepIdle:     base.Foreground(lipgloss.Color("241")),
		label:        base.Foreground(lipgloss.Color("252")),
		labelFocused: base.Bold(true).Foreground(lipgloss.Color("86")),
		hint:         base.Faint(true),
		card:         base.Border(lipgloss.NormalBorder(), false, false, false, true).Padding(0, 1).BorderForeground(lipgloss.Color("240")),
		cardSelected: base.Border(lipgloss.ThickBorder(), false, false, false, true).Padding(0, 1).BorderForeground(lipgloss.Color("63")),
		ok:           base.Foreground(lipgloss.Color("42")),
		fail:         base.Foreground(lipgloss.Color("196")),
		pending:      base.Foreground(lipgloss.Color("241")),
		warn:         base.Foreground(lipgloss.Color("214")),
		alert:        base.Bold(true).Foreground(lipgloss.Color("196")),
		notice:       base.Foreground(lipgloss.Color("42")),
		summary:      base.Foreground(lipgloss.Color("250")).PaddingLeft(2),
		failureCard:  base.Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("196")).Padding(1, 2),
		successCard:  base.Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("42")).Padding(1, 2),
		stall:        base.Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(1, 2),
	}
}
