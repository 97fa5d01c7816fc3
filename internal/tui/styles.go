package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("214")
	muted  = lipgloss.Color("8")

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(accent)
	rootStyle      = lipgloss.NewStyle().Foreground(muted)
	activeTabStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0")).Background(accent)
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("250"))
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent)
	entryStyle     = lipgloss.NewStyle().PaddingLeft(2)
	starStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	emptyStyle     = lipgloss.NewStyle().Italic(true).Foreground(muted).PaddingLeft(2)
	statusStyle    = lipgloss.NewStyle().Foreground(muted)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

const (
	starOn  = "★"
	starOff = "☆"
)
