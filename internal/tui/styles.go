package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorAccent = lipgloss.Color("#F4A261") // headers, selection
	ColorDim    = lipgloss.Color("#6B705C") // borders, secondary text
	ColorDark   = lipgloss.Color("#264653")
	ColorText   = lipgloss.Color("#E9E9E9")
	ColorDeny   = lipgloss.Color("#E76F51") // deny/drop/block, errors
	ColorAllow  = lipgloss.Color("#2A9D8F") // allow/accept, success
	ColorWarn   = lipgloss.Color("#E9C46A")
	ColorMuted  = lipgloss.Color("#8D99AE")
)

var (
	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDim).
			Padding(0, 1)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleSubtitle = lipgloss.NewStyle().
			Foreground(ColorDim).
			Italic(true)

	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorAllow).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorDeny).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDim).
			Padding(0, 1)

	StyleActiveCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(0, 1)

	StyleApp = lipgloss.NewStyle().Margin(1, 2)

	StyleTopBar = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDim).
			Padding(0, 1).
			MarginBottom(1)

	StyleMenuItem = lipgloss.NewStyle().
			Foreground(ColorDim).
			Padding(0, 1)

	StyleMenuItemActive = lipgloss.NewStyle().
				Foreground(ColorDark).
				Background(ColorAccent).
				Bold(true).
				Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Faint(true)

	StyleEventTime = lipgloss.NewStyle().Foreground(ColorMuted)
)

// actionStyle colors an action by what it does to traffic.
func actionStyle(action string) lipgloss.Style {
	switch action {
	case "allow", "accept":
		return lipgloss.NewStyle().Foreground(ColorAllow)
	case "deny", "drop", "block", "reject":
		return lipgloss.NewStyle().Foreground(ColorDeny)
	}
	return lipgloss.NewStyle().Foreground(ColorText)
}
