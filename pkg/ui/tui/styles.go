package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	orange   = lipgloss.Color("#FC6D26")
	purple   = lipgloss.Color("#6B4FBB")
	green    = lipgloss.Color("#2DA160")
	yellow   = lipgloss.Color("#E9BE74")
	red      = lipgloss.Color("#DD2B0E")
	dimWhite = lipgloss.Color("#B0B0B0")
	darkGrey = lipgloss.Color("#666666")

	headerStyle = lipgloss.NewStyle().
			Foreground(orange).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Background(purple).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(orange).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(yellow)

	successStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(darkGrey)

	logMessageStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(darkGrey).
			Padding(1, 0, 0, 1)
)

func levelStyle(level string) lipgloss.Style {
	switch level {
	case LevelSuccess:
		return successStyle
	case LevelError:
		return errorStyle
	case LevelWarn:
		return warningStyle
	default:
		return logMessageStyle
	}
}
