package tui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the copilot TUI.
var (
	colorRed     = lipgloss.Color("#FF5555")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorGray    = lipgloss.Color("#666666")
	colorDimGray = lipgloss.Color("#444444")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorPurple  = lipgloss.Color("#BD93F9")
)

// Base styles reused by the renderers.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	liveDotStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	connectingDotStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	pausedBadgeStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	interimStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	questionStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	groundedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	ungroundedStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	levelOnStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	levelHotStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	levelOffStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(colorPurple)
)
