package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorRed     = lipgloss.Color("#ff5555")
	colorGreen   = lipgloss.Color("#50fa7b")
	colorYellow  = lipgloss.Color("#f1fa8c")
	colorBlue    = lipgloss.Color("#8be9fd")
	colorPurple  = lipgloss.Color("#bd93f9")
	colorDim     = lipgloss.Color("#6272a4")
	colorBgLight = lipgloss.Color("#343746")
	colorFg      = lipgloss.Color("#f8f8f2")
	colorOrange  = lipgloss.Color("#ffb86c")
	colorBorder  = lipgloss.Color("#44475a")
)

var (
	diffViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	lineNumberStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(4).
			Align(lipgloss.Right)

	addedLineStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	deletedLineStyle = lipgloss.NewStyle().
				Foreground(colorRed)

	contextLineStyle = lipgloss.NewStyle().
				Foreground(colorFg)

	hunkHeaderStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	statusKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Background(colorBgLight).
			Bold(true)

	// Finding annotations
	findingCriticalStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	findingHighStyle = lipgloss.NewStyle().
				Foreground(colorOrange).
				Bold(true)

	findingMediumStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	findingLowStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	// Session outcomes
	appliedStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	discardedStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(1, 2)

	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)
