package shell

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	noticeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("208"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)
