package ui

import (
	"github.com/charmbracelet/lipgloss"

	"docuchat/models"
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)

var errorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FF0000")).
	Bold(true)

var titleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#00FFFF")).
	Bold(true)

var subtitleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#888888"))

var statusStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#00AA00"))

var warningStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFAA00")).
	Bold(true)

var activeTabStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#000000")).
	Background(lipgloss.Color("#00FFFF")).
	Bold(true).
	Padding(0, 2)

var inactiveTabStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#888888")).
	Padding(0, 2)

var userStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#00AAFF")).
	Bold(true)

var assistantStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#AA88FF")).
	Bold(true)

var sourceStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#888888")).
	PaddingLeft(2)

var suggestionStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFFFF")).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#555555")).
	Padding(0, 1)

// statusBadge renders a file status with its color
func statusBadge(s models.FileStatus) string {
	color := "#888888"
	switch s {
	case models.StatusUploaded:
		color = "#00AAFF"
	case models.StatusProcessing:
		color = "#FFAA00"
	case models.StatusIndexed:
		color = "#00AA00"
	case models.StatusError:
		color = "#FF0000"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("[" + string(s) + "]")
}
