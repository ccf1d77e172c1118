package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/iammorganparry/issuehub/internal/issuehub"
)

// Palette (One Dark). The CLI tables share it.
var (
	ColorText      = lipgloss.Color("#ABB2BF")
	ColorSubtext   = lipgloss.Color("#828997")
	ColorMuted     = lipgloss.Color("#636B78")
	ColorFaint     = lipgloss.Color("#5C6370")
	ColorHighlight = lipgloss.Color("#2C313C")
	ColorBorder    = lipgloss.Color("#3F4451")

	ColorRed     = lipgloss.Color("#E06C75")
	ColorOrange  = lipgloss.Color("#D19A66")
	ColorYellow  = lipgloss.Color("#E5C07B")
	ColorGreen   = lipgloss.Color("#98C379")
	ColorCyan    = lipgloss.Color("#56B6C2")
	ColorBlue    = lipgloss.Color("#61AFEF")
	ColorMagenta = lipgloss.Color("#C678DD")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func boxed(padY, padX int) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorBorder).Padding(padY, padX)
}

// Layout
var (
	TitleStyle      = fg(ColorRed).Bold(true)
	PanelStyle      = boxed(0, 1)
	PanelTitleStyle = fg(ColorMagenta).Bold(true)
	StatusBarStyle  = fg(ColorMuted).Padding(0, 1)
	DimStyle        = fg(ColorFaint)
)

// Lists and detail
var (
	RowStyle           = fg(ColorText)
	SelectedStyle      = fg(ColorText).Background(ColorHighlight).Bold(true)
	IssueKeyStyle      = fg(ColorCyan)
	CommentAuthorStyle = fg(ColorBlue).Bold(true)
)

// Forms and overlays
var (
	FormStyle        = boxed(1, 2)
	FormLabelStyle   = fg(ColorSubtext)
	InputPromptStyle = fg(ColorGreen)

	HelpStyle      = boxed(1, 2)
	HelpTitleStyle = fg(ColorBlue).Bold(true)
	HelpKeyStyle   = fg(ColorYellow)
	HelpDescStyle  = fg(ColorText)
)

// Flash messages
var (
	ErrorStyle   = fg(ColorRed)
	WarningStyle = fg(ColorYellow)
	SuccessStyle = fg(ColorGreen)
)

// StatusStyle colors an issue status. Closed issues fade out.
func StatusStyle(s issuehub.Status) lipgloss.Style {
	switch s {
	case issuehub.StatusOpen:
		return fg(ColorBlue)
	case issuehub.StatusInProgress:
		return fg(ColorYellow)
	case issuehub.StatusResolved:
		return fg(ColorGreen)
	default:
		return DimStyle
	}
}

// PriorityStyle colors an issue priority by urgency.
func PriorityStyle(p issuehub.Priority) lipgloss.Style {
	switch p {
	case issuehub.PriorityCritical:
		return fg(ColorRed).Bold(true)
	case issuehub.PriorityHigh:
		return fg(ColorOrange)
	case issuehub.PriorityMedium:
		return fg(ColorYellow)
	default:
		return DimStyle
	}
}
