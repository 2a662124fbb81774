package tui

import (
	"github.com/charmbracelet/lipgloss"

	"igevents/pkg/pipeline"
)

// Dashboard palette.
var (
	colorAccent  = lipgloss.Color("#00FFFF")
	colorPanel   = lipgloss.Color("#FF00FF")
	colorGood    = lipgloss.Color("#39FF14")
	colorValue   = lipgloss.Color("#FFFF00")
	colorCaution = lipgloss.Color("#FF6700")
	colorBad     = lipgloss.Color("#FF3B30")
	colorText    = lipgloss.Color("#B0B0B0")
	colorFaint   = lipgloss.Color("#666666")
	colorScreen  = lipgloss.Color("#0A0E27")
	colorSurface = lipgloss.Color("#1A1E37")
)

// kindColors maps pipeline progress kinds onto log colours.
var kindColors = map[string]lipgloss.Color{
	pipeline.KindInfo:    colorAccent,
	pipeline.KindAPI:     colorPanel,
	pipeline.KindSuccess: colorGood,
	pipeline.KindWarning: colorCaution,
	pipeline.KindError:   colorBad,
}

func kindColor(kind string) lipgloss.Color {
	if c, ok := kindColors[kind]; ok {
		return c
	}
	return colorText
}

var (
	baseStyle = lipgloss.NewStyle().Background(colorScreen).Foreground(colorText)
	logoStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Padding(1, 0).Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorPanel).Background(colorSurface).Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Background(colorPanel).Foreground(colorScreen).Bold(true).Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	statsValueStyle = lipgloss.NewStyle().Foreground(colorValue)

	successStyle = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorBad).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorCaution).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(colorText).Faint(true)

	logTimestampStyle = lipgloss.NewStyle().Foreground(colorFaint)
	logMessageStyle   = lipgloss.NewStyle().Foreground(colorText)
	helpStyle         = lipgloss.NewStyle().Foreground(colorFaint).Padding(1, 0, 0, 2)
)

// progressStyle colours the percentage by how far the run has got.
func progressStyle(percent int) lipgloss.Style {
	c := colorPanel
	switch {
	case percent >= 80:
		c = colorGood
	case percent >= 50:
		c = colorValue
	case percent >= 30:
		c = colorCaution
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}

// statusStyle colours a post outcome.
func statusStyle(s pipeline.Status) lipgloss.Style {
	switch s {
	case pipeline.StatusSaved, pipeline.StatusDuplicate:
		return successStyle
	case pipeline.StatusReadyToReview, pipeline.StatusReviewNoDate:
		return warningStyle
	case pipeline.StatusSaveFailed:
		return errorStyle
	default:
		return skippedStyle
	}
}
