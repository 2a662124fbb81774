package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igevents/pkg/pipeline"
)

const logo = `╦╔═╗  ╔═╗╦  ╦╔═╗╔╗╔╔╦╗╔═╗
║║ ╦  ║╣ ╚╗╔╝║╣ ║║║ ║ ╚═╗
╩╚═╝  ╚═╝ ╚╝ ╚═╝╝╚╝ ╩ ╚═╝`

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	width := m.width - 4
	sections := []string{
		logoStyle.Width(m.width).Render(logo),
		m.renderStatusPanel(width),
	}
	if m.done && m.result != nil {
		sections = append(sections, m.renderResultsPanel(width))
	}
	sections = append(sections, m.renderLogsPanel(width))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderStatusPanel(width int) string {
	title := titleStyle.Render(" RUN ")

	indicator := m.spinner.View()
	switch {
	case m.err != nil:
		indicator = errorStyle.Render("✗")
	case m.done:
		indicator = successStyle.Render("✓")
	case m.cancelling:
		indicator = warningStyle.Render("⏸")
	}

	lines := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Account:"), statsValueStyle.Render("@"+m.username)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(m.Elapsed()))),
		fmt.Sprintf("%s %s", indicator, m.stage),
		fmt.Sprintf("%s %s", m.bar.ViewAs(float64(m.percent)/100), progressStyle(m.percent).Render(fmt.Sprintf("%3d%%", m.percent))),
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderResultsPanel(width int) string {
	title := titleStyle.Render(" RESULTS ")
	res := m.result

	lines := []string{
		fmt.Sprintf("%s %s   %s %s   %s %s",
			statsLabelStyle.Render("Scraped:"), statsValueStyle.Render(fmt.Sprint(res.ScrapedCount)),
			statsLabelStyle.Render("Saved:"), successStyle.Render(fmt.Sprint(res.SavedCount)),
			statsLabelStyle.Render("Skipped:"), statsValueStyle.Render(fmt.Sprint(res.SkipCount)),
		),
	}
	for _, d := range res.Details {
		venue := d.Venue
		if venue == "" {
			venue = "-"
		}
		dates := strings.Join(d.Dates, ",")
		if dates == "" {
			dates = "-"
		}
		lines = append(lines, fmt.Sprintf("%s %-12s %-22s %-24s %s",
			statusStyle(d.Status).Render("●"),
			d.Shortcode,
			truncate(venue, 22),
			truncate(dates, 24),
			statusStyle(d.Status).Render(string(d.Status)),
		))
	}
	if res.CSVPath != "" {
		lines = append(lines, logTimestampStyle.Render("Results written to "+res.CSVPath))
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 12
	if start < 0 {
		start = 0
	}
	var logs []string
	for _, entry := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(entry.Time.Format("15:04:05"))
		kind := lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", strings.ToUpper(entry.Kind)))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, kind, logMessageStyle.Render(truncate(entry.Message, width-28))))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = skippedStyle.Render("No logs yet...")
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/ctrl+c - Cancel the run after the current post, quit when finished
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Status colours:
    ` + successStyle.Render("Green") + `    - Saved / duplicate
    ` + warningStyle.Render("Orange") + `   - Needs review
    ` + errorStyle.Render("Red") + `      - Save failed
    ` + skippedStyle.Render("Grey") + `     - Skipped
`
	return panelStyle.Width(m.width - 4).Render(help)
}
