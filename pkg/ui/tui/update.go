package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"igevents/pkg/pipeline"
)

// ProgressMsg carries one pipeline progress update.
type ProgressMsg pipeline.Progress

// DoneMsg is sent once when the run returns.
type DoneMsg struct {
	Result *pipeline.Result
	Err    error
}

// clockMsg refreshes the elapsed time shown in the header.
type clockMsg time.Time

type keyMap struct {
	Quit     key.Binding
	Help     key.Binding
	ClearLog key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "Q", "ctrl+c"), key.WithHelp("q", "cancel / quit")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	ClearLog: key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear log")),
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd = m.onKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = barWidth(msg.Width)
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
	case clockMsg:
		if !m.done {
			cmd = clock()
		}
	case ProgressMsg:
		m.applyProgress(pipeline.Progress(msg))
	case DoneMsg:
		m.finish(msg.Result, msg.Err)
		if m.cancelling {
			cmd = tea.Quit
		}
	}
	return m, cmd
}

// onKey handles a key press. The first quit request cancels the run, a
// quit after the run has finished leaves the program.
func (m *Model) onKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		if m.done {
			return tea.Quit
		}
		if m.cancelling {
			return nil
		}
		m.cancelling = true
		m.AddLogMessage(pipeline.KindWarning, "Cancelling after the current post...")
		if m.cancel != nil {
			m.cancel()
		}
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, keys.ClearLog):
		m.logMessages = nil
	}
	return nil
}

func clock() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

// barWidth sizes the progress bar to half the terminal, within [10, 60].
func barWidth(total int) int {
	return min(max(total/2-12, 10), 60)
}
