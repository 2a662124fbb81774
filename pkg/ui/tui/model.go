package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igevents/pkg/pipeline"
)

// LogMessage is one line of the run log panel.
type LogMessage struct {
	Time    time.Time
	Kind    string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model of a single pipeline run. Bubbletea calls
// Update and View from one goroutine; outside input arrives as messages.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	username  string
	percent   int
	stage     string
	startedAt time.Time
	now       func() time.Time

	logMessages    []LogMessage
	maxLogMessages int

	result     *pipeline.Result
	err        error
	done       bool
	cancelling bool
	cancel     func()

	width    int
	height   int
	showHelp bool
}

// NewModel creates the dashboard model. cancel, if set, is called when the
// user quits while the run is still going.
func NewModel(username string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return Model{
		spinner:        s,
		bar:            bar,
		username:       username,
		stage:          "Waiting to start",
		startedAt:      time.Now(),
		now:            time.Now,
		logMessages:    []LogMessage{},
		maxLogMessages: 50,
		cancel:         cancel,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, clock())
}

func (m *Model) applyProgress(p pipeline.Progress) {
	if p.Percent > m.percent {
		m.percent = p.Percent
	}
	if p.Message != "" {
		m.stage = p.Message
	}
	if p.Log != "" {
		m.AddLogMessage(p.Type, p.Log)
	}
}

func (m *Model) finish(res *pipeline.Result, err error) {
	m.done = true
	m.result = res
	m.err = err
	switch {
	case err != nil:
		m.stage = "Run failed"
		m.AddLogMessage(pipeline.KindError, err.Error())
	case res != nil && res.Cancelled:
		m.stage = "Run cancelled"
	default:
		m.percent = 100
		m.stage = "Run complete"
	}
}

// AddLogMessage appends to the log panel, keeping the newest entries.
func (m *Model) AddLogMessage(kind, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Kind:    kind,
		Message: message,
		Color:   kindColor(kind),
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Elapsed is the run time so far.
func (m *Model) Elapsed() time.Duration {
	return m.now().Sub(m.startedAt)
}

// Done reports whether the run has finished.
func (m *Model) Done() bool { return m.done }
