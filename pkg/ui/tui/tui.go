// Package tui renders a live dashboard for one pipeline run.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"igevents/pkg/pipeline"
)

// Dashboard owns the bubbletea program. It implements pipeline.Reporter so
// it can be handed straight to the orchestrator.
type Dashboard struct {
	program *tea.Program
	model   *Model
}

// NewDashboard creates a dashboard for username. cancel stops the run when
// the user quits early.
func NewDashboard(username string, cancel func(), opts ...tea.ProgramOption) *Dashboard {
	model := NewModel(username, cancel)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Dashboard{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
	}
}

// Run blocks until the user quits.
func (d *Dashboard) Run() error {
	_, err := d.program.Run()
	return err
}

func (d *Dashboard) Report(p pipeline.Progress) {
	d.program.Send(ProgressMsg(p))
}

// Finish hands the run outcome to the dashboard.
func (d *Dashboard) Finish(res *pipeline.Result, err error) {
	d.program.Send(DoneMsg{Result: res, Err: err})
}

// Quit closes the dashboard.
func (d *Dashboard) Quit() { d.program.Quit() }
