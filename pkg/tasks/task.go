// Package tasks tracks background pipeline runs for the HTTP API.
package tasks

import (
	"context"
	"errors"
	"time"

	"igevents/pkg/pipeline"
)

var (
	ErrNotFound  = errors.New("task not found")
	ErrStoreFull = errors.New("task store is full")
	ErrNotActive = errors.New("task is not running")
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further updates are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// maxLogs bounds the log tail kept per task.
const maxLogs = 500

type LogLine struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Type    string    `json:"type"`
}

type Task struct {
	ID        string           `json:"id"`
	Username  string           `json:"username"`
	Status    Status           `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message"`
	Logs      []LogLine        `json:"logs"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store persists task state. Update applies fn to the stored task under
// the store's own locking and stamps UpdatedAt.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, id string, fn func(*Task)) error
	AppendLog(ctx context.Context, id string, line LogLine) error
	List(ctx context.Context) ([]Task, error)
	Prune(ctx context.Context) (int, error)
}

func appendLog(t *Task, line LogLine) {
	t.Logs = append(t.Logs, line)
	if n := len(t.Logs); n > maxLogs {
		t.Logs = append([]LogLine(nil), t.Logs[n-maxLogs:]...)
	}
}

func clone(t *Task) *Task {
	c := *t
	c.Logs = append([]LogLine(nil), t.Logs...)
	return &c
}
