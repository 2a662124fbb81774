package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"igevents/pkg/config"
	"igevents/pkg/pipeline"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier announces finished runs on the console and, where the platform
// supports it, as a desktop notification.
type Notifier struct {
	cfg    config.NotificationConfig
	sender NotificationSender
	out    io.Writer
}

// NewNotifier picks a sender for the current platform. Only the
// "desktop" notification type sends outside the terminal.
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	n := &Notifier{cfg: cfg, out: os.Stdout}
	if cfg.NotificationType != "desktop" {
		return n
	}
	switch runtime.GOOS {
	case "linux":
		n.sender = &LinuxNotificationSender{}
	case "darwin":
		n.sender = &MacOSNotificationSender{}
	}
	return n
}

// WithSender replaces the platform sender and output, mainly for tests.
func (n *Notifier) WithSender(s NotificationSender, out io.Writer) *Notifier {
	n.sender = s
	n.out = out
	return n
}

// RunFinished reports the outcome of one pipeline run.
func (n *Notifier) RunFinished(res *pipeline.Result, err error) {
	if n == nil || !n.cfg.Enabled || n.cfg.NotificationType == "none" {
		return
	}
	switch {
	case err != nil:
		if n.cfg.OnError {
			n.send(Red, "igevents: run failed", err.Error())
		}
	case res != nil && n.cfg.OnComplete:
		msg := fmt.Sprintf("@%s: %d posts, %d events saved", res.Username, res.ScrapedCount, res.SavedCount)
		if res.Cancelled {
			msg += " (cancelled)"
		}
		n.send(Green, "igevents: run complete", msg)
	}
}

func (n *Notifier) send(color func(string) string, title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", color(title), message)
	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}
