package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"igevents/pkg/pipeline"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// ConsoleReporter prints pipeline progress as a redrawn status line with
// log lines scrolling above it. Verbose also prints info-level lines.
type ConsoleReporter struct {
	mu        sync.Mutex
	w         io.Writer
	verbose   bool
	startTime time.Time
	last      pipeline.Progress
}

func NewConsoleReporter(w io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{w: w, verbose: verbose, startTime: time.Now()}
}

func (c *ConsoleReporter) Report(p pipeline.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Log != "" && p.Log != p.Message && (c.verbose || p.Type != pipeline.KindInfo) {
		fmt.Fprintf(c.w, "\r%s\r%s %s\n", strings.Repeat(" ", 100), kindTag(p.Type), p.Log)
	}
	c.last = p
	fmt.Fprintf(c.w, "\r%s\r%s %s", strings.Repeat(" ", 100), Bar(p.Percent), p.Message)
	if p.Percent >= 100 {
		fmt.Fprintln(c.w)
	}
}

// Elapsed is the time since the reporter was created.
func (c *ConsoleReporter) Elapsed() time.Duration { return time.Since(c.startTime) }

// Bar renders a fixed-width percentage bar.
func Bar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * barWidth / 100
	return fmt.Sprintf("[%s%s] %3d%%",
		strings.Repeat(ProgressBar, filled),
		strings.Repeat(ProgressEmpty, barWidth-filled),
		percent)
}

func kindTag(kind string) string {
	switch kind {
	case pipeline.KindSuccess:
		return Green("[OK]")
	case pipeline.KindWarning:
		return Yellow("[WARN]")
	case pipeline.KindError:
		return Red("[ERROR]")
	case pipeline.KindAPI:
		return Magenta("[API]")
	default:
		return Cyan("[INFO]")
	}
}

// PrintSummary writes the outcome of a run with one line per analysed post.
func PrintSummary(w io.Writer, res *pipeline.Result, elapsed time.Duration) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "\n%s @%s: %d scraped, %d saved, %d skipped in %s\n",
		Green("✓"), res.Username, res.ScrapedCount, res.SavedCount, res.SkipCount, elapsed.Round(time.Second))
	if res.Cancelled {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Yellow("run was cancelled before all posts were analysed"))
	}
	for _, d := range res.Details {
		venue := d.Venue
		if venue == "" {
			venue = "-"
		}
		dates := strings.Join(d.Dates, ", ")
		if dates == "" {
			dates = "-"
		}
		fmt.Fprintf(w, "  %s %-12s %-24s %-24s %s\n", Dim("•"), d.Shortcode, venue, dates, statusColor(d.Status))
	}
	if res.CSVPath != "" {
		fmt.Fprintf(w, "  %s results: %s\n", Dim("•"), res.CSVPath)
	}
}

func statusColor(s pipeline.Status) string {
	switch s {
	case pipeline.StatusSaved, pipeline.StatusDuplicate:
		return Green(string(s))
	case pipeline.StatusReadyToReview, pipeline.StatusReviewNoDate:
		return Yellow(string(s))
	case pipeline.StatusSaveFailed:
		return Red(string(s))
	default:
		return Dim(string(s))
	}
}
