package pipeline

import (
	"sync"

	"igevents/pkg/logger"
)

// Log line kinds shared with the scraper's progress callback.
const (
	KindInfo    = "info"
	KindAPI     = "api"
	KindSuccess = "success"
	KindWarning = "warning"
	KindError   = "error"
)

// Progress is one update emitted during a run.
type Progress struct {
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Log     string `json:"log"`
	Type    string `json:"type"`
}

// Reporter consumes progress. Implementations must return quickly.
type Reporter interface {
	Report(Progress)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Progress)

func (f ReporterFunc) Report(p Progress) { f(p) }

// Multi fans progress out to several reporters.
func Multi(reporters ...Reporter) Reporter {
	return ReporterFunc(func(p Progress) {
		for _, r := range reporters {
			emit(r, p)
		}
	})
}

// emit delivers p and swallows reporter panics.
func emit(r Reporter, p Progress) {
	if r == nil {
		return
	}
	if p.Log == "" {
		p.Log = p.Message
	}
	if p.Type == "" {
		p.Type = KindInfo
	}
	defer func() {
		if v := recover(); v != nil {
			logger.GetLogger().WithField("panic", v).Warn("Progress reporter panicked")
		}
	}()
	r.Report(p)
}

// AsyncReporter decouples a slow sink from the pipeline. Updates are queued
// and dropped when the queue is full.
type AsyncReporter struct {
	ch      chan Progress
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	closed  bool
	dropped int
}

func NewAsyncReporter(sink Reporter, buffer int) *AsyncReporter {
	if buffer <= 0 {
		buffer = 64
	}
	a := &AsyncReporter{ch: make(chan Progress, buffer), done: make(chan struct{})}
	go func() {
		defer close(a.done)
		for p := range a.ch {
			emit(sink, p)
		}
	}()
	return a
}

func (a *AsyncReporter) Report(p Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- p:
	default:
		a.dropped++
	}
}

// Close flushes queued updates and stops the worker.
func (a *AsyncReporter) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
	})
	<-a.done
}

// Dropped is the number of updates discarded because the queue was full.
func (a *AsyncReporter) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}
