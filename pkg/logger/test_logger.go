package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one captured log line.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]any
}

type sink struct {
	mu      sync.Mutex
	entries []Entry
}

// TestLogger records log lines in memory so tests can assert on them.
// Loggers derived through WithField/WithFields share the parent's record.
type TestLogger struct {
	sink   *sink
	fields map[string]any
}

func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &sink{}, fields: map[string]any{}}
}

func (l *TestLogger) record(level, msg string, extra map[string]any) {
	merged := make(map[string]any, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	l.sink.mu.Lock()
	l.sink.entries = append(l.sink.entries, Entry{Level: level, Message: msg, Fields: merged})
	l.sink.mu.Unlock()
}

func (l *TestLogger) derive(fields map[string]any) *TestLogger {
	next := &TestLogger{sink: l.sink, fields: make(map[string]any, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, f map[string]any) { l.record("DEBUG", msg, f) }
func (l *TestLogger) InfoWithFields(msg string, f map[string]any)  { l.record("INFO", msg, f) }
func (l *TestLogger) WarnWithFields(msg string, f map[string]any)  { l.record("WARN", msg, f) }
func (l *TestLogger) ErrorWithFields(msg string, f map[string]any) { l.record("ERROR", msg, f) }
func (l *TestLogger) FatalWithFields(msg string, f map[string]any) { l.record("FATAL", msg, f) }

func (l *TestLogger) WithField(key string, value any) Logger {
	return l.derive(map[string]any{key: value})
}

func (l *TestLogger) WithFields(fields map[string]any) Logger { return l.derive(fields) }

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.derive(map[string]any{"error": err.Error()})
}

func (l *TestLogger) WithContext(context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// Entries returns a copy of everything logged so far.
func (l *TestLogger) Entries() []Entry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]Entry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// ByLevel filters captured entries by level name (DEBUG, INFO, WARN, ERROR).
func (l *TestLogger) ByLevel(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether any captured message contains substr.
func (l *TestLogger) Contains(substr string) bool {
	for _, e := range l.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (l *TestLogger) Reset() {
	l.sink.mu.Lock()
	l.sink.entries = nil
	l.sink.mu.Unlock()
}
