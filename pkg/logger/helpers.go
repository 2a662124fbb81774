package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogTier records the outcome of one scraping tier attempt.
func LogTier(tier, username string, posts int, err error) {
	l := GetLogger().WithFields(map[string]any{
		"tier":     tier,
		"username": username,
		"posts":    posts,
	})
	if err != nil {
		l.WithError(err).Warn("Scraping tier failed")
		return
	}
	l.Info("Scraping tier succeeded")
}

// LogInference records a call to the inference service.
func LogInference(call string, took time.Duration, err error) {
	fields := map[string]any{
		"call":        call,
		"duration_ms": took.Milliseconds(),
	}
	if err != nil {
		GetLogger().WithError(err).WarnWithFields("Inference call failed", fields)
		return
	}
	GetLogger().DebugWithFields("Inference call completed", fields)
}

// LogPipelineStep records a per-post decision made by the orchestrator.
func LogPipelineStep(username, shortcode, status string) {
	GetLogger().InfoWithFields("Post processed", map[string]any{
		"username":  username,
		"shortcode": shortcode,
		"status":    status,
	})
}

// LogPersist records a write against one of the stores.
func LogPersist(store, key string, created bool, err error) {
	l := GetLogger().WithFields(map[string]any{"store": store, "key": key})
	if err != nil {
		l.WithError(err).Error("Persist failed")
		return
	}
	l.DebugWithFields("Persisted", map[string]any{"created": created})
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

