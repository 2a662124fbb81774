package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igevents/pkg/resilience"
)

func TestTierCounters(t *testing.T) {
	m := New()
	m.ObserveTier("cloud", 3, nil)
	m.ObserveTier("cloud", 2, nil)
	m.ObserveTier("session", 0, errors.New("login required"))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.postsScraped.WithLabelValues("cloud")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tierFailures.WithLabelValues("session")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.tierFailures.WithLabelValues("cloud")))
}

func TestDecisionsAndEvents(t *testing.T) {
	m := New()
	m.ObserveDecision("Saved")
	m.ObserveDecision("Saved")
	m.ObserveDecision("Skipped (Not Event)")
	m.ObserveEventSaved()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("Saved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsSaved))
}

func TestBreakerGauge(t *testing.T) {
	m := New()
	b := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1, OnStateChange: m.BreakerStateChanged})
	b.Failure()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerOpen))

	m.BreakerStateChanged(resilience.StateOpen, resilience.StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerOpen))
}

func TestHandlerExposesFamilies(t *testing.T) {
	m := New()
	m.ObserveInference("ocr", 1500*time.Millisecond, nil)
	m.ObserveEventSaved()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `igevents_inference_seconds_count{call="ocr"} 1`))
	assert.Contains(t, text, "igevents_events_saved_total 1")
	assert.Contains(t, text, "go_goroutines")
}
