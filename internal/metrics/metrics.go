// Package metrics exposes pipeline counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"igevents/pkg/resilience"
)

const namespace = "igevents"

// Metrics implements the scraper, analyzer and pipeline observer hooks.
type Metrics struct {
	registry *prometheus.Registry

	postsScraped *prometheus.CounterVec
	tierFailures *prometheus.CounterVec
	eventsSaved  prometheus.Counter
	decisions    *prometheus.CounterVec
	inference    *prometheus.HistogramVec
	breakerOpen  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.postsScraped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_scraped_total",
		Help:      "Posts returned by each scraping tier",
	}, []string{"tier"})
	m.tierFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tier_failures_total",
		Help:      "Failed attempts per scraping tier",
	}, []string{"tier"})
	m.eventsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_saved_total",
		Help:      "Event records created",
	})
	m.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "post_decisions_total",
		Help:      "Analysed posts by final status",
	}, []string{"status"})
	m.inference = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inference_seconds",
		Help:      "Latency of inference calls",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"call"})
	m.breakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_open",
		Help:      "1 while the cloud tier circuit breaker is open",
	})

	m.registry.MustRegister(
		m.postsScraped, m.tierFailures, m.eventsSaved,
		m.decisions, m.inference, m.breakerOpen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveTier(tier string, posts int, err error) {
	if err != nil {
		m.tierFailures.WithLabelValues(tier).Inc()
		return
	}
	m.postsScraped.WithLabelValues(tier).Add(float64(posts))
}

func (m *Metrics) ObserveInference(call string, took time.Duration, _ error) {
	m.inference.WithLabelValues(call).Observe(took.Seconds())
}

func (m *Metrics) ObserveDecision(status string) {
	m.decisions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveEventSaved() { m.eventsSaved.Inc() }

// BreakerStateChanged matches resilience.BreakerOpts.OnStateChange.
func (m *Metrics) BreakerStateChanged(_, to resilience.State) {
	if to == resilience.StateOpen {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}
