package main

import (
	"context"
	"fmt"
	"time"

	"igevents/internal/downloader"
	"igevents/internal/metrics"
	"igevents/pkg/analyzer"
	"igevents/pkg/apify"
	"igevents/pkg/auth"
	"igevents/pkg/config"
	"igevents/pkg/geocode"
	"igevents/pkg/instagram"
	"igevents/pkg/logger"
	"igevents/pkg/persistence"
	"igevents/pkg/pipeline"
	"igevents/pkg/ratelimit"
	"igevents/pkg/resilience"
	"igevents/pkg/scraper"
	"igevents/pkg/upload"
)

// requestsPerMinute caps Instagram page and image requests per process.
const requestsPerMinute = 60

// app is every long-lived collaborator of one process.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	metrics *metrics.Metrics
	breaker *resilience.Breaker
	orch    *pipeline.Orchestrator
	store   persistence.Gateway
	closers []func()
}

// newAnalyzer builds the analyzer behind the process-wide inference gate.
func newAnalyzer(cfg config.InferenceConfig, m *metrics.Metrics, log logger.Logger) analyzer.Analyzer {
	gate := ratelimit.NewGate(cfg.MinInterval)
	var opts []analyzer.Option
	if m != nil {
		opts = append(opts, analyzer.WithObserver(m))
	}
	return analyzer.New(cfg, gate, log, opts...)
}

// buildApp wires the scraping tiers, analyzer, stores and uploader into one
// orchestrator.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.GetLogger()
	m := metrics.New()
	a := &app{cfg: cfg, log: log, metrics: m}

	a.breaker = resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: cfg.Breaker.FailThreshold,
		Cooldown:      cfg.Breaker.Cooldown,
		OnStateChange: func(from, to resilience.State) {
			log.WithFields(map[string]any{"from": from, "to": to}).Warn("Cloud tier circuit changed state")
			m.BreakerStateChanged(from, to)
		},
	})

	limiter := ratelimit.NewSlidingWindow(requestsPerMinute, time.Minute)
	download := scraper.DownloadOptions{
		Workers:   cfg.Download.ConcurrentDownloads,
		MaxImages: cfg.Download.MaxImagesPerPost,
		Limiter:   limiter,
	}

	var cloud scraper.Backend
	if client := apify.NewClient(cfg.Apify, apify.WithLogger(log)); client != nil {
		fetcher := downloader.NewHTTPFetcher(cfg.Download.DownloadTimeout, cfg.Instagram.UserAgent)
		cloud = scraper.NewCloudBackend(client, fetcher, download, log)
	} else {
		log.Warn("No Apify token configured, the cloud tier is disabled")
	}

	var session scraper.Backend
	if sessions, err := auth.NewManager(); err != nil {
		log.WithError(err).Warn("Credential store unavailable, the session tier is disabled")
	} else {
		session = scraper.NewSessionBackend(cfg.Instagram, sessions, download, log,
			scraper.WithClientFactory(func(s *auth.Session) scraper.TimelineClient {
				if s.UserAgent == "" {
					s.UserAgent = cfg.Instagram.UserAgent
				}
				return instagram.NewClient(cfg.Instagram.Timeout, s, log, instagram.WithLimiter(limiter))
			}),
		)
	}

	fetcher := scraper.NewManager(cloud, session, a.breaker,
		scraper.WithFallbackDelay(cfg.Pipeline.FallbackDelayMin, cfg.Pipeline.FallbackDelayMax),
		scraper.WithObserver(m),
		scraper.WithManagerLogger(log),
	)

	store, closeStore, err := persistence.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	opts := []pipeline.Option{
		pipeline.WithObserver(m),
		pipeline.WithLogger(log),
	}
	if g := geocode.New(cfg.Geocoder, log); g != nil {
		opts = append(opts, pipeline.WithGeocoder(g))
	}

	var objects upload.ObjectWriter
	if cfg.Storage.Bucket != "" {
		gcs, err := upload.NewGCS(ctx, cfg.Storage)
		if err != nil {
			log.WithError(err).Warn("Cloud Storage unavailable, images are kept locally")
		} else {
			objects = gcs
			a.closers = append(a.closers, func() { _ = gcs.Close() })
		}
	}
	opts = append(opts, pipeline.WithUploader(upload.New(objects, cfg.Storage, log)))

	a.orch = pipeline.New(fetcher, newAnalyzer(cfg.Inference, m, log), store, cfg.Pipeline, opts...)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
