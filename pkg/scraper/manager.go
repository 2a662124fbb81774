package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "igevents/pkg/errors"
	"igevents/pkg/fn"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/resilience"
	"igevents/pkg/retry"
)

// TierObserver is told about every tier attempt. Used for metrics.
type TierObserver interface {
	ObserveTier(tier string, posts int, err error)
}

// Manager tries the cloud backend first and falls back to the session
// backend. The breaker is usually shared by every Manager in the process.
type Manager struct {
	cloud    Backend
	session  Backend
	breaker  *resilience.Breaker
	jitter   retry.Jitter
	sleep    retry.Sleeper
	observer TierObserver
	logger   logger.Logger
}

type ManagerOption func(*Manager)

// WithFallbackDelay sets the random pause before the session tier.
func WithFallbackDelay(min, max time.Duration) ManagerOption {
	return func(m *Manager) { m.jitter.Min, m.jitter.Max = min, max }
}

// WithRand replaces the random source of the fallback pause.
func WithRand(r func() float64) ManagerOption {
	return func(m *Manager) { m.jitter.Rand = r }
}

func WithSleeper(s retry.Sleeper) ManagerOption {
	return func(m *Manager) { m.sleep = s }
}

func WithObserver(o TierObserver) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

func WithManagerLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager accepts nil for either backend. A nil breaker gets a private
// one with default settings.
func NewManager(cloud, session Backend, breaker *resilience.Breaker, opts ...ManagerOption) *Manager {
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	m := &Manager{
		cloud:   cloud,
		session: session,
		breaker: breaker,
		jitter:  retry.Jitter{Min: 5 * time.Second, Max: 10 * time.Second},
		sleep:   retry.Wait,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("component", "scraper")
	return m
}

// drain consumes a backend sequence, numbering posts from 1.
func drain(ctx context.Context, b Backend, req FetchRequest) ([]models.IndexedPost, error) {
	var posts []models.IndexedPost
	for post, err := range b.FetchPosts(ctx, req) {
		if err != nil {
			return posts, err
		}
		ip := models.IndexedPost{Index: len(posts) + 1, Post: post}
		posts = append(posts, ip)
		if req.OnPost != nil {
			req.OnPost(ip)
		}
	}
	return posts, nil
}

// FetchPosts runs the tiers in order and returns the first tier's posts
// that completes. Cancellation during Tier 1 aborts without falling back.
// A failed result still carries the posts the last tier tried had yielded.
func (m *Manager) FetchPosts(ctx context.Context, req FetchRequest) fn.Result[[]models.IndexedPost] {
	if m.cloud == nil && m.session == nil {
		return fn.Err[[]models.IndexedPost](errs.ErrNoBackends)
	}

	if m.cloud != nil {
		if m.breaker.Allow() {
			req.report(fmt.Sprintf("Tier 1: trying %s scraper (%s)...", m.cloud.Name(), req.Username), "Cloud scraper connecting", KindAPI)
			posts, err := drain(ctx, m.cloud, req)
			m.observe(m.cloud.Name(), req.Username, len(posts), err)
			if err == nil {
				m.breaker.Success()
				req.report(fmt.Sprintf("Cloud scraper collected %d posts", len(posts)), "Cloud scrape complete", KindSuccess)
				return fn.Ok(posts)
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return fn.Partial(posts, fmt.Errorf("%s tier: %w", m.cloud.Name(), err))
			}
			m.breaker.Failure()
			req.report(fmt.Sprintf("Cloud scraper failed: %v", err), fmt.Sprintf("Cloud error: %v -> falling back to Tier 2", err), KindError)
		} else {
			until, _ := m.breaker.ReopensAt()
			m.logger.WarnWithFields("Cloud tier skipped, circuit open", map[string]any{"reopens_at": until})
			req.report("Cloud scraper circuit open, skipping Tier 1", "Cloud tier temporarily blocked (circuit breaker)", KindWarning)
		}
	}

	if m.session == nil {
		return fn.Err[[]models.IndexedPost](errs.ErrNoBackends)
	}

	req.report(fmt.Sprintf("Tier 2: switching to %s scraper (%s)...", m.session.Name(), req.Username), "Preparing session scraper", KindWarning)
	delay := m.jitter.NextDelay(0)
	req.report(fmt.Sprintf("Waiting %.1fs before fallback...", delay.Seconds()), fmt.Sprintf("Cool-down: %.1fs", delay.Seconds()), KindInfo)
	if err := m.sleep(ctx, delay); err != nil {
		return fn.Err[[]models.IndexedPost](fmt.Errorf("waiting for fallback: %w", err))
	}

	posts, err := drain(ctx, m.session, req)
	m.observe(m.session.Name(), req.Username, len(posts), err)
	if err != nil {
		req.report(fmt.Sprintf("Session scraper failed: %v", err), fmt.Sprintf("Session error: %v", err), KindError)
		return fn.Partial(posts, fmt.Errorf("%s tier: %w", m.session.Name(), err))
	}
	req.report(fmt.Sprintf("Session scraper collected %d posts", len(posts)), "Session scrape complete", KindSuccess)
	return fn.Ok(posts)
}

func (m *Manager) observe(tier, username string, posts int, err error) {
	logger.LogTier(tier, username, posts, err)
	if m.observer != nil {
		m.observer.ObserveTier(tier, posts, err)
	}
}
