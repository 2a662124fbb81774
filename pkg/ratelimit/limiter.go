package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks callers until the next request may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

// Gate enforces a minimum interval between calls across every holder of
// the same instance. One Gate is built per process and shared by all
// analyzers so the inference service sees a single global rate.
type Gate struct {
	lim *rate.Limiter
}

// NewGate returns a Gate that admits one call per interval. A non-positive
// interval disables limiting.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the interval since the previous admitted call has
// elapsed, or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.lim.Wait(ctx)
}

func (g *Gate) Allow() bool {
	return g.lim.Allow()
}

// SlidingWindow admits at most maxRequests within any window of the given size.
// The session backend uses it to stay under Instagram's hourly request budget.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	now         func() time.Time
	mu          sync.Mutex
}

func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// Allow records and admits a request if the window has room.
func (sw *SlidingWindow) Allow() bool {
	_, ok := sw.reserve()
	return ok
}

// Wait blocks until the window has room or ctx is done.
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := sw.reserve()
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// reserve admits a request, or reports how long until the oldest one leaves the window.
func (sw *SlidingWindow) reserve() (time.Duration, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.cleanOldRequests(now)
	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return 0, true
	}
	wait := sw.windowSize - now.Sub(sw.requests[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.requests = append(sw.requests[:0], sw.requests[i:]...)
	}
}
