// Package resilience provides the circuit breaker shared by scraping runs.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures open the circuit.
	FailThreshold int
	// Cooldown is how long the circuit stays open.
	Cooldown time.Duration
	// OnStateChange, if set, is called outside the lock after every transition.
	OnStateChange func(from, to State)
}

var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 3,
	Cooldown:      10 * time.Minute,
}

// Breaker counts consecutive failures of a dependency. Once FailThreshold is
// reached the circuit opens for Cooldown; the first Allow after the cooldown
// resets the counter and closes it again, so that call probes the dependency.
// There is no half-open limit: a failing probe counts as one failure.
type Breaker struct {
	mu       sync.Mutex
	opts     BreakerOpts
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time
}

func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultBreakerOpts.Cooldown
	}
	return &Breaker{opts: opts, now: time.Now}
}

// WithClock replaces the breaker's time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
	return b
}

// Allow reports whether the protected call may be attempted now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	from := b.state
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Cooldown {
		b.state = StateClosed
		b.failures = 0
	}
	allowed := b.state == StateClosed
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return allowed
}

// Success resets the consecutive failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Failure records one failure and opens the circuit at the threshold.
func (b *Breaker) Failure() {
	b.mu.Lock()
	from := b.state
	b.failures++
	if b.state == StateClosed && b.failures >= b.opts.FailThreshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// Call runs f if the circuit allows it and records the outcome.
// Context cancellation is not counted as a failure.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	err := f(ctx)
	switch {
	case err == nil:
		b.Success()
	case errors.Is(err, context.Canceled):
	default:
		b.Failure()
	}
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// ReopensAt returns when an open circuit will next admit a call.
func (b *Breaker) ReopensAt() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return time.Time{}, false
	}
	return b.openedAt.Add(b.opts.Cooldown), true
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(from, to)
	}
}
