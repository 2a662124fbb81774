package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateSpacesCalls(t *testing.T) {
	g := NewGate(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(ctx))
	}
	// first call is immediate, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 95*time.Millisecond)
}

func TestGateSharedAcrossGoroutines(t *testing.T) {
	g := NewGate(40 * time.Millisecond)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Wait(ctx))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, 4)
	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 110*time.Millisecond)
}

func TestGateWaitHonoursContext(t *testing.T) {
	g := NewGate(time.Hour)
	require.True(t, g.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Wait(ctx))
}

func TestGateDisabled(t *testing.T) {
	g := NewGate(0)
	for i := 0; i < 100; i++ {
		assert.True(t, g.Allow())
	}
}

func TestSlidingWindow(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	sw := NewSlidingWindow(2, time.Minute)
	sw.now = func() time.Time { return now }

	assert.True(t, sw.Allow())
	assert.True(t, sw.Allow())
	assert.False(t, sw.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, sw.Allow())

	sw.Reset()
	assert.True(t, sw.Allow())
	assert.True(t, sw.Allow())
}

func TestSlidingWindowWaitCancelled(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	require.NoError(t, sw.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sw.Wait(ctx), context.Canceled)
}
