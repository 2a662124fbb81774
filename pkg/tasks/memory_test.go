package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore(capacity int, retention time.Duration) (*MemoryStore, *clock) {
	c := &clock{t: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
	return NewMemoryStore(capacity, retention).WithClock(c.now), c
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, c := newClockedStore(10, time.Hour)

	require.NoError(t, s.Create(ctx, &Task{ID: "a", Status: StatusQueued}))
	c.advance(time.Second)
	require.NoError(t, s.Update(ctx, "a", func(t *Task) {
		t.Status = StatusRunning
		t.Progress = 40
	}))
	require.NoError(t, s.AppendLog(ctx, "a", LogLine{Message: "step", Type: "info"}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 40, got.Progress)
	require.Len(t, got.Logs, 1)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	got.Logs[0].Message = "mutated"
	again, _ := s.Get(ctx, "a")
	assert.Equal(t, "step", again.Logs[0].Message, "Get returns a copy")

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "missing", func(*Task) {}), ErrNotFound)
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, c := newClockedStore(10, time.Hour)
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, s.Create(ctx, &Task{ID: id}))
		c.advance(time.Minute)
	}
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].ID)
	assert.Equal(t, "first", list[2].ID)
}

func TestMemoryStorePrune(t *testing.T) {
	ctx := context.Background()
	s, c := newClockedStore(10, time.Hour)
	require.NoError(t, s.Create(ctx, &Task{ID: "done", Status: StatusCompleted}))
	require.NoError(t, s.Create(ctx, &Task{ID: "busy", Status: StatusRunning}))

	c.advance(30 * time.Minute)
	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.advance(31 * time.Minute)
	n, err = s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "busy")
	assert.NoError(t, err, "active tasks are never pruned")
}

func TestMemoryStoreCapacity(t *testing.T) {
	ctx := context.Background()
	s, c := newClockedStore(2, 0)

	require.NoError(t, s.Create(ctx, &Task{ID: "old", Status: StatusError}))
	c.advance(time.Second)
	require.NoError(t, s.Create(ctx, &Task{ID: "live", Status: StatusRunning}))
	c.advance(time.Second)

	require.NoError(t, s.Create(ctx, &Task{ID: "new", Status: StatusQueued}))
	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound, "oldest terminal task is evicted")

	err = s.Create(ctx, &Task{ID: "overflow"})
	assert.ErrorIs(t, err, ErrStoreFull)
}

func TestLogTailIsBounded(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(1, 0)
	require.NoError(t, s.Create(ctx, &Task{ID: "a"}))
	for i := 0; i < maxLogs+20; i++ {
		require.NoError(t, s.AppendLog(ctx, "a", LogLine{Message: fmt.Sprint(i)}))
	}
	got, _ := s.Get(ctx, "a")
	require.Len(t, got.Logs, maxLogs)
	assert.Equal(t, "20", got.Logs[0].Message)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
