package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igevents/pkg/logger"
	"igevents/pkg/pipeline"
)

// scriptedRun reports a few progress steps, then optionally blocks until
// released or cancelled.
type scriptedRun struct {
	block   chan struct{}
	err     error
	panics  bool
	started atomic.Int32
}

func (s *scriptedRun) RunFullScrapeProcess(ctx context.Context, opts pipeline.Options, rep pipeline.Reporter) (*pipeline.Result, error) {
	s.started.Add(1)
	if s.panics {
		panic("boom")
	}
	rep.Report(pipeline.Progress{Message: "Scraping", Percent: 15, Log: "Collecting posts", Type: pipeline.KindInfo})
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return &pipeline.Result{Success: true, Cancelled: true, Username: opts.RawUsername}, nil
		}
	}
	if s.err != nil {
		return &pipeline.Result{Message: s.err.Error()}, s.err
	}
	rep.Report(pipeline.Progress{Message: "Done", Percent: 100, Type: pipeline.KindSuccess})
	return &pipeline.Result{Success: true, Username: opts.RawUsername, SavedCount: 1}, nil
}

func newTestRunner(orch Orchestration, opts ...RunnerOption) (*Runner, *MemoryStore) {
	store := NewMemoryStore(10, time.Hour)
	opts = append([]RunnerOption{WithRunnerLogger(logger.NewTestLogger())}, opts...)
	return NewRunner(store, orch, opts...), store
}

func TestRunnerCompletes(t *testing.T) {
	r, store := newTestRunner(&scriptedRun{})
	ctx := context.Background()

	task, err := r.Submit(ctx, pipeline.Options{RawUsername: "https://instagram.com/clubx/"})
	require.NoError(t, err)
	assert.Equal(t, "clubx", task.Username)
	assert.Equal(t, StatusQueued, task.Status)
	r.Wait()

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1, got.Result.SavedCount)
	require.NotEmpty(t, got.Logs)
	assert.Equal(t, "Collecting posts", got.Logs[0].Message)
}

func TestRunnerRecordsFailure(t *testing.T) {
	r, store := newTestRunner(&scriptedRun{err: errors.New("login required")})
	task, err := r.Submit(context.Background(), pipeline.Options{RawUsername: "clubx"})
	require.NoError(t, err)
	r.Wait()

	got, _ := store.Get(context.Background(), task.ID)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "login required", got.Error)
}

func TestRunnerRecoversPanics(t *testing.T) {
	r, store := newTestRunner(&scriptedRun{panics: true})
	task, err := r.Submit(context.Background(), pipeline.Options{RawUsername: "clubx"})
	require.NoError(t, err)
	r.Wait()

	got, _ := store.Get(context.Background(), task.ID)
	assert.Equal(t, StatusError, got.Status)
	assert.Contains(t, got.Error, "panicked")
}

func TestRunnerCancel(t *testing.T) {
	run := &scriptedRun{block: make(chan struct{})}
	r, store := newTestRunner(run)
	ctx := context.Background()

	task, err := r.Submit(ctx, pipeline.Options{RawUsername: "clubx"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return run.started.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Cancel(ctx, task.ID))
	r.Wait()

	got, _ := store.Get(ctx, task.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.ErrorIs(t, r.Cancel(ctx, task.ID), ErrNotActive)
	assert.ErrorIs(t, r.Cancel(ctx, "nope"), ErrNotFound)
}

func TestRunnerConcurrencyLimit(t *testing.T) {
	run := &scriptedRun{block: make(chan struct{})}
	r, store := newTestRunner(run, WithConcurrency(1))
	ctx := context.Background()

	first, err := r.Submit(ctx, pipeline.Options{RawUsername: "one"})
	require.NoError(t, err)
	second, err := r.Submit(ctx, pipeline.Options{RawUsername: "two"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return run.started.Load() == 1 }, time.Second, 5*time.Millisecond)
	queued, _ := store.Get(ctx, second.ID)
	assert.Equal(t, StatusQueued, queued.Status)

	close(run.block)
	r.Wait()
	assert.Equal(t, int32(2), run.started.Load())
	for _, id := range []string{first.ID, second.ID} {
		got, _ := store.Get(ctx, id)
		assert.Equal(t, StatusCompleted, got.Status)
	}
}

func TestRunnerShutdownCancelsAll(t *testing.T) {
	run := &scriptedRun{block: make(chan struct{})}
	r, store := newTestRunner(run)
	ctx := context.Background()

	task, err := r.Submit(ctx, pipeline.Options{RawUsername: "clubx"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return run.started.Load() == 1 }, time.Second, 5*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(shutdownCtx))

	got, _ := store.Get(ctx, task.ID)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestSubmitRejectsBadUsername(t *testing.T) {
	r, _ := newTestRunner(&scriptedRun{})
	_, err := r.Submit(context.Background(), pipeline.Options{RawUsername: "   "})
	assert.ErrorIs(t, err, ErrInvalidUsername)
}

func TestExtraReporterSeesProgress(t *testing.T) {
	var seen atomic.Int32
	extra := pipeline.ReporterFunc(func(pipeline.Progress) { seen.Add(1) })
	r, _ := newTestRunner(&scriptedRun{}, WithReporter(extra))

	_, err := r.Submit(context.Background(), pipeline.Options{RawUsername: "clubx"})
	require.NoError(t, err)
	r.Wait()
	assert.Equal(t, int32(2), seen.Load())
}
