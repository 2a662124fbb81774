package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"igevents/pkg/logger"
	"igevents/pkg/pipeline"
)

var ErrInvalidUsername = errors.New("invalid instagram username or url")

const storeTimeout = 5 * time.Second

// Orchestration is the part of *pipeline.Orchestrator the runner needs.
type Orchestration interface {
	RunFullScrapeProcess(ctx context.Context, opts pipeline.Options, rep pipeline.Reporter) (*pipeline.Result, error)
}

// Runner executes submitted runs in background goroutines, at most
// `concurrency` at a time, mirroring their progress into a Store.
type Runner struct {
	store Store
	orch  Orchestration
	log   logger.Logger
	sem   *semaphore.Weighted
	extra pipeline.Reporter
	newID func() string

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

type RunnerOption func(*Runner)

func WithConcurrency(n int64) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(n)
		}
	}
}

func WithRunnerLogger(l logger.Logger) RunnerOption { return func(r *Runner) { r.log = l } }

// WithReporter adds a sink that sees every task's progress.
func WithReporter(rep pipeline.Reporter) RunnerOption { return func(r *Runner) { r.extra = rep } }

func WithIDFunc(f func() string) RunnerOption { return func(r *Runner) { r.newID = f } }

func NewRunner(store Store, orch Orchestration, opts ...RunnerOption) *Runner {
	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		store:   store,
		orch:    orch,
		log:     logger.GetLogger(),
		sem:     semaphore.NewWeighted(2),
		newID:   uuid.NewString,
		base:    base,
		stop:    stop,
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit records a queued task and starts it. The returned task is the
// initial snapshot.
func (r *Runner) Submit(ctx context.Context, opts pipeline.Options) (*Task, error) {
	username := pipeline.ExtractUsername(opts.RawUsername)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	t := &Task{
		ID:       r.newID(),
		Username: username,
		Status:   StatusQueued,
		Message:  "Queued",
		Logs:     []LogLine{},
	}
	if err := r.store.Create(ctx, t); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(r.base)
	r.mu.Lock()
	r.cancels[t.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(runCtx, t.ID, opts)

	r.log.InfoWithFields("Task submitted", map[string]any{"task_id": t.ID, "username": username})
	return t, nil
}

func (r *Runner) run(ctx context.Context, id string, opts pipeline.Options) {
	defer r.wg.Done()
	defer r.forget(id)
	log := r.log.WithField("task_id", id)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.finish(id, nil, err, true)
		return
	}
	defer r.sem.Release(1)

	r.update(id, func(t *Task) {
		t.Status = StatusRunning
		t.Message = "Starting"
	})

	async := pipeline.NewAsyncReporter(&storeReporter{store: r.store, id: id, log: log}, 128)
	var rep pipeline.Reporter = async
	if r.extra != nil {
		rep = pipeline.Multi(async, r.extra)
	}

	res, err := r.execute(ctx, opts, rep)
	async.Close()

	cancelled := ctx.Err() != nil || (res != nil && res.Cancelled)
	r.finish(id, res, err, cancelled)
	if err != nil && !cancelled {
		log.WithError(err).Error("Task failed")
	} else {
		log.WithField("cancelled", cancelled).Info("Task finished")
	}
}

func (r *Runner) execute(ctx context.Context, opts pipeline.Options, rep pipeline.Reporter) (res *pipeline.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("pipeline panicked: %v", v)
		}
	}()
	return r.orch.RunFullScrapeProcess(ctx, opts, rep)
}

func (r *Runner) finish(id string, res *pipeline.Result, err error, cancelled bool) {
	r.update(id, func(t *Task) {
		t.Result = res
		switch {
		case cancelled:
			t.Status = StatusCancelled
			t.Message = "Cancelled"
		case err != nil:
			t.Status = StatusError
			t.Error = err.Error()
			t.Message = "Failed: " + err.Error()
		default:
			t.Status = StatusCompleted
			t.Progress = 100
			t.Message = "Completed"
			if res != nil && res.Message != "" {
				t.Message = res.Message
			}
		}
	})
}

func (r *Runner) update(id string, fn func(*Task)) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.Update(ctx, id, fn); err != nil {
		r.log.WithError(err).WithField("task_id", id).Warn("Task update failed")
	}
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
}

// Cancel stops a queued or running task. The run observes cancellation
// between posts.
func (r *Runner) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
		return nil
	}
	if _, err := r.store.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotActive
}

// Wait blocks until every submitted task has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Shutdown cancels all tasks and waits for them, or for ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stop()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PruneLoop prunes the store every interval until ctx is done.
func (r *Runner) PruneLoop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := r.store.Prune(ctx); err != nil {
				r.log.WithError(err).Warn("Task prune failed")
			} else if n > 0 {
				r.log.WithField("pruned", n).Debug("Pruned finished tasks")
			}
		}
	}
}

// storeReporter mirrors progress into the task record.
type storeReporter struct {
	store Store
	id    string
	log   logger.Logger
}

func (s *storeReporter) Report(p pipeline.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := s.store.Update(ctx, s.id, func(t *Task) {
		t.Progress = p.Percent
		t.Message = p.Message
	})
	if err == nil && p.Log != "" {
		err = s.store.AppendLog(ctx, s.id, LogLine{Time: time.Now(), Message: p.Log, Type: p.Type})
	}
	if err != nil {
		s.log.WithError(err).Debug("Progress not stored")
	}
}
