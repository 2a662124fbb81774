package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	errs "igevents/pkg/errors"
	"igevents/pkg/logger"
	"igevents/pkg/ratelimit"
	"igevents/pkg/retry"
)

// Job is one image to fetch into the run directory.
type Job struct {
	URL       string
	Name      string
	Shortcode string
	Index     int
}

// Result is the outcome of a Job. Path is set on success.
type Result struct {
	Job      Job
	Path     string
	Success  bool
	Error    error
	Duration time.Duration
	Size     int
}

// Fetcher retrieves the bytes behind an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageStore persists fetched images.
type ImageStore interface {
	IsDownloaded(name string) bool
	Path(name string) string
	SaveImage(r io.Reader, name string) (string, error)
}

// WorkerPool downloads images with a fixed number of workers.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     Fetcher
	store       ImageStore
	limiter     ratelimit.Limiter
	retry       *retry.Config
	logger      logger.Logger
}

func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	fetcher Fetcher,
	store ImageStore,
	limiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		store:       store,
		limiter:     limiter,
		retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     &retry.ExponentialBackoff{BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2},
			RetryIf:     retry.DefaultRetryIf,
			Logger:      log,
		},
		logger: log,
	}
}

// WithRetry replaces the per-image retry policy.
func (wp *WorkerPool) WithRetry(cfg *retry.Config) *WorkerPool {
	wp.retry = cfg
	return wp
}

func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting download pool", map[string]any{"num_workers": wp.numWorkers})
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and closes Results.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("download pool is shutting down: %w", wp.ctx.Err())
	}
}

func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for job := range wp.jobQueue {
		var result Result
		if err := wp.ctx.Err(); err != nil {
			result = Result{Job: job, Error: err}
		} else {
			result = wp.processJob(job, id)
		}
		wp.resultQueue <- result
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}
	fields := map[string]any{"worker_id": workerID, "shortcode": job.Shortcode, "file": job.Name}

	if wp.store.IsDownloaded(job.Name) {
		wp.logger.DebugWithFields("Image already downloaded", fields)
		result.Success = true
		result.Path = wp.store.Path(job.Name)
		result.Duration = time.Since(start)
		return result
	}

	if wp.limiter != nil {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			result.Error = err
			return result
		}
	}

	data, err := retry.DoWithResult(wp.ctx, func(ctx context.Context) ([]byte, error) {
		return wp.fetcher.Fetch(ctx, job.URL)
	}, wp.retry)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.WithError(err).WarnWithFields("Image download failed", fields)
		return result
	}
	result.Size = len(data)

	path, err := wp.store.SaveImage(bytes.NewReader(data), job.Name)
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.WithError(err).ErrorWithFields("Image save failed", fields)
		return result
	}

	result.Success = true
	result.Path = path
	result.Duration = time.Since(start)
	return result
}

// DownloadAll runs jobs through a fresh pool and returns results in Index order.
func DownloadAll(ctx context.Context, numWorkers int, fetcher Fetcher, store ImageStore, limiter ratelimit.Limiter, log logger.Logger, jobs []Job) []Result {
	if len(jobs) == 0 {
		return nil
	}
	pool := NewWorkerPool(ctx, numWorkers, fetcher, store, limiter, log)
	pool.Start()

	results := make([]Result, 0, len(jobs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()

	var rejected []Result
	for _, job := range jobs {
		if err := pool.Submit(job); err != nil {
			rejected = append(rejected, Result{Job: job, Error: err})
		}
	}
	pool.Stop()
	<-done
	results = append(results, rejected...)

	sort.Slice(results, func(i, j int) bool { return results[i].Job.Index < results[j].Job.Index })
	return results
}

// HTTPFetcher downloads images over plain HTTP.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, UserAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "building image request", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "image request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.FromStatus(resp.StatusCode, "image download")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "reading image body", err)
	}
	return data, nil
}
