package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igevents/internal/metrics"
	"igevents/pkg/logger"
	"igevents/pkg/pipeline"
	"igevents/pkg/resilience"
	"igevents/pkg/tasks"
)

type gatedRun struct{ release chan struct{} }

func (g *gatedRun) RunFullScrapeProcess(ctx context.Context, opts pipeline.Options, rep pipeline.Reporter) (*pipeline.Result, error) {
	rep.Report(pipeline.Progress{Message: "Scraping", Percent: 15})
	select {
	case <-g.release:
	case <-ctx.Done():
		return &pipeline.Result{Cancelled: true}, nil
	}
	return &pipeline.Result{Success: true, Username: pipeline.ExtractUsername(opts.RawUsername), SavedCount: 2}, nil
}

type fixture struct {
	srv    *Server
	store  *tasks.MemoryStore
	runner *tasks.Runner
	run    *gatedRun
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: tasks.NewMemoryStore(10, time.Hour),
		run:   &gatedRun{release: make(chan struct{})},
	}
	f.runner = tasks.NewRunner(f.store, f.run, tasks.WithRunnerLogger(logger.NewTestLogger()))
	f.srv = New(f.runner, f.store, WithMetrics(metrics.New().Handler()), WithLogger(logger.NewTestLogger()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.runner.Shutdown(ctx)
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, APIResponse) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func dataField(t *testing.T, resp APIResponse, key string) any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %#v", resp.Data)
	return m[key]
}

func TestScrapeLifecycle(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/api/scrape", `{"username":"@clubx","limit":3,"auto_save":true}`)
	require.Equal(t, http.StatusAccepted, status)
	id, _ := dataField(t, resp, "task_id").(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		task, err := f.store.Get(context.Background(), id)
		return err == nil && task.Status == tasks.StatusRunning
	}, time.Second, 5*time.Millisecond)

	close(f.run.release)
	f.runner.Wait()

	status, resp = f.do(t, http.MethodGet, "/api/task_status/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", dataField(t, resp, "status"))
	assert.Equal(t, "clubx", dataField(t, resp, "username"))
	result, _ := dataField(t, resp, "result").(map[string]any)
	assert.EqualValues(t, 2, result["saved_count"])

	status, resp = f.do(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, status)
	list, _ := resp.Data.([]any)
	assert.Len(t, list, 1)
}

func TestScrapeValidation(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/api/scrape", `{"username":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)

	status, _ = f.do(t, http.MethodPost, "/api/scrape", `{"username":"clubx","limit":500}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/api/scrape", `{"username":"@"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/api/scrape", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCancelTask(t *testing.T) {
	f := newFixture(t)
	_, resp := f.do(t, http.MethodPost, "/api/scrape", `{"username":"clubx"}`)
	id := dataField(t, resp, "task_id").(string)

	status, _ := f.do(t, http.MethodPost, "/api/tasks/"+id+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, status)
	f.runner.Wait()

	task, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusCancelled, task.Status)

	status, resp = f.do(t, http.MethodPost, "/api/tasks/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", resp.Error.Code)

	status, _ = f.do(t, http.MethodPost, "/api/tasks/missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnknownTaskAndRoute(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodGet, "/api/task_status/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	status, resp = f.do(t, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", dataField(t, resp, "status"))

	res, err := f.srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "igevents_events_saved_total")
}

func TestHealthReportsBreaker(t *testing.T) {
	f := newFixture(t)
	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1, Cooldown: 10 * time.Minute})
	f.srv = New(f.runner, f.store, WithBreaker(breaker), WithLogger(logger.NewTestLogger()))

	_, resp := f.do(t, http.MethodGet, "/healthz", "")
	circuit, ok := dataField(t, resp, "breaker").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "closed", circuit["state"])
	assert.NotContains(t, circuit, "reopens_at")

	breaker.Failure()
	_, resp = f.do(t, http.MethodGet, "/healthz", "")
	circuit, ok = dataField(t, resp, "breaker").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "open", circuit["state"])
	assert.EqualValues(t, 1, circuit["failures"])
	assert.Contains(t, circuit, "reopens_at")
}
