package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"igevents/pkg/analyzer"
	"igevents/pkg/fn"
	"igevents/pkg/geocode"
	"igevents/pkg/models"
	"igevents/pkg/persistence"
	"igevents/pkg/scraper"
	"igevents/pkg/textparse"
)

type fakeFetcher struct {
	posts []models.Post
	err   error
	req   scraper.FetchRequest
	// yielded runs after each post is handed to OnPost.
	yielded func(models.IndexedPost)
}

// FetchPosts hands every post to OnPost as it goes, like scraper.Manager,
// and keeps the posts when err is set.
func (f *fakeFetcher) FetchPosts(_ context.Context, req scraper.FetchRequest) fn.Result[[]models.IndexedPost] {
	f.req = req
	out := make([]models.IndexedPost, 0, len(f.posts))
	for i, p := range f.posts {
		ip := models.IndexedPost{Index: i + 1, Post: p}
		out = append(out, ip)
		if req.OnPost != nil {
			req.OnPost(ip)
		}
		if f.yielded != nil {
			f.yielded(ip)
		}
	}
	if f.err != nil {
		return fn.Partial(out, f.err)
	}
	return fn.Ok(out)
}

// scriptedAnalyzer returns queued OCR results per image and parses text
// with the regex parser anchored at a fixed date.
type scriptedAnalyzer struct {
	mu     sync.Mutex
	ocr    map[string][]string
	calls  map[string]int
	parsed []string
	inner  *analyzer.RegexAnalyzer
}

func newScriptedAnalyzer(now time.Time) *scriptedAnalyzer {
	return &scriptedAnalyzer{
		ocr:   map[string][]string{},
		calls: map[string]int{},
		inner: analyzer.NewRegexAnalyzer(&textparse.Parser{Now: func() time.Time { return now }}),
	}
}

func (a *scriptedAnalyzer) ExtractText(_ context.Context, path string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[path]++
	queue := a.ocr[path]
	if len(queue) == 0 {
		return ""
	}
	a.ocr[path] = queue[1:]
	return queue[0]
}

func (a *scriptedAnalyzer) ParseInfo(ctx context.Context, text string) models.Extraction {
	a.mu.Lock()
	a.parsed = append(a.parsed, text)
	a.mu.Unlock()
	return a.inner.ParseInfo(ctx, text)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	hook   func(n int)
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	s.mu.Unlock()
	if s.hook != nil {
		s.hook(n)
	}
	return ctx.Err()
}

type fakeUploader struct{ paths []string }

func (u *fakeUploader) Upload(_ context.Context, p string) (string, bool) {
	u.paths = append(u.paths, p)
	return "https://cdn.example/" + p, true
}

type fakeGeocoder struct{}

func (fakeGeocoder) Geocode(_ context.Context, location, venue string) (geocode.Location, bool) {
	if venue == "" {
		return geocode.Location{}, false
	}
	return geocode.Location{Latitude: 37.55, Longitude: 126.92, FormattedAddress: venue + ", Seoul", PlaceID: "pid"}, true
}

type countingObserver struct {
	mu        sync.Mutex
	decisions map[string]int
	saved     int
}

func (o *countingObserver) ObserveDecision(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.decisions == nil {
		o.decisions = map[string]int{}
	}
	o.decisions[status]++
}

func (o *countingObserver) ObserveEventSaved() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saved++
}

type progressLog struct {
	mu      sync.Mutex
	updates []Progress
}

func (p *progressLog) Report(u Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *progressLog) last() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates[len(p.updates)-1]
}

// cancellingAnalyzer cancels the run while a post is being parsed and
// records whether the parse saw the cancellation.
type cancellingAnalyzer struct {
	*scriptedAnalyzer
	cancel      context.CancelFunc
	sawCanceled bool
}

func (a *cancellingAnalyzer) ParseInfo(ctx context.Context, text string) models.Extraction {
	a.cancel()
	if ctx.Err() != nil {
		a.sawCanceled = true
	}
	return a.scriptedAnalyzer.ParseInfo(ctx, text)
}

// ctxStore fails writes on a done context the way the pgx store does.
type ctxStore struct {
	*persistence.Memory
}

func (s ctxStore) UpsertScrapedPost(ctx context.Context, username string, post models.Post, a *models.PostAnalysis) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Memory.UpsertScrapedPost(ctx, username, post, a)
}

func (s ctxStore) SaveEvent(ctx context.Context, ev models.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.Memory.SaveEvent(ctx, ev)
}

// brokenEvents rejects every event write.
type brokenEvents struct {
	*persistence.Memory
}

func (brokenEvents) SaveEvent(context.Context, models.Event) (bool, error) {
	return false, errors.New("insert event: connection refused")
}
