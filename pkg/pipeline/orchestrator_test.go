package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igevents/pkg/analyzer"
	"igevents/pkg/config"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/persistence"
	"igevents/pkg/report"
)

var runDay = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	fetcher  *fakeFetcher
	analyzer *scriptedAnalyzer
	store    *persistence.Memory
	sleeper  *sleepRecorder
	uploader *fakeUploader
	observer *countingObserver
	base     string
	cfg      config.PipelineConfig
	orch     *Orchestrator
}

func newHarness(t *testing.T, posts []models.Post, venues ...string) *harness {
	t.Helper()
	h := &harness{
		fetcher:  &fakeFetcher{posts: posts},
		analyzer: newScriptedAnalyzer(runDay),
		store:    persistence.NewMemory(venues...),
		sleeper:  &sleepRecorder{},
		uploader: &fakeUploader{},
		observer: &countingObserver{},
		base:     t.TempDir(),
	}
	h.cfg = config.PipelineConfig{
		BaseDirectory: h.base,
		DefaultLimit:  3,
		AutoSave:      true,
		PostSpacing:   time.Second,
		OCRAttempts:   2,
		WriteCSV:      true,
	}
	h.build(h.store, h.analyzer)
	return h
}

// build wires the orchestrator over the given store and analyzer.
func (h *harness) build(store persistence.Gateway, a analyzer.Analyzer) {
	h.orch = New(h.fetcher, a, store, h.cfg,
		WithSleeper(h.sleeper.sleep),
		WithClock(func() time.Time { return runDay }),
		WithUploader(h.uploader),
		WithGeocoder(fakeGeocoder{}),
		WithObserver(h.observer),
		WithLogger(logger.NewTestLogger()),
	)
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0644))
	return p
}

func TestRunDJNightEndToEnd(t *testing.T) {
	post := models.Post{Shortcode: "DJN", Caption: "DJ NIGHT 12.25 @ Club X", IsVideo: true}
	h := newHarness(t, []models.Post{post})
	progress := &progressLog{}

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "@clubx", AutoSave: true}, progress)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.ScrapedCount)
	assert.Equal(t, 1, res.SavedCount)
	require.Len(t, res.Details, 1)

	d := res.Details[0]
	assert.True(t, d.IsEventPoster)
	assert.Equal(t, []string{"2024-12-25"}, d.Dates)
	assert.Equal(t, "Club X", d.Venue)
	assert.Equal(t, StatusSaved, d.Status)

	events := h.store.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "2024-12-25", ev.EventDate)
	assert.Equal(t, "Club X", ev.VenueName)
	assert.NotZero(t, ev.VenueID)
	assert.Equal(t, "DJ NIGHT 12.25 @ Club X", ev.EventName)
	assert.Equal(t, []string{"clubx"}, ev.Artists)
	assert.Equal(t, "KR", ev.Country)
	assert.Equal(t, models.PostURL("DJN"), ev.InstagramLink)
	require.NotNil(t, ev.Latitude)
	assert.InDelta(t, 37.55, *ev.Latitude, 1e-9)
	assert.Empty(t, ev.ImageURL, "video posts have nothing to upload")

	stored, err := h.store.GetScrapedPost(context.Background(), "DJN")
	require.NoError(t, err)
	assert.Equal(t, "clubx", stored.SourceUsername)
	assert.Equal(t, "Club X", stored.Venue)
	assert.Equal(t, []models.EventDate{{Date: "2024-12-25"}}, stored.EventDates)

	assert.Equal(t, 100, progress.last().Percent)
	assert.Equal(t, filepath.Join(h.base, "2025-01-10", "clubx"), h.fetcher.req.OutputDir)
	assert.Equal(t, 3, h.fetcher.req.Limit)
	assert.Equal(t, 1, h.observer.saved)

	rows, err := report.ReadResults(res.CSVPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Saved", rows[0].Status)
}

func TestRerunReportsDuplicate(t *testing.T) {
	post := models.Post{Shortcode: "DJN", Caption: "DJ NIGHT 12.25 @ Club X", IsVideo: true}
	h := newHarness(t, []models.Post{post})
	ctx := context.Background()

	_, err := h.orch.RunFullScrapeProcess(ctx, Options{RawUsername: "clubx", AutoSave: true}, nil)
	require.NoError(t, err)
	res, err := h.orch.RunFullScrapeProcess(ctx, Options{RawUsername: "clubx", AutoSave: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicate, res.Details[0].Status)
	assert.Zero(t, res.SavedCount)
	assert.Len(t, h.store.Events(), 1)
}

func TestImagePostOCR(t *testing.T) {
	h := newHarness(t, nil)
	dir := filepath.Join(h.base, "2025-01-10", "hally")
	img := writeImage(t, dir, "HY1_1.jpg")
	h.fetcher.posts = []models.Post{{Shortcode: "HY1", Caption: "SUMMER PARTY", ImagePaths: []string{img, filepath.Join(dir, "HY1.json")}}}
	h.analyzer.ocr[img] = []string{"", "VENUE: Hall Y\n2025.02.01"}

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "hally", AutoSave: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, h.analyzer.calls[img], "empty OCR is retried once")
	assert.Contains(t, h.sleeper.delays, time.Second)

	sidecar, err := os.ReadFile(filepath.Join(dir, "HY1_1_ocr.txt"))
	require.NoError(t, err)
	assert.Equal(t, "VENUE: Hall Y\n2025.02.01", string(sidecar))

	require.Len(t, h.analyzer.parsed, 1)
	assert.Equal(t, "SUMMER PARTY\n\n--- HY1_1.jpg ---\nVENUE: Hall Y\n2025.02.01", h.analyzer.parsed[0])

	require.Len(t, res.Details, 1)
	d := res.Details[0]
	assert.Equal(t, "HY1_1.jpg", d.Filename)
	assert.Equal(t, "Hall Y", d.Venue)
	assert.Equal(t, []string{"2025-02-01"}, d.Dates)
	assert.Equal(t, StatusSaved, d.Status)

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "https://cdn.example/"+img, events[0].ImageURL)
	assert.Equal(t, "SUMMER PARTY", events[0].EventName)
	assert.Equal(t, []string{img}, h.uploader.paths)
}

func TestEmptyOCRKeepsSidecar(t *testing.T) {
	h := newHarness(t, nil)
	dir := filepath.Join(h.base, "x")
	img := writeImage(t, dir, "E1_1.png")
	h.fetcher.posts = []models.Post{{Shortcode: "E1", Caption: "just a photo", ImagePaths: []string{img}}}

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "someone"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, h.analyzer.calls[img])
	data, err := os.ReadFile(filepath.Join(dir, "E1_1_ocr.txt"))
	require.NoError(t, err)
	assert.Empty(t, data)
	require.Len(t, res.Details, 1)
	assert.Equal(t, StatusNotEvent, res.Details[0].Status)
	assert.Equal(t, 1, res.SkipCount)
}

func TestPostsWithoutUsableContentAreSkipped(t *testing.T) {
	h := newHarness(t, []models.Post{
		{Shortcode: "NOIMG", Caption: "DJ NIGHT 12.25 @ Club X"},
		{Shortcode: "MUTE", IsVideo: true},
		{Shortcode: "DOC", Caption: "party", ImagePaths: []string{"/tmp/DOC.pdf"}},
	})

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u", AutoSave: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ScrapedCount)
	require.Len(t, res.Details, 3)
	assert.Equal(t, StatusNoImages, res.Details[0].Status)
	assert.Equal(t, StatusNoCaption, res.Details[1].Status)
	assert.Equal(t, StatusNoImages, res.Details[2].Status)
	assert.Empty(t, h.analyzer.parsed, "skipped posts are never parsed")
	assert.Empty(t, h.store.Events())
	assert.Equal(t, 2, h.observer.decisions[string(StatusNoImages)])

	rows, err := report.ReadResults(res.CSVPath)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Skipped (No Caption)", rows[1].Status)

	posts, err := h.store.ListScrapedPosts(context.Background(), "u")
	require.NoError(t, err)
	assert.Len(t, posts, 3, "every scraped post is upserted before analysis")
}

func TestReviewStatuses(t *testing.T) {
	h := newHarness(t, []models.Post{
		{Shortcode: "A", Caption: "RELEASE PARTY", IsVideo: true},
		{Shortcode: "B", Caption: "DJ NIGHT 12.25 @ Club X", IsVideo: true},
	})

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u", AutoSave: false}, nil)
	require.NoError(t, err)
	require.Len(t, res.Details, 2)
	assert.Equal(t, StatusReviewNoDate, res.Details[0].Status)
	assert.Equal(t, StatusReadyToReview, res.Details[1].Status)
	assert.Empty(t, h.store.Events())
	assert.Equal(t, 1, h.observer.decisions[string(StatusReadyToReview)])
}

func TestKnownVenueFromList(t *testing.T) {
	h := newHarness(t, []models.Post{{Shortcode: "K", Caption: "live at cakeshop 3.5", IsVideo: true}}, "Cakeshop")

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u", AutoSave: true}, nil)
	require.NoError(t, err)
	require.Len(t, res.Details, 1)
	assert.Equal(t, "Cakeshop", res.Details[0].Venue)
	assert.Equal(t, []string{"2025-03-05"}, res.Details[0].Dates)

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].VenueID)
}

func TestExplicitVenueWins(t *testing.T) {
	h := newHarness(t, []models.Post{{Shortcode: "V", Caption: "DJ NIGHT 12.25 @ Club X", IsVideo: true}}, "Hall Y")

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u", AutoSave: true, KnownVenueName: "Hall Y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hall Y", res.Details[0].Venue)
	assert.Equal(t, int64(1), h.store.Events()[0].VenueID)
}

func TestScrapeFailureWithoutPosts(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.err = errors.New("session tier: login required")

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u"}, nil)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "login required")
}

func TestNoPostsIsSuccess(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "No posts found", res.Message)
}

func TestInvalidUsername(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "  @ "}, nil)
	assert.Error(t, err)
}

func TestSpacingAndCancellation(t *testing.T) {
	posts := []models.Post{
		{Shortcode: "P1", Caption: "a show", IsVideo: true},
		{Shortcode: "P2", Caption: "b show", IsVideo: true},
		{Shortcode: "P3", Caption: "c show", IsVideo: true},
	}
	h := newHarness(t, posts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sleeper.hook = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	res, err := h.orch.RunFullScrapeProcess(ctx, Options{RawUsername: "u"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Len(t, res.Details, 2)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, h.sleeper.delays)
}

func TestPanickingReporterDoesNotBreakRun(t *testing.T) {
	h := newHarness(t, []models.Post{{Shortcode: "P", Caption: "show", IsVideo: true}})
	rep := ReporterFunc(func(Progress) { panic("ui gone") })

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u"}, rep)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestScrapeFailureKeepsCollectedPosts(t *testing.T) {
	h := newHarness(t, []models.Post{
		{Shortcode: "A1", Caption: "DJ NIGHT 12.25 @ Club X", IsVideo: true},
		{Shortcode: "A2", Caption: "thanks for coming", IsVideo: true},
	})
	h.fetcher.err = errors.New("session tier: timeline page 2: connection reset")
	var storedBeforeNext []int
	h.fetcher.yielded = func(models.IndexedPost) {
		posts, _ := h.store.ListScrapedPosts(context.Background(), "u")
		storedBeforeNext = append(storedBeforeNext, len(posts))
	}

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u", AutoSave: true}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ScrapedCount)
	assert.Equal(t, []int{1, 2}, storedBeforeNext, "posts are stored as they are yielded")

	require.Len(t, res.Details, 2)
	assert.Equal(t, StatusSaved, res.Details[0].Status)
	assert.Equal(t, 1, res.SavedCount)
	assert.Len(t, h.store.Events(), 1)
}

func TestCancelDuringAnalysisFinishesPost(t *testing.T) {
	h := newHarness(t, []models.Post{
		{Shortcode: "DJN", Caption: "DJ NIGHT 12.25 @ Club X", IsVideo: true},
		{Shortcode: "NEXT", Caption: "another show", IsVideo: true},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := &cancellingAnalyzer{scriptedAnalyzer: h.analyzer, cancel: cancel}
	h.build(ctxStore{h.store}, a)

	res, err := h.orch.RunFullScrapeProcess(ctx, Options{RawUsername: "clubx", AutoSave: true}, nil)
	require.NoError(t, err)
	assert.False(t, a.sawCanceled, "a started post does not see the cancellation")
	assert.True(t, res.Cancelled)

	require.Len(t, res.Details, 1)
	assert.Equal(t, StatusSaved, res.Details[0].Status)
	assert.Len(t, h.store.Events(), 1)

	stored, err := h.store.GetScrapedPost(context.Background(), "DJN")
	require.NoError(t, err)
	assert.Equal(t, "Club X", stored.Venue)
}

func TestEventSaveErrorIsNotDuplicate(t *testing.T) {
	h := newHarness(t, []models.Post{{Shortcode: "DJN", Caption: "DJ NIGHT 12.25 @ Club X", IsVideo: true}})
	h.build(brokenEvents{h.store}, h.analyzer)

	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "clubx", AutoSave: true}, nil)
	require.NoError(t, err)
	require.Len(t, res.Details, 1)
	assert.Equal(t, StatusSaveFailed, res.Details[0].Status)
	assert.Zero(t, res.SavedCount)
	assert.Zero(t, res.Details[0].EventsSaved)
	assert.Equal(t, 1, h.observer.decisions[string(StatusSaveFailed)])
	assert.Zero(t, h.observer.decisions[string(StatusDuplicate)])
}

func TestStatsUseInjectedClock(t *testing.T) {
	h := newHarness(t, []models.Post{{Shortcode: "P", Caption: "show", IsVideo: true}})
	res, err := h.orch.RunFullScrapeProcess(context.Background(), Options{RawUsername: "u"}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Stats.TotalScrapeSec, "the harness clock never advances")
	assert.Zero(t, res.Stats.TotalAnalysisSec)
}
