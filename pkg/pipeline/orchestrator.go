// Package pipeline drives one end-to-end run for an account: scrape, analyse
// each post, decide whether it is an event, persist and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"igevents/pkg/analyzer"
	"igevents/pkg/config"
	"igevents/pkg/fn"
	"igevents/pkg/geocode"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/persistence"
	"igevents/pkg/report"
	"igevents/pkg/retry"
	"igevents/pkg/scraper"
	"igevents/pkg/storage"
)

const maxContentRunes = 3000

// PostFetcher is the scraping side of a run, normally *scraper.Manager.
type PostFetcher interface {
	FetchPosts(ctx context.Context, req scraper.FetchRequest) fn.Result[[]models.IndexedPost]
}

// ImageUploader publishes a poster and returns its URL.
type ImageUploader interface {
	Upload(ctx context.Context, localPath string) (string, bool)
}

// Observer receives per-post outcomes, e.g. for metrics.
type Observer interface {
	ObserveDecision(status string)
	ObserveEventSaved()
}

// Options selects what one run does.
type Options struct {
	RawUsername    string
	Limit          int
	KnownVenueName string
	AutoSave       bool
}

// Orchestrator runs pipelines. One instance may serve concurrent runs; the
// rate gate and circuit breaker behind its collaborators are shared.
type Orchestrator struct {
	fetcher  PostFetcher
	analyzer analyzer.Analyzer
	store    persistence.Gateway
	geocoder geocode.Geocoder
	uploader ImageUploader
	observer Observer
	cfg      config.PipelineConfig
	sleep    retry.Sleeper
	now      func() time.Time
	log      logger.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithGeocoder(g geocode.Geocoder) Option { return func(o *Orchestrator) { o.geocoder = g } }
func WithUploader(u ImageUploader) Option    { return func(o *Orchestrator) { o.uploader = u } }
func WithObserver(obs Observer) Option       { return func(o *Orchestrator) { o.observer = obs } }
func WithSleeper(s retry.Sleeper) Option     { return func(o *Orchestrator) { o.sleep = s } }
func WithClock(now func() time.Time) Option  { return func(o *Orchestrator) { o.now = now } }
func WithLogger(l logger.Logger) Option      { return func(o *Orchestrator) { o.log = l } }

func New(fetcher PostFetcher, a analyzer.Analyzer, store persistence.Gateway, cfg config.PipelineConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:  fetcher,
		analyzer: a,
		store:    store,
		cfg:      cfg,
		sleep:    retry.Wait,
		now:      time.Now,
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.OCRAttempts <= 0 {
		o.cfg.OCRAttempts = 2
	}
	if o.cfg.DefaultLimit <= 0 {
		o.cfg.DefaultLimit = 3
	}
	if o.cfg.BaseDirectory == "" {
		o.cfg.BaseDirectory = "scraped_data"
	}
	return o
}

// run holds the state shared by the posts of one invocation.
type run struct {
	username   string
	opts       Options
	dir        string
	venueID    int64
	knownNames []string
	namesRead  bool
}

// RunFullScrapeProcess executes one run. It fails only when scraping
// produced no posts; everything after that degrades per post. A cancelled
// ctx stops the run between posts and returns the partial result. A post
// whose analysis has started is finished regardless of ctx.
func (o *Orchestrator) RunFullScrapeProcess(ctx context.Context, opts Options, rep Reporter) (*Result, error) {
	username := ExtractUsername(opts.RawUsername)
	if username == "" {
		return nil, fmt.Errorf("invalid username %q", opts.RawUsername)
	}
	if opts.Limit <= 0 {
		opts.Limit = o.cfg.DefaultLimit
	}
	started := o.now()
	r := &run{
		username: username,
		opts:     opts,
		dir:      storage.RunDir(o.cfg.BaseDirectory, started, username),
	}
	log := o.log.WithFields(map[string]any{"username": username, "limit": opts.Limit})
	result := &Result{Username: username, Details: []PostDetail{}}

	venueLabel := opts.KnownVenueName
	if venueLabel == "" {
		venueLabel = "auto"
	}
	emit(rep, Progress{Message: fmt.Sprintf("Starting scrape for %s (venue: %s)", username, venueLabel), Percent: 10})

	// Scrape
	scrapeStart := o.now()
	emit(rep, Progress{
		Message: fmt.Sprintf("Scraping %s (up to %d posts)", username, opts.Limit),
		Percent: 15,
		Log:     fmt.Sprintf("Collecting posts from '%s'", username),
	})
	upserted := map[string]bool{}
	storePost := func(post models.Post, n, of int) {
		pct := 30 + min(n, of)*25/of
		emit(rep, Progress{Message: fmt.Sprintf("Processing media %d/%d", n, of), Percent: pct})
		if _, err := o.store.UpsertScrapedPost(context.WithoutCancel(ctx), username, post, nil); err != nil {
			log.WithError(err).WithField("shortcode", post.Shortcode).Warn("Initial post upsert failed")
			return
		}
		upserted[post.Shortcode] = true
		emit(rep, Progress{Message: fmt.Sprintf("Saved %d", n), Percent: pct, Log: fmt.Sprintf("Post %d stored", n), Type: KindSuccess})
	}
	fetched := o.fetcher.FetchPosts(ctx, scraper.FetchRequest{
		Username:  username,
		Limit:     opts.Limit,
		OutputDir: r.dir,
		Progress: func(message, logLine, kind string) {
			emit(rep, Progress{Message: message, Percent: 30, Log: logLine, Type: kind})
		},
		OnPost: func(ip models.IndexedPost) {
			storePost(preparePost(ip.Post), ip.Index, opts.Limit)
		},
	})
	indexed, err := fetched.Unwrap()
	if err != nil {
		emit(rep, Progress{Message: "Scrape failed: " + err.Error(), Percent: 50, Type: KindError})
		if len(indexed) == 0 {
			log.WithError(err).Error("Scrape failed with no posts collected")
			result.Message = err.Error()
			return result, err
		}
		log.WithError(err).Warn("Scrape failed after partial collection, continuing")
	}

	posts := make([]models.Post, 0, len(indexed))
	for i, ip := range indexed {
		post := preparePost(ip.Post)
		posts = append(posts, post)
		// Fetchers that ignore OnPost, or a failed first upsert.
		if !upserted[post.Shortcode] {
			storePost(post, i+1, len(indexed))
		}
	}

	scrapeTook := o.now().Sub(scrapeStart)
	result.ScrapedCount = len(posts)
	result.Stats.TotalPosts = len(posts)
	result.Stats.TotalScrapeSec = seconds(scrapeTook)
	result.Stats.AvgScrapeSec = seconds(average(scrapeTook, len(posts)))
	emit(rep, Progress{
		Message: fmt.Sprintf("Scrape complete: %d posts", len(posts)),
		Percent: 55,
		Log:     fmt.Sprintf("Collected in %.1fs (%.1fs per post)", result.Stats.TotalScrapeSec, result.Stats.AvgScrapeSec),
		Type:    KindSuccess,
	})

	if len(posts) == 0 {
		result.Success = true
		result.Message = "No posts found"
		emit(rep, Progress{Message: "No posts found to analyze", Percent: 100})
		return result, nil
	}

	if opts.KnownVenueName != "" {
		id, ok, err := o.store.FindVenueByName(ctx, opts.KnownVenueName)
		if err != nil {
			log.WithError(err).Warn("Known venue lookup failed")
		} else if ok {
			r.venueID = id
		}
	}

	// Analyse
	emit(rep, Progress{Message: fmt.Sprintf("Analyzing %d posts", len(posts)), Percent: 60, Log: "Sequential analysis, one inference call at a time", Type: KindAPI})
	analysisStart := o.now()
	for i, post := range posts {
		if ctx.Err() == nil && i > 0 {
			_ = o.sleep(ctx, o.cfg.PostSpacing)
		}
		if ctx.Err() != nil {
			result.Cancelled = true
			emit(rep, Progress{Message: "Run cancelled", Percent: 60 + i*35/len(posts), Type: KindWarning})
			log.WithField("analysed", i).Warn("Run cancelled between posts")
			break
		}

		detail := o.processPost(context.WithoutCancel(ctx), r, post)
		result.Details = append(result.Details, detail)
		if detail.Status == StatusSaved {
			result.SavedCount++
		}
		emit(rep, Progress{
			Message: fmt.Sprintf("Analyzing %d/%d", i+1, len(posts)),
			Percent: 60 + (i+1)*35/len(posts),
			Log:     fmt.Sprintf("Post %d OCR and extraction done", i+1),
			Type:    KindAPI,
		})
	}
	analysisTook := o.now().Sub(analysisStart)
	result.Stats.TotalAnalysisSec = seconds(analysisTook)
	result.Stats.AvgAnalysisSec = seconds(average(analysisTook, len(posts)))

	for _, d := range result.Details {
		if d.Status == StatusNotEvent {
			result.SkipCount++
		}
	}

	if o.cfg.WriteCSV {
		path := report.ResultsPath(o.cfg.BaseDirectory, started, username)
		if err := report.WriteResults(path, reportRows(result.Details)); err != nil {
			log.WithError(err).Warn("Failed to write results file")
		} else {
			result.CSVPath = path
		}
	}

	result.Success = true
	emit(rep, Progress{
		Message: fmt.Sprintf("Analysis complete: %d saved, %d skipped", result.SavedCount, result.SkipCount),
		Percent: 100,
		Type:    KindSuccess,
	})
	log.InfoWithFields("Run finished", map[string]any{
		"scraped":   result.ScrapedCount,
		"saved":     result.SavedCount,
		"skipped":   result.SkipCount,
		"cancelled": result.Cancelled,
	})
	return result, nil
}

// preparePost normalises the caption and fills the permalink.
func preparePost(post models.Post) models.Post {
	post.Caption = norm.NFKC.String(post.Caption)
	if post.PostURL == "" {
		post.PostURL = models.PostURL(post.Shortcode)
	}
	return post
}

// skipPost records a post that never reached analysis.
func (o *Orchestrator) skipPost(r *run, post models.Post, status Status) PostDetail {
	o.log.WithFields(map[string]any{"username": r.username, "shortcode": post.Shortcode}).Info("Post not analysed: " + string(status))
	logger.LogPipelineStep(r.username, post.Shortcode, string(status))
	if o.observer != nil {
		o.observer.ObserveDecision(string(status))
	}
	return PostDetail{
		Shortcode: post.Shortcode,
		Caption:   post.Caption,
		PostDate:  post.Date,
		Status:    status,
	}
}

// processPost analyses one post. Posts without analysable content come back
// with a skip status.
func (o *Orchestrator) processPost(ctx context.Context, r *run, post models.Post) PostDetail {
	log := o.log.WithFields(map[string]any{"username": r.username, "shortcode": post.Shortcode})

	var images []string
	var ocr strings.Builder
	if post.IsVideo {
		if strings.TrimSpace(post.Caption) == "" {
			return o.skipPost(r, post, StatusNoCaption)
		}
	} else {
		for _, p := range post.ImagePaths {
			if storage.IsImage(p) {
				images = append(images, p)
			}
		}
		if len(images) == 0 {
			return o.skipPost(r, post, StatusNoImages)
		}
		for _, img := range images {
			text := o.extractText(ctx, img)
			if err := storage.WriteSidecar(img, text); err != nil {
				log.WithError(err).Warn("Failed to write OCR sidecar")
			}
			if text != "" {
				fmt.Fprintf(&ocr, "\n--- %s ---\n%s", filepath.Base(img), text)
			}
		}
	}

	combined := post.Caption + "\n" + ocr.String()
	ex := o.analyzer.ParseInfo(ctx, combined)
	dates := dedupe(ex.Dates)

	venue := r.opts.KnownVenueName
	if venue == "" {
		venue = ex.Venue
	}
	if venue == "" {
		venue = MatchKnownVenue(combined, o.knownVenues(ctx, r))
	}
	artist := ex.Artist
	if artist == "" {
		artist = r.username
	}
	eventName := ex.Title
	if eventName == "" {
		eventName = artist + " Live"
	}
	country := ex.Country
	if country == "" {
		country = models.DefaultCountry
	}

	detail := PostDetail{
		Shortcode:     post.Shortcode,
		Dates:         dates,
		Venue:         venue,
		Location:      ex.Location,
		Artist:        artist,
		Caption:       post.Caption,
		EventName:     ex.Title,
		PostDate:      post.Date,
		IsEventPoster: ex.IsEventPoster,
	}
	if len(images) > 0 {
		detail.Filename = filepath.Base(images[0])
		if abs, err := filepath.Abs(images[0]); err == nil {
			detail.ImagePath = abs
		} else {
			detail.ImagePath = images[0]
		}
	}

	decision := Decide(ex.IsEventPoster, ex.Title != "", venue != "", len(dates) > 0, r.opts.AutoSave)
	detail.Status = decision.Status
	if decision.Save {
		var failed int
		detail.EventsSaved, failed = o.saveEvents(ctx, r, post, images, models.Event{
			EventName:       eventName,
			VenueName:       venue,
			EventTime:       ex.Time,
			Location:        ex.Location,
			Country:         country,
			Content:         truncateRunes(post.Caption, maxContentRunes),
			Artists:         []string{artist},
			SourceShortcode: post.Shortcode,
			InstagramLink:   post.PostURL,
			IsDraft:         o.cfg.DraftEvents,
		}, dates)
		switch {
		case detail.EventsSaved > 0:
			detail.Status = StatusSaved
		case failed > 0:
			detail.Status = StatusSaveFailed
		}
	}

	analysis := &models.PostAnalysis{
		EventName: eventName,
		Venue:     venue,
		Artists:   []string{artist},
		EventTime: ex.Time,
		Country:   country,
		Location:  ex.Location,
	}
	if len(dates) > 0 {
		analysis.EventDates = []models.EventDate{{Date: dates[0], Time: ex.Time}}
	}
	if _, err := o.store.UpsertScrapedPost(ctx, r.username, post, analysis); err != nil {
		log.WithError(err).Warn("Analysis upsert failed")
	}

	logger.LogPipelineStep(r.username, post.Shortcode, string(detail.Status))
	if o.observer != nil {
		o.observer.ObserveDecision(string(detail.Status))
	}
	return detail
}

// extractText runs OCR with the configured number of attempts. An empty
// result counts as a failed attempt.
func (o *Orchestrator) extractText(ctx context.Context, imagePath string) string {
	text, err := retry.DoWithResult(ctx, func(ctx context.Context) (string, error) {
		t := o.analyzer.ExtractText(ctx, imagePath)
		if strings.TrimSpace(t) == "" {
			return "", errEmptyOCR
		}
		return t, nil
	}, &retry.Config{
		MaxAttempts: o.cfg.OCRAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: time.Second},
		RetryIf:     func(err error) bool { return errors.Is(err, errEmptyOCR) },
		Sleep:       o.sleep,
	})
	if err != nil {
		return ""
	}
	return text
}

var errEmptyOCR = errors.New("empty OCR result")

// saveEvents writes one event per date. It returns how many were created
// and how many writes failed.
func (o *Orchestrator) saveEvents(ctx context.Context, r *run, post models.Post, images []string, base models.Event, dates []string) (created, failed int) {
	log := o.log.WithFields(map[string]any{"username": r.username, "shortcode": post.Shortcode})

	if r.venueID != 0 && base.VenueName == r.opts.KnownVenueName {
		base.VenueID = r.venueID
	} else if id, err := persistence.ResolveVenue(ctx, o.store, base.VenueName); err != nil {
		log.WithError(err).Warn("Venue lookup failed")
	} else {
		base.VenueID = id
	}

	if o.uploader != nil && len(images) > 0 {
		if u, ok := o.uploader.Upload(ctx, images[0]); ok {
			base.ImageURL = u
		}
	}
	if o.geocoder != nil {
		if loc, ok := o.geocoder.Geocode(ctx, base.Location, base.VenueName); ok {
			lat, lng := loc.Latitude, loc.Longitude
			base.Latitude, base.Longitude = &lat, &lng
			base.FormattedAddress = loc.FormattedAddress
			base.PlaceID = loc.PlaceID
		}
	}

	for _, d := range dates {
		ev := base
		ev.EventDate = d
		ok, err := o.store.SaveEvent(ctx, ev)
		if err != nil {
			failed++
			log.WithError(err).WithField("date", d).Error("Event save failed")
			continue
		}
		if ok {
			created++
			if o.observer != nil {
				o.observer.ObserveEventSaved()
			}
		}
	}
	return created, failed
}

func (o *Orchestrator) knownVenues(ctx context.Context, r *run) []string {
	if !r.namesRead {
		r.namesRead = true
		names, err := o.store.ListKnownVenueNames(ctx)
		if err != nil {
			o.log.WithError(err).Warn("Failed to list known venues")
		}
		r.knownNames = names
	}
	return r.knownNames
}
