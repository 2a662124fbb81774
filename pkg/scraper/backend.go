package scraper

import (
	"context"
	"fmt"
	"iter"

	"igevents/internal/downloader"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/ratelimit"
	"igevents/pkg/storage"
)

// Progress kinds passed to a ProgressFunc.
const (
	KindInfo    = "info"
	KindAPI     = "api"
	KindSuccess = "success"
	KindWarning = "warning"
	KindError   = "error"
)

// ProgressFunc receives a user-facing message, a log line and a kind.
type ProgressFunc func(message, log, kind string)

type FetchRequest struct {
	Username  string
	Limit     int
	OutputDir string
	Progress  ProgressFunc
	// OnPost, when set, sees each post as soon as a tier yields it, so
	// callers can persist posts of a tier that later fails.
	OnPost func(models.IndexedPost)
}

func (r FetchRequest) report(message, log, kind string) {
	if r.Progress == nil {
		return
	}
	if log == "" {
		log = message
	}
	r.Progress(message, log, kind)
}

// Backend yields up to req.Limit posts. The sequence ends after the first error.
type Backend interface {
	Name() string
	FetchPosts(ctx context.Context, req FetchRequest) iter.Seq2[models.Post, error]
}

// DownloadOptions controls how backends fetch post images.
type DownloadOptions struct {
	Workers   int
	MaxImages int
	Limiter   ratelimit.Limiter
}

func (o DownloadOptions) withDefaults() DownloadOptions {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.MaxImages <= 0 {
		o.MaxImages = 10
	}
	return o
}

// downloadImages saves urls as {shortcode}_{i}.jpg and returns the paths
// that succeeded, in URL order.
func downloadImages(ctx context.Context, opts DownloadOptions, fetcher downloader.Fetcher, store *storage.Manager, log logger.Logger, shortcode string, urls []string) []string {
	if len(urls) > opts.MaxImages {
		urls = urls[:opts.MaxImages]
	}
	jobs := make([]downloader.Job, 0, len(urls))
	for i, u := range urls {
		jobs = append(jobs, downloader.Job{
			URL:       u,
			Name:      fmt.Sprintf("%s_%d.jpg", shortcode, i),
			Shortcode: shortcode,
			Index:     i,
		})
	}

	var paths []string
	for _, r := range downloader.DownloadAll(ctx, opts.Workers, fetcher, store, opts.Limiter, log, jobs) {
		if r.Success {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

// collect builds a post from downloaded images, returning false when a
// still-image post ended up with nothing on disk.
func collect(ctx context.Context, opts DownloadOptions, fetcher downloader.Fetcher, store *storage.Manager, log logger.Logger, post models.Post, urls []string) (models.Post, bool) {
	if post.IsVideo {
		return post, true
	}
	post.ImagePaths = downloadImages(ctx, opts, fetcher, store, log, post.Shortcode, urls)
	if len(post.ImagePaths) == 0 {
		log.WarnWithFields("No images downloaded, skipping post", map[string]any{
			"shortcode": post.Shortcode,
			"urls":      len(urls),
		})
		return post, false
	}
	return post, true
}
