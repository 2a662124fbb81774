package scraper

import (
	"context"
	"fmt"
	"iter"

	"igevents/internal/downloader"
	"igevents/pkg/apify"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/storage"
)

// ItemSource runs the cloud actor. *apify.Client implements it.
type ItemSource interface {
	Posts(ctx context.Context, username string, limit int) ([]apify.Item, error)
}

// CloudBackend is Tier 1: the dataset is fetched in one call, then images
// are downloaded item by item as the sequence is consumed.
type CloudBackend struct {
	source   ItemSource
	fetcher  downloader.Fetcher
	download DownloadOptions
	logger   logger.Logger
}

func NewCloudBackend(source ItemSource, fetcher downloader.Fetcher, opts DownloadOptions, log logger.Logger) *CloudBackend {
	if log == nil {
		log = logger.GetLogger()
	}
	return &CloudBackend{
		source:   source,
		fetcher:  fetcher,
		download: opts.withDefaults(),
		logger:   log.WithField("tier", "cloud"),
	}
}

func (b *CloudBackend) Name() string { return "cloud" }

func (b *CloudBackend) FetchPosts(ctx context.Context, req FetchRequest) iter.Seq2[models.Post, error] {
	return func(yield func(models.Post, error) bool) {
		store, err := storage.NewManager(req.OutputDir)
		if err != nil {
			yield(models.Post{}, err)
			return
		}

		req.report(fmt.Sprintf("Collecting %s from the cloud scraper...", req.Username), "Cloud actor request sent (may take 1-2 minutes)", KindAPI)
		items, err := b.source.Posts(ctx, req.Username, req.Limit)
		if err != nil {
			yield(models.Post{}, err)
			return
		}
		req.report(fmt.Sprintf("Found %d posts", len(items)), fmt.Sprintf("Received %d dataset items", len(items)), KindInfo)
		if len(items) == 0 {
			b.logger.WarnWithFields("No posts returned, profile may be private or empty", map[string]any{"username": req.Username})
			return
		}

		count := 0
		for _, it := range items {
			if req.Limit > 0 && count >= req.Limit {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(models.Post{}, err)
				return
			}
			post := models.Post{
				Shortcode: it.ShortCode,
				Caption:   it.Caption,
				Date:      it.PostedAt(),
				PostURL:   models.PostURL(it.ShortCode),
				IsVideo:   it.IsVideo(),
			}
			post, ok := collect(ctx, b.download, b.fetcher, store, b.logger, post, it.ImageURLs(b.download.MaxImages))
			if !ok {
				continue
			}
			if err := store.WriteMetadata(req.Username, b.Name(), post); err != nil {
				b.logger.WithError(err).WarnWithFields("Failed to write post metadata", map[string]any{"shortcode": post.Shortcode})
			}
			count++
			req.report(fmt.Sprintf("Downloaded post %d/%d", count, req.Limit), fmt.Sprintf("Post %d: %s saved", count, post.Shortcode), KindInfo)
			if !yield(post, nil) {
				return
			}
		}
	}
}
