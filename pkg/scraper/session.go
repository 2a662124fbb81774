package scraper

import (
	"context"
	"fmt"
	"iter"

	"igevents/internal/downloader"
	"igevents/pkg/auth"
	"igevents/pkg/config"
	errs "igevents/pkg/errors"
	"igevents/pkg/instagram"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/storage"
)

// SessionSource resolves the stored browser session. *auth.Manager implements it.
type SessionSource interface {
	Resolve(account string) (*auth.Session, error)
}

// TimelineClient reads a profile timeline and downloads its images.
// *instagram.Client implements it.
type TimelineClient interface {
	downloader.Fetcher
	Timeline(ctx context.Context, username string, limit int) iter.Seq2[instagram.Node, error]
}

// SessionBackend is Tier 2. The session is resolved on every fetch so a
// fresh 'auth login' takes effect without a restart.
type SessionBackend struct {
	cfg       config.InstagramConfig
	sessions  SessionSource
	newClient func(*auth.Session) TimelineClient
	download  DownloadOptions
	logger    logger.Logger
}

type SessionOption func(*SessionBackend)

// WithClientFactory replaces how a TimelineClient is built from a session.
func WithClientFactory(f func(*auth.Session) TimelineClient) SessionOption {
	return func(b *SessionBackend) { b.newClient = f }
}

func NewSessionBackend(cfg config.InstagramConfig, sessions SessionSource, opts DownloadOptions, log logger.Logger, options ...SessionOption) *SessionBackend {
	if log == nil {
		log = logger.GetLogger()
	}
	b := &SessionBackend{
		cfg:      cfg,
		sessions: sessions,
		download: opts.withDefaults(),
		logger:   log.WithField("tier", "session"),
	}
	b.newClient = func(s *auth.Session) TimelineClient {
		if s.UserAgent == "" && cfg.UserAgent != "" {
			s.UserAgent = cfg.UserAgent
		}
		return instagram.NewClient(cfg.Timeout, s, b.logger)
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *SessionBackend) Name() string { return "session" }

func (b *SessionBackend) FetchPosts(ctx context.Context, req FetchRequest) iter.Seq2[models.Post, error] {
	return func(yield func(models.Post, error) bool) {
		session, err := b.sessions.Resolve(b.cfg.Account)
		if err != nil {
			yield(models.Post{}, fmt.Errorf("no usable session (%v): %w", err, errs.ErrLoginRequired))
			return
		}
		store, err := storage.NewManager(req.OutputDir)
		if err != nil {
			yield(models.Post{}, err)
			return
		}
		client := b.newClient(session)

		req.report(fmt.Sprintf("Reading %s with the stored session...", req.Username), "Session scraper started as "+session.Account, KindInfo)
		count := 0
		for node, err := range client.Timeline(ctx, req.Username, 0) {
			if err != nil {
				yield(models.Post{}, err)
				return
			}
			post := models.Post{
				Shortcode: node.Shortcode,
				Caption:   node.CaptionText(),
				Date:      node.Posted(),
				PostURL:   models.PostURL(node.Shortcode),
				IsVideo:   node.Video(),
			}
			post, ok := collect(ctx, b.download, client, store, b.logger, post, node.ImageURLs(b.download.MaxImages))
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
			if req.Limit > 0 && count >= req.Limit {
				return
			}
		}
	}
}
