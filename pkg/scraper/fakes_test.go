package scraper

import (
	"context"
	"iter"
	"sync"

	errs "igevents/pkg/errors"
	"igevents/pkg/models"
)

// spyBackend yields canned posts or an error and counts invocations.
type spyBackend struct {
	name  string
	posts []models.Post
	err   error
	block bool

	mu    sync.Mutex
	calls int
}

func (s *spyBackend) Name() string { return s.name }

func (s *spyBackend) FetchPosts(ctx context.Context, req FetchRequest) iter.Seq2[models.Post, error] {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return func(yield func(models.Post, error) bool) {
		if s.block {
			<-ctx.Done()
			yield(models.Post{}, ctx.Err())
			return
		}
		for _, p := range s.posts {
			if !yield(p, nil) {
				return
			}
		}
		if s.err != nil {
			yield(models.Post{}, s.err)
		}
	}
}

func (s *spyBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// mapFetcher serves image bytes by URL and answers 404 for anything else.
type mapFetcher map[string][]byte

func (f mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if b, ok := f[url]; ok {
		return b, nil
	}
	return nil, errs.FromStatus(404, "missing "+url)
}
