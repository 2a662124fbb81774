package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"igevents/pkg/models"
)

// Memory is an in-process Gateway for tests and --dry-run style runs.
type Memory struct {
	mu     sync.Mutex
	posts  map[string]*models.ScrapedPost
	events map[string]models.Event
	order  []string
	venues map[string]int64
	nextID int64
	now    func() time.Time
}

func NewMemory(knownVenues ...string) *Memory {
	m := &Memory{
		posts:  make(map[string]*models.ScrapedPost),
		events: make(map[string]models.Event),
		venues: make(map[string]int64),
		now:    time.Now,
	}
	for _, v := range knownVenues {
		m.nextID++
		m.venues[v] = m.nextID
	}
	return m
}

func (m *Memory) UpsertScrapedPost(_ context.Context, username string, post models.Post, analysis *models.PostAnalysis) (int64, error) {
	if post.Shortcode == "" {
		return 0, ErrEmptyShortcode
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.posts[post.Shortcode]
	if !ok {
		m.nextID++
		rec = &models.ScrapedPost{ID: m.nextID, Shortcode: post.Shortcode, CreatedAt: now}
		m.posts[post.Shortcode] = rec
	}
	mergePost(rec, username, post, analysis)
	rec.UpdatedAt = now
	return rec.ID, nil
}

func (m *Memory) GetScrapedPost(_ context.Context, shortcode string) (*models.ScrapedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[shortcode]
	if !ok {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (m *Memory) ListScrapedPosts(_ context.Context, username string) ([]models.ScrapedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScrapedPost
	for _, rec := range m.posts {
		if username == "" || rec.SourceUsername == username {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerPost(out[i], out[j]) })
	return out, nil
}

func (m *Memory) ClearScrapedPosts(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.posts))
	m.posts = make(map[string]*models.ScrapedPost)
	return n, nil
}

func (m *Memory) SaveEvent(_ context.Context, ev models.Event) (bool, error) {
	if err := validateEvent(&ev); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventKey(ev)
	if _, dup := m.events[key]; dup {
		return false, nil
	}
	m.events[key] = ev
	m.order = append(m.order, key)
	return true, nil
}

func (m *Memory) FindVenueByName(_ context.Context, name string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.venues[name]
	return id, ok, nil
}

func (m *Memory) CreateVenue(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.venues[name]; ok {
		return id, nil
	}
	m.nextID++
	m.venues[name] = m.nextID
	return m.nextID, nil
}

func (m *Memory) ListKnownVenueNames(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.venues))
	for n := range m.venues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Events returns saved events in insertion order.
func (m *Memory) Events() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.events[k])
	}
	return out
}

// newerPost orders by posted_at descending with undated posts last.
func newerPost(a, b models.ScrapedPost) bool {
	switch {
	case a.PostedAt == nil && b.PostedAt == nil:
		return a.ID > b.ID
	case a.PostedAt == nil:
		return false
	case b.PostedAt == nil:
		return true
	case a.PostedAt.Equal(*b.PostedAt):
		return a.ID > b.ID
	}
	return a.PostedAt.After(*b.PostedAt)
}
