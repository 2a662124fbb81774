// Package persistence stores scraped posts, venues and events.
//
// Scraped posts are keyed by shortcode and upserted with fill-empty
// semantics: an empty incoming value never overwrites a stored one, so
// the first write after scraping and the later write after analysis can
// arrive in either order. Events are unique on (venue, name, date); saving
// a duplicate is a no-op that reports false.
package persistence

import (
	"context"
	"errors"
	"strings"

	"igevents/pkg/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrEmptyShortcode = errors.New("shortcode is required")
	ErrInvalidEvent   = errors.New("event name and date are required")
)

// PostStore holds scraped posts.
type PostStore interface {
	UpsertScrapedPost(ctx context.Context, username string, post models.Post, analysis *models.PostAnalysis) (int64, error)
	GetScrapedPost(ctx context.Context, shortcode string) (*models.ScrapedPost, error)
	ListScrapedPosts(ctx context.Context, username string) ([]models.ScrapedPost, error)
	ClearScrapedPosts(ctx context.Context) (int64, error)
}

// EventStore holds venues and events.
type EventStore interface {
	SaveEvent(ctx context.Context, ev models.Event) (bool, error)
	FindVenueByName(ctx context.Context, name string) (int64, bool, error)
	CreateVenue(ctx context.Context, name string) (int64, error)
	ListKnownVenueNames(ctx context.Context) ([]string, error)
}

// Gateway is everything the pipeline persists.
type Gateway interface {
	PostStore
	EventStore
}

// ResolveVenue finds name or creates it. An empty name resolves to 0.
func ResolveVenue(ctx context.Context, s EventStore, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}
	id, ok, err := s.FindVenueByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	return s.CreateVenue(ctx, name)
}

func validateEvent(ev *models.Event) error {
	ev.EventName = strings.TrimSpace(ev.EventName)
	ev.VenueName = strings.TrimSpace(ev.VenueName)
	if ev.EventName == "" || ev.EventDate == "" {
		return ErrInvalidEvent
	}
	if ev.Country == "" {
		ev.Country = models.DefaultCountry
	}
	if ev.Content == "" {
		ev.Content = ev.EventName
	}
	if ev.EventDatetime.IsZero() {
		if start, err := models.EventStart(ev.EventDate, ev.EventTime, nil); err == nil {
			ev.EventDatetime = start
		}
	}
	return nil
}

// eventKey is the uniqueness key of an event.
func eventKey(ev models.Event) string {
	return ev.VenueName + "\x00" + ev.EventName + "\x00" + ev.EventDate
}

// mergePost applies fill-empty upsert semantics onto an existing record.
func mergePost(dst *models.ScrapedPost, username string, post models.Post, a *models.PostAnalysis) {
	if username != "" {
		dst.SourceUsername = username
	}
	fill(&dst.Caption, post.Caption)
	fill(&dst.PostURL, post.PostURL)
	if post.Date != nil {
		dst.PostedAt = post.Date
	}
	if post.IsVideo {
		dst.IsVideo = true
	}
	if len(post.ImagePaths) > 0 {
		dst.ImagePaths = append([]string(nil), post.ImagePaths...)
	}
	if a == nil {
		return
	}
	fill(&dst.EventName, a.EventName)
	fill(&dst.Venue, a.Venue)
	fill(&dst.EventTime, a.EventTime)
	fill(&dst.Country, a.Country)
	fill(&dst.Location, a.Location)
	if len(a.EventDates) > 0 {
		dst.EventDates = append([]models.EventDate(nil), a.EventDates...)
	}
	if len(a.Artists) > 0 {
		dst.Artists = append([]string(nil), a.Artists...)
	}
}

func fill(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
