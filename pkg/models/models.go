// Package models holds the records passed between scraper, analyzer,
// pipeline and persistence.
package models

import (
	"fmt"
	"time"
)

// DefaultCountry is used when no country can be inferred.
const DefaultCountry = "KR"

// Post is one scraped Instagram post. It is identified by Shortcode and is
// not modified after a backend produces it.
type Post struct {
	Shortcode  string     `json:"shortcode"`
	Caption    string     `json:"caption"`
	Date       *time.Time `json:"date,omitempty"`
	PostURL    string     `json:"post_url"`
	IsVideo    bool       `json:"is_video"`
	ImagePaths []string   `json:"image_paths"`
}

// IndexedPost pairs a post with its position in the fetched sequence.
type IndexedPost struct {
	Index int
	Post  Post
}

// PostURL builds the canonical permalink of a post.
func PostURL(shortcode string) string {
	return fmt.Sprintf("https://www.instagram.com/p/%s/", shortcode)
}

// Extraction is the structured result of analysing one post's text.
type Extraction struct {
	IsEventPoster bool     `json:"is_event_poster"`
	Dates         []string `json:"dates"`
	Time          string   `json:"time"`
	Venue         string   `json:"venue"`
	Location      string   `json:"location"`
	Country       string   `json:"country"`
	Artist        string   `json:"artist"`
	Title         string   `json:"title"`
	RawText       string   `json:"raw_text"`
}

// AddDate appends d unless it is empty or already present.
func (e *Extraction) AddDate(d string) {
	if d == "" {
		return
	}
	for _, have := range e.Dates {
		if have == d {
			return
		}
	}
	e.Dates = append(e.Dates, d)
}

// EventDate is one element of a scraped post's event_dates JSON column.
type EventDate struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// PostAnalysis is the subset of an extraction written back onto a scraped post.
type PostAnalysis struct {
	EventName  string
	Venue      string
	EventDates []EventDate
	Artists    []string
	EventTime  string
	Country    string
	Location   string
}

// ScrapedPost is the persisted form of a Post plus its latest analysis.
type ScrapedPost struct {
	ID             int64       `json:"id"`
	Shortcode      string      `json:"shortcode"`
	SourceUsername string      `json:"source_username"`
	Caption        string      `json:"caption"`
	PostedAt       *time.Time  `json:"posted_at,omitempty"`
	PostURL        string      `json:"post_url"`
	IsVideo        bool        `json:"is_video"`
	ImagePaths     []string    `json:"image_paths"`
	EventName      string      `json:"event_name"`
	Venue          string      `json:"venue"`
	EventDates     []EventDate `json:"event_dates"`
	Artists        []string    `json:"artists"`
	EventTime      string      `json:"event_time"`
	Country        string      `json:"country"`
	Location       string      `json:"location"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Event is a calendar entry created from an accepted post and date.
type Event struct {
	EventName        string    `json:"event_name"`
	VenueID          int64     `json:"venue_id"`
	VenueName        string    `json:"venue_name"`
	EventDate        string    `json:"event_date"`
	EventTime        string    `json:"event_time"`
	Location         string    `json:"location"`
	Country          string    `json:"country"`
	Content          string    `json:"content"`
	ImageURL         string    `json:"image_url"`
	Artists          []string  `json:"artists"`
	SourceShortcode  string    `json:"source_shortcode"`
	InstagramLink    string    `json:"instagram_link"`
	IsDraft          bool      `json:"is_draft"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	FormattedAddress string    `json:"formatted_address"`
	PlaceID          string    `json:"place_id"`
	EventDatetime    time.Time `json:"event_datetime"`
}

// Venue is a place events are attached to.
type Venue struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DefaultEventTime is used when an event's start time is unknown.
const DefaultEventTime = "19:00"

// EventStart combines an ISO date and an "HH:MM" time in loc. An empty or
// malformed time falls back to DefaultEventTime.
func EventStart(date, hhmm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := time.Parse("15:04", hhmm); err != nil || len(hhmm) != 5 {
		hhmm = DefaultEventTime
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, loc)
}
