// Package apify runs the Instagram scraper actor on Apify and returns its
// dataset items synchronously.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"igevents/pkg/config"
	errs "igevents/pkg/errors"
	"igevents/pkg/logger"
)

const (
	DefaultBaseURL = "https://api.apify.com"
	DefaultActor   = "apify~instagram-scraper"

	// MaxImagesPerItem caps the URLs taken from one dataset item.
	MaxImagesPerItem = 10
)

// Item is one post from the actor's dataset. Unknown fields are ignored.
type Item struct {
	ShortCode  string   `json:"shortCode"`
	Caption    string   `json:"caption"`
	Timestamp  string   `json:"timestamp"`
	Type       string   `json:"type"`
	DisplayURL string   `json:"displayUrl"`
	Images     []string `json:"images"`
	ChildPosts []struct {
		DisplayURL string `json:"displayUrl"`
	} `json:"childPosts"`
}

func (it *Item) IsVideo() bool { return it.Type == "Video" }

// ImageURLs returns up to max image URLs. A non-empty images list replaces
// the display URL; otherwise child post URLs follow it.
func (it *Item) ImageURLs(max int) []string {
	var urls []string
	if it.DisplayURL != "" {
		urls = append(urls, it.DisplayURL)
	}
	if len(it.Images) > 0 {
		urls = append([]string(nil), it.Images...)
	} else {
		for _, c := range it.ChildPosts {
			if c.DisplayURL != "" {
				urls = append(urls, c.DisplayURL)
			}
		}
	}
	if max > 0 && len(urls) > max {
		urls = urls[:max]
	}
	return urls
}

// PostedAt parses the RFC 3339 timestamp, returning nil when absent or malformed.
func (it *Item) PostedAt() *time.Time {
	if it.Timestamp == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, it.Timestamp)
	if err != nil {
		return nil
	}
	return &t
}

type runInput struct {
	DirectURLs   []string `json:"directUrls"`
	ResultsType  string   `json:"resultsType"`
	ResultsLimit int      `json:"resultsLimit"`
}

// Client calls run-sync-get-dataset-items for a single actor.
type Client struct {
	httpClient *http.Client
	baseURL    string
	actor      string
	token      string
	logger     logger.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

func WithLogger(l logger.Logger) Option { return func(c *Client) { c.logger = l } }

// NewClient returns nil when no token is configured, so callers can treat
// the cloud tier as absent.
func NewClient(cfg config.ApifyConfig, opts ...Option) *Client {
	if cfg.Token == "" {
		return nil
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		actor:      cfg.Actor,
		token:      cfg.Token,
		logger:     logger.GetLogger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.actor == "" {
		c.actor = DefaultActor
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "apify")
	return c
}

// Posts runs the actor against username's profile and returns at most limit items.
func (c *Client) Posts(ctx context.Context, username string, limit int) ([]Item, error) {
	body, err := json.Marshal(runInput{
		DirectURLs:   []string{fmt.Sprintf("https://www.instagram.com/%s/", username)},
		ResultsType:  "posts",
		ResultsLimit: limit,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindParsing, "encoding actor input", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, url.PathEscape(c.actor), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "building actor request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.logger.InfoWithFields("Running cloud scraper actor", map[string]any{
		"actor":    c.actor,
		"username": username,
		"limit":    limit,
	})
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.KindNetwork, "actor request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "reading actor response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.FromStatus(resp.StatusCode, apiErrorMessage(data))
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errs.Wrap(errs.KindParsing, "decoding dataset items", err)
	}
	c.logger.InfoWithFields("Cloud scraper actor finished", map[string]any{
		"username": username,
		"items":    len(items),
		"duration": time.Since(start),
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// apiErrorMessage extracts {"error":{"message":...}} when present.
func apiErrorMessage(data []byte) string {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}
