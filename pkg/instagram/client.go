package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"igevents/pkg/auth"
	errs "igevents/pkg/errors"
	"igevents/pkg/logger"
	"igevents/pkg/ratelimit"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client talks to Instagram's web API as a logged-in browser would.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	session    *auth.Session
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

// WithLimiter paces every request, image downloads included.
func WithLimiter(l ratelimit.Limiter) Option { return func(c *Client) { c.limiter = l } }

// NewClient creates a client authenticated with session. A nil session
// sends anonymous requests, which Instagram usually answers with a login wall.
func NewClient(timeout time.Duration, session *auth.Session, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	ua := defaultUserAgent
	if session != nil && session.UserAgent != "" {
		ua = session.UserAgent
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":       ua,
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9,ko;q=0.8",
			"X-IG-App-ID":      AppID,
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          BaseURL + "/",
		},
		baseURL: BaseURL,
		session: session,
		limiter: ratelimit.NewSlidingWindow(30, time.Minute),
		logger:  log.WithField("component", "instagram"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "failed to create request", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.session != nil {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.session.SessionID})
		req.AddCookie(&http.Cookie{Name: "csrftoken", Value: c.session.CSRFToken})
		req.Header.Set("X-CSRFToken", c.session.CSRFToken)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]any{
			"url":      url,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.Wrap(errs.KindNetwork, "instagram request", err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]any{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "failed to read response body", err)
	}
	return body, nil
}

func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.logger.WarnWithFields("session rejected", map[string]any{"status": code})
		return fmt.Errorf("instagram returned %d: %w", code, errs.ErrLoginRequired)
	default:
		return errs.FromStatus(code, "instagram "+http.StatusText(code))
	}
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	body, err := c.do(ctx, url)
	if err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		// Expired sessions are redirected to the HTML login page.
		return fmt.Errorf("received HTML instead of JSON: %w", errs.ErrLoginRequired)
	}
	if err := json.Unmarshal(body, target); err != nil {
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]any{
			"url":          url,
			"error":        err.Error(),
			"body_preview": preview(body),
		})
		return errs.Wrap(errs.KindParsing, "failed to parse JSON", err)
	}
	return nil
}

// FetchProfile returns the user together with the first timeline page.
func (c *Client) FetchProfile(ctx context.Context, username string) (*User, error) {
	var resp ProfileResponse
	if err := c.getJSON(ctx, ProfileURL(c.baseURL, username), &resp); err != nil {
		return nil, err
	}
	if resp.RequiresToLogin {
		return nil, errs.ErrLoginRequired
	}
	if resp.Data.User == nil {
		return nil, errs.New(errs.KindNotFound, "profile not found: "+username)
	}
	return resp.Data.User, nil
}

// FetchMedia returns the timeline page that follows the cursor after.
func (c *Client) FetchMedia(ctx context.Context, userID, after string, first int) (*Timeline, error) {
	var resp MediaResponse
	if err := c.getJSON(ctx, MediaURL(c.baseURL, userID, after, first), &resp); err != nil {
		return nil, err
	}
	if resp.RequiresToLogin {
		return nil, errs.ErrLoginRequired
	}
	return &resp.Data.User.Timeline, nil
}

// Timeline yields up to limit nodes, newest first, paging as needed. A
// non-positive limit reads the whole timeline. The first error ends the sequence.
func (c *Client) Timeline(ctx context.Context, username string, limit int) iter.Seq2[Node, error] {
	return func(yield func(Node, error) bool) {
		user, err := c.FetchProfile(ctx, username)
		if err != nil {
			yield(Node{}, err)
			return
		}
		if user.IsPrivate && len(user.Timeline.Edges) == 0 {
			yield(Node{}, errs.New(errs.KindNotFound, "profile is private: "+username))
			return
		}

		page := &user.Timeline
		seen := 0
		for {
			for _, e := range page.Edges {
				if limit > 0 && seen >= limit {
					return
				}
				seen++
				if !yield(e.Node, nil) {
					return
				}
			}
			if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
				return
			}
			if limit > 0 && seen >= limit {
				return
			}
			page, err = c.FetchMedia(ctx, user.ID, page.PageInfo.EndCursor, DefaultPageSize)
			if err != nil {
				yield(Node{}, err)
				return
			}
		}
	}
}

// Fetch downloads an image with the session's headers. It satisfies the
// downloader's Fetcher interface.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, url)
}

func preview(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}
