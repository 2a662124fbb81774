package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"igevents/pkg/logger"
	"igevents/pkg/models"
)

// Postgres implements Gateway on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

func NewPostgres(pool *pgxpool.Pool, log logger.Logger) *Postgres {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Postgres{pool: pool, log: log.WithField("store", "postgres")}
}

const upsertPostSQL = `
INSERT INTO scraped_posts (
    shortcode, source_username, caption, posted_at, post_url, is_video, image_paths,
    event_name, venue, event_dates, artists, event_time, country, location
) VALUES (
    $1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7::jsonb,
    NULLIF($8, ''), NULLIF($9, ''), $10::jsonb, $11, NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, '')
)
ON CONFLICT (shortcode) DO UPDATE SET
    source_username = COALESCE(NULLIF(EXCLUDED.source_username, ''), scraped_posts.source_username),
    caption         = COALESCE(EXCLUDED.caption, scraped_posts.caption),
    posted_at       = COALESCE(EXCLUDED.posted_at, scraped_posts.posted_at),
    post_url        = COALESCE(EXCLUDED.post_url, scraped_posts.post_url),
    is_video        = scraped_posts.is_video OR EXCLUDED.is_video,
    image_paths     = CASE WHEN jsonb_array_length(EXCLUDED.image_paths) > 0
                           THEN EXCLUDED.image_paths ELSE scraped_posts.image_paths END,
    event_name      = COALESCE(EXCLUDED.event_name, scraped_posts.event_name),
    venue           = COALESCE(EXCLUDED.venue, scraped_posts.venue),
    event_dates     = COALESCE(EXCLUDED.event_dates, scraped_posts.event_dates),
    artists         = COALESCE(EXCLUDED.artists, scraped_posts.artists),
    event_time      = COALESCE(EXCLUDED.event_time, scraped_posts.event_time),
    country         = COALESCE(EXCLUDED.country, scraped_posts.country),
    location        = COALESCE(EXCLUDED.location, scraped_posts.location),
    updated_at      = now()
RETURNING id`

func (p *Postgres) UpsertScrapedPost(ctx context.Context, username string, post models.Post, analysis *models.PostAnalysis) (int64, error) {
	if post.Shortcode == "" {
		return 0, ErrEmptyShortcode
	}
	images, err := json.Marshal(nonNil(post.ImagePaths))
	if err != nil {
		return 0, fmt.Errorf("encode image paths: %w", err)
	}

	var a models.PostAnalysis
	if analysis != nil {
		a = *analysis
	}
	var dates *string
	if len(a.EventDates) > 0 {
		b, err := json.Marshal(a.EventDates)
		if err != nil {
			return 0, fmt.Errorf("encode event dates: %w", err)
		}
		s := string(b)
		dates = &s
	}
	var artists []string
	if len(a.Artists) > 0 {
		artists = a.Artists
	}

	var id int64
	err = p.pool.QueryRow(ctx, upsertPostSQL,
		post.Shortcode, username, post.Caption, post.Date, post.PostURL, post.IsVideo, string(images),
		a.EventName, a.Venue, dates, artists, a.EventTime, a.Country, a.Location,
	).Scan(&id)
	logger.LogPersist("scraped_posts", post.Shortcode, err == nil, err)
	if err != nil {
		return 0, fmt.Errorf("upsert scraped post %s: %w", post.Shortcode, err)
	}
	return id, nil
}

const selectPostSQL = `
SELECT id, shortcode, source_username, COALESCE(caption, ''), posted_at, COALESCE(post_url, ''),
       is_video, image_paths, COALESCE(event_name, ''), COALESCE(venue, ''), event_dates, artists,
       COALESCE(event_time, ''), COALESCE(country, ''), COALESCE(location, ''), created_at, updated_at
FROM scraped_posts`

func scanPost(row pgx.Row) (models.ScrapedPost, error) {
	var (
		sp            models.ScrapedPost
		images, dates []byte
	)
	err := row.Scan(&sp.ID, &sp.Shortcode, &sp.SourceUsername, &sp.Caption, &sp.PostedAt, &sp.PostURL,
		&sp.IsVideo, &images, &sp.EventName, &sp.Venue, &dates, &sp.Artists,
		&sp.EventTime, &sp.Country, &sp.Location, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return sp, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &sp.ImagePaths); err != nil {
			return sp, fmt.Errorf("decode image paths: %w", err)
		}
	}
	if len(dates) > 0 {
		if err := json.Unmarshal(dates, &sp.EventDates); err != nil {
			return sp, fmt.Errorf("decode event dates: %w", err)
		}
	}
	return sp, nil
}

func (p *Postgres) GetScrapedPost(ctx context.Context, shortcode string) (*models.ScrapedPost, error) {
	sp, err := scanPost(p.pool.QueryRow(ctx, selectPostSQL+` WHERE shortcode = $1`, shortcode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scraped post %s: %w", shortcode, err)
	}
	return &sp, nil
}

// ListScrapedPosts returns every post of username, newest first. An empty
// username lists all posts.
func (p *Postgres) ListScrapedPosts(ctx context.Context, username string) ([]models.ScrapedPost, error) {
	rows, err := p.pool.Query(ctx,
		selectPostSQL+` WHERE $1 = '' OR source_username = $1 ORDER BY posted_at DESC NULLS LAST, id DESC`,
		username)
	if err != nil {
		return nil, fmt.Errorf("list scraped posts: %w", err)
	}
	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ScrapedPost, error) {
		return scanPost(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list scraped posts: %w", err)
	}
	return posts, nil
}

func (p *Postgres) ClearScrapedPosts(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM scraped_posts`)
	if err != nil {
		return 0, fmt.Errorf("clear scraped posts: %w", err)
	}
	p.log.WithField("rows", tag.RowsAffected()).Info("Cleared scraped posts")
	return tag.RowsAffected(), nil
}

const insertEventSQL = `
INSERT INTO events (
    event_name, venue_id, venue_name, event_date, event_time, event_datetime, location, country,
    content, image_url, artists, source_shortcode, instagram_link, is_draft,
    latitude, longitude, formatted_address, place_id
) VALUES (
    $1, $2, $3, $4::date, $5, $6, NULLIF($7, ''), $8,
    $9, NULLIF($10, ''), $11, NULLIF($12, ''), NULLIF($13, ''), $14,
    $15, $16, NULLIF($17, ''), NULLIF($18, '')
)
ON CONFLICT (venue_name, event_name, event_date) DO NOTHING
RETURNING id`

func (p *Postgres) SaveEvent(ctx context.Context, ev models.Event) (bool, error) {
	if err := validateEvent(&ev); err != nil {
		return false, err
	}
	var venueID *int64
	if ev.VenueID > 0 {
		venueID = &ev.VenueID
	}
	var start *time.Time
	if !ev.EventDatetime.IsZero() {
		start = &ev.EventDatetime
	}

	var id int64
	err := p.pool.QueryRow(ctx, insertEventSQL,
		ev.EventName, venueID, ev.VenueName, ev.EventDate, ev.EventTime, start, ev.Location, ev.Country,
		ev.Content, ev.ImageURL, nilIfEmpty(ev.Artists), ev.SourceShortcode, ev.InstagramLink, ev.IsDraft,
		ev.Latitude, ev.Longitude, ev.FormattedAddress, ev.PlaceID,
	).Scan(&id)
	key := eventKey(ev)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.LogPersist("events", key, false, nil)
		return false, nil
	}
	logger.LogPersist("events", key, err == nil, err)
	if err != nil {
		return false, fmt.Errorf("save event %q on %s: %w", ev.EventName, ev.EventDate, err)
	}
	return true, nil
}

func (p *Postgres) FindVenueByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `SELECT id FROM venues WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find venue %q: %w", name, err)
	}
	return id, true, nil
}

func (p *Postgres) CreateVenue(ctx context.Context, name string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
INSERT INTO venues (name, status) VALUES ($1, 'active')
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create venue %q: %w", name, err)
	}
	return id, nil
}

func (p *Postgres) ListKnownVenueNames(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT name FROM venues WHERE status = 'active' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	return names, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
