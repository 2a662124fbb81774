// Package geocode resolves venue names and street addresses to coordinates
// through the Google Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"igevents/pkg/config"
	errs "igevents/pkg/errors"
	"igevents/pkg/logger"
)

const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Location is a geocoded place.
type Location struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	PlaceID          string
	PartialMatch     bool
}

// Geocoder is the lookup the pipeline depends on.
type Geocoder interface {
	Geocode(ctx context.Context, location, venue string) (Location, bool)
}

type response struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		PartialMatch     bool   `json:"partial_match"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Client is a Geocoder backed by the Google Geocoding HTTP API.
type Client struct {
	apiKey      string
	baseURL     string
	defaultCity string
	http        *http.Client
	log         logger.Logger
}

// New returns nil when cfg carries no API key, which callers treat as
// "geocoding disabled".
func New(cfg config.GeocoderConfig, log logger.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if log == nil {
		log = logger.GetLogger()
	}
	c := &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		defaultCity: cfg.DefaultCity,
		http:        &http.Client{Timeout: cfg.Timeout},
		log:         log.WithField("component", "geocoder"),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.defaultCity == "" {
		c.defaultCity = "Seoul, South Korea"
	}
	if c.http.Timeout <= 0 {
		c.http.Timeout = 10 * time.Second
	}
	return c
}

// Geocode tries the detailed location first, then "{venue}, {default city}".
func (c *Client) Geocode(ctx context.Context, location, venue string) (Location, bool) {
	if c == nil {
		return Location{}, false
	}
	var queries []string
	if s := strings.TrimSpace(location); s != "" {
		queries = append(queries, s)
	}
	if s := strings.TrimSpace(venue); s != "" {
		queries = append(queries, s+", "+c.defaultCity)
	}

	for _, q := range queries {
		loc, err := c.lookup(ctx, q)
		if err == nil {
			if loc.PartialMatch {
				c.log.WithField("query", q).Warn("Geocoder returned a partial match")
			}
			return loc, true
		}
		c.log.WithError(err).WithField("query", q).Debug("Geocode attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return Location{}, false
}

func (c *Client) lookup(ctx context.Context, query string) (Location, error) {
	params := url.Values{
		"address":    {query},
		"region":     {"KR"},
		"language":   {"ko"},
		"components": {"country:KR"},
		"key":        {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, errs.Wrap(errs.KindNetwork, "geocode request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, errs.FromStatus(resp.StatusCode, "geocode request failed")
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, errs.Wrap(errs.KindParsing, "decode geocode response", err)
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Location{}, errs.New(errs.KindNotFound, fmt.Sprintf("no results for %q", query))
	case "OVER_QUERY_LIMIT":
		return Location{}, errs.New(errs.KindRateLimit, "geocoding quota exceeded")
	case "REQUEST_DENIED":
		return Location{}, errs.New(errs.KindAuth, "geocoding request denied: "+body.ErrorMessage)
	default:
		return Location{}, errs.New(errs.KindUnknown, "geocoding status "+body.Status)
	}
	if len(body.Results) == 0 {
		return Location{}, errs.New(errs.KindNotFound, fmt.Sprintf("no results for %q", query))
	}

	r := body.Results[0]
	return Location{
		Latitude:         r.Geometry.Location.Lat,
		Longitude:        r.Geometry.Location.Lng,
		FormattedAddress: r.FormattedAddress,
		PlaceID:          r.PlaceID,
		PartialMatch:     r.PartialMatch,
	}, nil
}
