package pipeline

import (
	"time"

	"igevents/pkg/report"
)

// PostDetail describes what happened to one analysed post.
type PostDetail struct {
	Shortcode     string     `json:"shortcode"`
	Filename      string     `json:"filename"`
	ImagePath     string     `json:"image_path"`
	Dates         []string   `json:"dates_found"`
	Venue         string     `json:"inferred_venue"`
	Location      string     `json:"inferred_location"`
	Artist        string     `json:"inferred_artist"`
	Caption       string     `json:"caption"`
	EventName     string     `json:"event_name"`
	PostDate      *time.Time `json:"post_date,omitempty"`
	Status        Status     `json:"db_status"`
	IsEventPoster bool       `json:"is_event_poster"`
	EventsSaved   int        `json:"events_saved"`
}

// Stats holds run timings in seconds.
type Stats struct {
	TotalPosts       int     `json:"total_posts"`
	TotalScrapeSec   float64 `json:"total_scrape_sec"`
	AvgScrapeSec     float64 `json:"avg_scrape_sec"`
	TotalAnalysisSec float64 `json:"total_analysis_sec"`
	AvgAnalysisSec   float64 `json:"avg_analysis_sec"`
}

// Result is returned by RunFullScrapeProcess.
type Result struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message,omitempty"`
	Username     string       `json:"username"`
	ScrapedCount int          `json:"scraped_count"`
	SavedCount   int          `json:"saved_count"`
	SkipCount    int          `json:"skip_count"`
	Cancelled    bool         `json:"cancelled"`
	CSVPath      string       `json:"csv_path,omitempty"`
	Details      []PostDetail `json:"details"`
	Stats        Stats        `json:"stats"`
}

func reportRows(details []PostDetail) []report.Row {
	rows := make([]report.Row, 0, len(details))
	for _, d := range details {
		rows = append(rows, report.Row{
			Filename:      d.Filename,
			ImagePath:     d.ImagePath,
			Dates:         d.Dates,
			Venue:         d.Venue,
			Location:      d.Location,
			Artist:        d.Artist,
			Caption:       d.Caption,
			EventName:     d.EventName,
			Shortcode:     d.Shortcode,
			PostDate:      d.PostDate,
			Status:        string(d.Status),
			IsEventPoster: d.IsEventPoster,
		})
	}
	return rows
}

func seconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}

func average(d time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return d / time.Duration(n)
}
