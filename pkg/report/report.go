// Package report writes the per-run results file that reviewers open after a
// scrape: one CSV row per analysed post.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"igevents/pkg/logger"
)

// utf8BOM lets spreadsheet tools detect the encoding of Korean captions.
const utf8BOM = "\ufeff"

// Header is the column order of the results file.
var Header = []string{
	"filename", "image_path", "dates_found", "inferred_venue", "inferred_location",
	"inferred_artist", "caption", "event_name", "shortcode", "post_date",
	"db_status", "is_event_poster",
}

// Row is one analysed post.
type Row struct {
	Filename      string
	ImagePath     string
	Dates         []string
	Venue         string
	Location      string
	Artist        string
	Caption       string
	EventName     string
	Shortcode     string
	PostDate      *time.Time
	Status        string
	IsEventPoster bool
}

func (r Row) record() []string {
	posted := ""
	if r.PostDate != nil {
		posted = r.PostDate.Format(time.RFC3339)
	}
	return []string{
		r.Filename, r.ImagePath, strings.Join(r.Dates, ";"), r.Venue, r.Location,
		r.Artist, r.Caption, r.EventName, r.Shortcode, posted,
		r.Status, strconv.FormatBool(r.IsEventPoster),
	}
}

// ResultsPath is "{base}/{YYYY-MM-DD}/{username}_results.csv".
func ResultsPath(base string, day time.Time, username string) string {
	return filepath.Join(base, day.Format(time.DateOnly), username+"_results.csv")
}

// Encode writes rows as CSV to w.
func Encode(w io.Writer, rows []Row) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResults replaces path with the CSV of rows. The file is written to a
// temporary sibling and renamed into place.
func WriteResults(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary results file: %w", err)
	}
	if err := Encode(file, rows); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync results file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close results file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace results file: %w", err)
	}

	logger.GetLogger().DebugWithFields("Results written", map[string]any{
		"path": path,
		"rows": len(rows),
	})
	return nil
}

// ReadResults loads a results file back into rows.
func ReadResults(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), utf8BOM)))
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(Header) {
			return nil, fmt.Errorf("results row has %d columns, want %d", len(rec), len(Header))
		}
		row := Row{
			Filename:  rec[0],
			ImagePath: rec[1],
			Venue:     rec[3],
			Location:  rec[4],
			Artist:    rec[5],
			Caption:   rec[6],
			EventName: rec[7],
			Shortcode: rec[8],
			Status:    rec[10],
		}
		if rec[2] != "" {
			row.Dates = strings.Split(rec[2], ";")
		}
		if rec[9] != "" {
			if t, err := time.Parse(time.RFC3339, rec[9]); err == nil {
				row.PostDate = &t
			}
		}
		row.IsEventPoster, _ = strconv.ParseBool(rec[11])
		rows = append(rows, row)
	}
	return rows, nil
}
