// Package storage manages the on-disk layout of a scrape run.
//
// Each run writes to {base}/{YYYY-MM-DD}/{username}: images named
// {shortcode}_{index}.jpg, an {image}_ocr.txt sidecar per OCR'd image and a
// {shortcode}.json metadata file per post. Writes go through a temporary
// file and a rename so a crash never leaves a half-written image behind.
package storage
