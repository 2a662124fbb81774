// Package retry runs operations with bounded attempts and pluggable backoff.
//
// The pipeline uses it for per-image OCR attempts (constant one second
// pause), image downloads (exponential backoff) and the jittered pause
// before the scraper manager falls back to the session tier.
package retry
