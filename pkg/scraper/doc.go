// Package scraper fetches recent posts for an Instagram account through
// tiered backends.
//
// Tier 1 is the cloud backend (an Apify actor). It sits behind a shared
// circuit breaker: three consecutive failures skip it for ten minutes. When
// it is skipped or fails, the manager pauses for a random 5-10 seconds and
// falls back to Tier 2, the session backend, which reads Instagram's web API
// with the browser session stored by pkg/auth.
//
// Both backends download still images into the run directory as
// {shortcode}_{index}.jpg and yield posts lazily:
//
//	m := scraper.NewManager(cloud, session, breaker)
//	res := m.FetchPosts(ctx, scraper.FetchRequest{Username: "club_ff", Limit: 10, OutputDir: dir})
//	posts, err := res.Unwrap()
package scraper
