// Package ratelimit provides the request gates used by igevents.
//
// Gate wraps golang.org/x/time/rate to enforce a minimum spacing between
// inference calls. It is constructed once and injected into every analyzer,
// so concurrent pipeline runs share one clock. SlidingWindow caps the number
// of requests in a rolling window and guards the session scraper.
package ratelimit
