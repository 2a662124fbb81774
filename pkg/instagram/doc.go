// Package instagram is a minimal client for Instagram's web endpoints,
// authenticated with a browser session from pkg/auth.
//
// It reads a public profile and pages through the owner timeline:
//
//	c := instagram.NewClient(30*time.Second, session, log)
//	for node, err := range c.Timeline(ctx, "club_ff", 20) {
//		...
//	}
//
// Responses that signal an expired session (401, 403, requires_to_login, or
// an HTML login page in place of JSON) map to errors.ErrLoginRequired.
package instagram
