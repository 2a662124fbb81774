package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteLoginGuide prints how to copy the sessionid and csrftoken cookies
// out of a logged-in browser for 'igevents auth login'.
func WriteLoginGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"INSTAGRAM SESSION SETUP",
		rule,
		"",
		"The session scraper tier reads public profiles through your own",
		"logged-in browser session. It is only used when the cloud tier is",
		"unavailable or its circuit breaker is open.",
		"",
		"1. Log in at https://www.instagram.com in a desktop browser.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on macOS).",
		"3. Application (Chrome) or Storage (Firefox) > Cookies > https://www.instagram.com",
		"4. Copy the values of:",
		"     sessionid   long value containing %3A",
		"     csrftoken   32 character token",
		"5. Optionally copy your browser's User-Agent from any request header.",
		"",
		"Sessions are stored in the system keychain when available, otherwise in",
		"an encrypted file under the igevents config directory. For CI, set",
		"IGEVENTS_SESSION_ID and IGEVENTS_CSRF_TOKEN instead.",
		"",
		"Never share these values: they grant full access to the account.",
		rule,
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
