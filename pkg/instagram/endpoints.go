package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	BaseURL = "https://www.instagram.com"

	ProfilePath = "/api/v1/users/web_profile_info/"
	MediaPath   = "/graphql/query/"

	// MediaQueryHash selects the owner timeline query on /graphql/query/.
	MediaQueryHash = "e769aa130647d2354c40ea6a439bfc08"

	// AppID is the web client id Instagram expects on API requests.
	AppID = "936619743392459"

	DefaultPageSize = 12
	MaxPageSize     = 50
)

// ProfileURL builds the web profile info URL for username.
func ProfileURL(base, username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s%s?%s", base, ProfilePath, params.Encode())
}

// MediaURL builds one timeline page request. after is the previous end cursor.
func MediaURL(base, userID, after string, first int) string {
	if first <= 0 {
		first = DefaultPageSize
	} else if first > MaxPageSize {
		first = MaxPageSize
	}
	vars := map[string]any{"id": userID, "first": first}
	if after != "" {
		vars["after"] = after
	}
	encoded, _ := json.Marshal(vars)

	params := url.Values{}
	params.Set("query_hash", MediaQueryHash)
	params.Set("variables", string(encoded))
	return fmt.Sprintf("%s%s?%s", base, MediaPath, params.Encode())
}

// IsValidUsername reports whether username uses only letters, digits,
// periods and underscores and fits Instagram's 30 character limit.
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}
	for _, c := range username {
		if !((c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '.' || c == '_') {
			return false
		}
	}
	return true
}

// SanitizeUsername strips a leading @ and trailing slashes or spaces.
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
