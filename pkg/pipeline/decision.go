package pipeline

import (
	"net/url"
	"strings"
)

// Status is the per-post outcome written to the results file.
type Status string

const (
	StatusSaved         Status = "Saved"
	StatusDuplicate     Status = "Duplicate"
	StatusReadyToReview Status = "Ready to Review"
	StatusReviewNoDate  Status = "Ready to Review (No Date)"
	StatusNotEvent      Status = "Skipped (Not Event)"
	StatusNoValidData   Status = "Skipped (No Valid Event Data)"
	StatusNoImages      Status = "Skipped (No Images)"
	StatusNoCaption     Status = "Skipped (No Caption)"
	StatusSaveFailed    Status = "Save Failed"
)

// Decision is the outcome of the validity table for one post.
type Decision struct {
	Status Status
	// Save is set when one event per date should be written. Status is
	// then replaced by Saved, Duplicate or Save Failed depending on the
	// writes.
	Save bool
}

// Decide applies the event-validity table. A post is a valid event when it
// has a title, or both a venue and at least one date.
func Decide(isEvent, hasTitle, hasVenue, hasDates, autoSave bool) Decision {
	switch {
	case !isEvent:
		return Decision{Status: StatusNotEvent}
	case !(hasTitle || (hasVenue && hasDates)):
		return Decision{Status: StatusNoValidData}
	case !hasDates:
		return Decision{Status: StatusReviewNoDate}
	case !autoSave || !hasVenue:
		return Decision{Status: StatusReadyToReview}
	}
	return Decision{Status: StatusDuplicate, Save: true}
}

// ExtractUsername accepts "name", "@name" or a profile URL.
func ExtractUsername(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "instagram.com") {
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		if u, err := url.Parse(s); err == nil {
			for _, part := range strings.Split(u.Path, "/") {
				if part != "" {
					s = part
					break
				}
			}
		}
	}
	return strings.TrimSpace(strings.TrimPrefix(s, "@"))
}

// MatchKnownVenue returns the first known venue name that appears in text,
// ignoring case.
func MatchKnownVenue(text string, venues []string) string {
	lower := strings.ToLower(text)
	for _, v := range venues {
		if v != "" && strings.Contains(lower, strings.ToLower(v)) {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
