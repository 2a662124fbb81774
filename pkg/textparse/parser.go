// Package textparse extracts event facts from poster text without any
// network calls. It backs the analyzer when the inference service is
// unavailable and favours recall over precision.
package textparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"igevents/pkg/dates"
	"igevents/pkg/models"
)

var (
	fullDateRe    = regexp.MustCompile(`(202[4-9])[./-](\d{1,2})[./-](\d{1,2})`)
	koreanDateRe  = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일`)
	venueHeaderRe = regexp.MustCompile(`(?i)(?:VENUE|Location|Place|会場).*`)
	venueLineRe   = regexp.MustCompile(`(?i)(?:VENUE|Location|Place)\s*(?:‣|:|\||-)\s*(.*)`)
	bulletRe      = regexp.MustCompile(`^(?:•|‣|-)\s*(.*)`)
	yearLikeRe    = regexp.MustCompile(`\d{4}`)
	artistRe      = regexp.MustCompile(`(?i)(?:ARTIST|Lineup|Band|Cast|출연|出演)\s*(?:‣|:|\||-)\s*(.*)`)
	atVenueRe     = regexp.MustCompile(`(?:^|\s)@\s+([^@\n]+)`)
)

var eventKeywords = []string{
	"공연", "라이브", "파티", "콘서트", "페스티벌", "클럽", "dj", "이벤트",
	"live", "party", "concert", "festival", "gig", "show", "출연",
	"ライブ", "イベント", "入場", "ticket", "티켓", "예매", "adv", "door",
	"line up", "lineup", "guest", "opening", "headliner",
}

// Parser turns raw poster text into an Extraction.
type Parser struct {
	// Now anchors year inference for dates printed without a year.
	Now func() time.Time
}

func New() *Parser {
	return &Parser{Now: time.Now}
}

func (p *Parser) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Parse runs every pass over the NFKC form of text.
func (p *Parser) Parse(text string) models.Extraction {
	text = norm.NFKC.String(text)
	now := p.now()

	info := models.Extraction{
		Country: models.DefaultCountry,
		RawText: text,
		Dates:   []string{},
	}

	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			info.Title = line
			break
		}
	}

	for _, d := range findDates(text, now) {
		info.AddDate(d)
	}
	info.Venue = findVenue(text)
	if m := artistRe.FindStringSubmatch(text); m != nil {
		info.Artist = strings.TrimSpace(m[1])
	}

	info.IsEventPoster = len(info.Dates) > 0 || info.Venue != "" || hasEventKeyword(text)
	return info
}

func findDates(text string, now time.Time) []string {
	var out []string

	full := fullDateRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range full {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		out = append(out, dates.ISO(year, month, day))
	}

	for _, md := range bareMonthDays(text) {
		if insideAny(md.start, full) {
			continue
		}
		if validMonthDay(md.month, md.day) {
			out = append(out, dates.Resolve(md.month, md.day, now))
		}
	}

	for _, m := range koreanDateRe.FindAllStringSubmatch(text, -1) {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if validMonthDay(month, day) {
			out = append(out, dates.Resolve(month, day, now))
		}
	}

	for _, run := range digitRuns(text) {
		month, day, ok := misreadSlash(run)
		if ok && validMonthDay(month, day) {
			out = append(out, dates.Resolve(month, day, now))
		}
	}

	// Month/day ranges alone let through days like Feb 30.
	valid := out[:0]
	for _, d := range out {
		if dates.Valid(d) {
			valid = append(valid, d)
		}
	}
	return valid
}

type monthDay struct {
	start      int
	month, day int
}

// bareMonthDays finds M.D, M/D and M-D where neither number touches another digit.
func bareMonthDays(text string) []monthDay {
	var out []monthDay
	i := 0
	for i < len(text) {
		if !isDigit(text[i]) || (i > 0 && isDigit(text[i-1])) {
			i++
			continue
		}
		mEnd := scanDigits(text, i)
		if mEnd-i > 2 || mEnd >= len(text) || !isSeparator(text[mEnd]) {
			i = mEnd
			continue
		}
		dStart := mEnd + 1
		dEnd := scanDigits(text, dStart)
		if dEnd == dStart || dEnd-dStart > 2 {
			i = mEnd
			continue
		}
		month, _ := strconv.Atoi(text[i:mEnd])
		day, _ := strconv.Atoi(text[dStart:dEnd])
		out = append(out, monthDay{start: i, month: month, day: day})
		i = dEnd
	}
	return out
}

// digitRuns returns every maximal run of ASCII digits.
func digitRuns(text string) []string {
	var runs []string
	for i := 0; i < len(text); {
		if !isDigit(text[i]) {
			i++
			continue
		}
		end := scanDigits(text, i)
		runs = append(runs, text[i:end])
		i = end
	}
	return runs
}

// misreadSlash decodes tokens where OCR read the slash between month and day
// as a "1", such as 12125 for 12/25 or 3105 for 3/05.
func misreadSlash(run string) (int, int, bool) {
	var monthPart string
	switch {
	case len(run) == 4 && run[1] == '1':
		monthPart = run[:1]
	case len(run) == 5 && run[2] == '1':
		monthPart = run[:2]
	default:
		return 0, 0, false
	}
	month, _ := strconv.Atoi(monthPart)
	day, _ := strconv.Atoi(run[len(run)-2:])
	return month, day, true
}

func findVenue(text string) string {
	if loc := venueHeaderRe.FindStringIndex(text); loc != nil {
		var venues []string
		for _, line := range strings.Split(text[loc[1]:], "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			m := bulletRe.FindStringSubmatch(line)
			if m == nil {
				if strings.ContainsAny(line, "「」") {
					break
				}
				continue
			}
			content := strings.TrimSpace(m[1])
			switch {
			case strings.Contains(content, "‣"):
				venues = append(venues, strings.TrimSpace(strings.SplitN(content, "‣", 3)[1]))
			case strings.Contains(content, ":"):
				venues = append(venues, strings.TrimSpace(strings.SplitN(content, ":", 3)[1]))
			case !yearLikeRe.MatchString(content) && !strings.Contains(content, "JPY"):
				venues = append(venues, content)
			}
		}
		if len(venues) > 0 {
			return strings.Join(venues, ", ")
		}
	}

	if m := venueLineRe.FindStringSubmatch(text); m != nil {
		val := strings.TrimSpace(m[1])
		if len([]rune(val)) > 1 && val != "会場" && val != "Location" {
			return val
		}
	}

	if m := atVenueRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func hasEventKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range eventKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func insideAny(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func validMonthDay(month, day int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}

func scanDigits(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

func isDigit(b byte) bool     { return b >= '0' && b <= '9' }
func isSeparator(b byte) bool { return b == '.' || b == '/' || b == '-' }
