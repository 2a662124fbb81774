package textparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parserAt(y int, m time.Month, d int) *Parser {
	now := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	return &Parser{Now: func() time.Time { return now }}
}

func TestEmptyText(t *testing.T) {
	got := parserAt(2025, 1, 10).Parse("")
	assert.False(t, got.IsEventPoster)
	assert.Empty(t, got.Dates)
	assert.Empty(t, got.Venue)
	assert.Empty(t, got.Artist)
	assert.Empty(t, got.Title)
	assert.Equal(t, "KR", got.Country)
}

func TestClubNightAcrossYearBoundary(t *testing.T) {
	got := parserAt(2025, 1, 10).Parse("DJ NIGHT 12.25 @ Club X")
	assert.True(t, got.IsEventPoster)
	assert.Equal(t, []string{"2024-12-25"}, got.Dates)
	assert.Equal(t, "Club X", got.Venue)
	assert.Equal(t, "DJ NIGHT 12.25 @ Club X", got.Title)
}

func TestHandleIsNotVenue(t *testing.T) {
	got := parserAt(2025, 6, 1).Parse("thanks @clubff for tonight")
	assert.Empty(t, got.Venue)
}

func TestDatePasses(t *testing.T) {
	p := parserAt(2025, 11, 20)
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"explicit dotted", "2025.3.7 SAT", []string{"2025-03-07"}},
		{"explicit dashed keeps year", "2024-12-31", []string{"2024-12-31"}},
		{"bare slash next year", "open 1/18", []string{"2026-01-18"}},
		{"bare inside explicit is ignored", "2025.12.05", []string{"2025-12-05"}},
		{"korean", "12월 6일 토요일", []string{"2025-12-06"}},
		{"korean spaced", "1월20일", []string{"2026-01-20"}},
		{"misread slash", "12125 SAT", []string{"2025-12-25"}},
		{"misread slash short", "3105", []string{"2026-03-05"}},
		{"out of range", "13/40 and 0.5", nil},
		{"adjacent digit rejects", "112/25", nil},
		{"no such day slash", "SHOW 2/30", nil},
		{"no such day explicit", "2025.02.31 LIVE", nil},
		{"no such day korean", "2월 30일 공연", nil},
		{"leap day explicit", "2024.2.29", []string{"2024-02-29"}},
		{"dedupe keeps order", "12/6 and 12월 6일 and 1/2", []string{"2025-12-06", "2026-01-02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.text)
			if tt.want == nil {
				assert.Empty(t, got.Dates)
				return
			}
			assert.Equal(t, tt.want, got.Dates)
		})
	}
}

func TestVenueBulletBlock(t *testing.T) {
	text := "SUMMER LIVE\nVENUE\n• 会場 ‣ Shibuya WWW\n- ADV 3000 JPY\n- Tokyo\n「TICKETS」\n- after block"
	got := parserAt(2025, 6, 1).Parse(text)
	assert.Equal(t, "Shibuya WWW, Tokyo", got.Venue)
}

func TestVenueBulletColon(t *testing.T) {
	text := "Location\n- Hall: Rolling Hall"
	got := parserAt(2025, 6, 1).Parse(text)
	assert.Equal(t, "Rolling Hall", got.Venue)
}

func TestVenueSingleLine(t *testing.T) {
	got := parserAt(2025, 6, 1).Parse("Night Out\nVenue: Club Soap\nArtist: Jiwoo")
	assert.Equal(t, "Club Soap", got.Venue)
	assert.Equal(t, "Jiwoo", got.Artist)
	assert.True(t, got.IsEventPoster)
}

func TestKeywordOnlyIsEvent(t *testing.T) {
	got := parserAt(2025, 6, 1).Parse("티켓 오픈 소식")
	assert.True(t, got.IsEventPoster)
	assert.Empty(t, got.Dates)

	plain := parserAt(2025, 6, 1).Parse("맛있는 점심")
	assert.False(t, plain.IsEventPoster)
}

func TestNFKCNormalisation(t *testing.T) {
	// full-width digits and slash
	got := parserAt(2025, 6, 1).Parse("ＬＩＶＥ ７／１２")
	require.NotEmpty(t, got.Dates)
	assert.Equal(t, "2025-07-12", got.Dates[0])
	assert.Equal(t, "LIVE 7/12", got.RawText)
}
