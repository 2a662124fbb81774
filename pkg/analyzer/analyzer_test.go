package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"igevents/pkg/textparse"
)

func TestRegexAnalyzer(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	a := NewRegexAnalyzer(&textparse.Parser{Now: func() time.Time { return now }})

	assert.Empty(t, a.ExtractText(context.Background(), "poster.jpg"))

	got := a.ParseInfo(context.Background(), "DJ NIGHT 12.25 @ Club X")
	assert.Equal(t, []string{"2024-12-25"}, got.Dates)
	assert.Equal(t, "Club X", got.Venue)
}
