package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDateDeduplicates(t *testing.T) {
	var e Extraction
	e.AddDate("2024-12-25")
	e.AddDate("")
	e.AddDate("2025-01-02")
	e.AddDate("2024-12-25")
	assert.Equal(t, []string{"2024-12-25", "2025-01-02"}, e.Dates)
}

func TestPostURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/p/C1x2y3/", PostURL("C1x2y3"))
}

func TestEventStart(t *testing.T) {
	got, err := EventStart("2024-12-25", "21:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 25, 21, 30, 0, 0, time.UTC), got)

	got, err = EventStart("2024-12-25", "9pm", nil)
	require.NoError(t, err)
	assert.Equal(t, 19, got.Hour())

	_, err = EventStart("12/25", "", time.UTC)
	assert.Error(t, err)
}
