package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igevents/pkg/models"
)

func TestRunDir(t *testing.T) {
	day := time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("scraped_data", "2025-01-10", "clubff"), RunDir("scraped_data", day, "clubff"))
}

func TestSaveAndDetectImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "OLD_0.jpg"), []byte("x"), 0o644))

	m, err := NewManager(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, m.DownloadedCount())
	assert.True(t, m.IsDownloaded("OLD_0.jpg"))
	assert.False(t, m.IsDownloaded("ABC_0.jpg"))

	path, err := m.SaveImage(bytes.NewReader([]byte("img")), "ABC_1.jpg")
	require.NoError(t, err)
	_, err = m.SaveImage(bytes.NewReader([]byte("img")), "ABC_0.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ABC_1.jpg"), path)
	assert.True(t, m.IsDownloaded("ABC_1.jpg"))
	assert.NoFileExists(t, path+".tmp")

	assert.Equal(t, []string{filepath.Join(dir, "ABC_0.jpg"), filepath.Join(dir, "ABC_1.jpg")}, m.Images("ABC"))
}

func TestSidecar(t *testing.T) {
	img := filepath.Join(t.TempDir(), "ABC_0.jpg")
	assert.Equal(t, img[:len(img)-4]+"_ocr.txt", SidecarPath(img))

	require.NoError(t, WriteSidecar(img, "LIVE 12.25"))
	data, err := os.ReadFile(SidecarPath(img))
	require.NoError(t, err)
	assert.Equal(t, "LIVE 12.25", string(data))
}

func TestMetadataRoundTrip(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	taken := time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC)
	post := models.Post{
		Shortcode:  "ABC",
		Caption:    "DJ NIGHT",
		Date:       &taken,
		PostURL:    models.PostURL("ABC"),
		ImagePaths: []string{m.Path("ABC_0.jpg")},
	}
	require.NoError(t, m.WriteMetadata("clubff", "apify", post))

	meta, err := m.ReadMetadata("ABC")
	require.NoError(t, err)
	assert.Equal(t, "clubff", meta.Username)
	assert.Equal(t, "apify", meta.Tier)
	assert.Equal(t, []string{"ABC_0.jpg"}, meta.Images)
	assert.True(t, taken.Equal(*meta.TakenAt))
}

func TestIsImage(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPEG", "a.png", "a.heic", "a.webp"} {
		assert.True(t, IsImage(name), name)
	}
	assert.False(t, IsImage("a_ocr.txt"))
	assert.False(t, IsImage("a.mp4"))
}
