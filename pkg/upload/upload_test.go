package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igevents/pkg/config"
	"igevents/pkg/logger"
)

type fakeObjects struct {
	err         error
	bucket      string
	object      string
	contentType string
	body        []byte
}

func (f *fakeObjects) Put(_ context.Context, bucket, object, contentType string, r io.Reader) error {
	if f.err != nil {
		return f.err
	}
	f.bucket, f.object, f.contentType = bucket, object, contentType
	b, err := io.ReadAll(r)
	f.body = b
	return err
}

func fixture(t *testing.T) (string, config.StorageConfig, []Option) {
	t.Helper()
	dir := t.TempDir()
	img := filepath.Join(dir, "ABC_1 (copy).png")
	require.NoError(t, os.WriteFile(img, []byte("png-bytes"), 0644))
	cfg := config.StorageConfig{
		Bucket:         "events-bucket",
		Folder:         "ai-post-img",
		UserID:         "bot",
		LocalDirectory: filepath.Join(dir, "static", "uploads"),
	}
	opts := []Option{
		WithClock(func() time.Time { return time.UnixMilli(1735000000000) }),
		WithIDFunc(func() string { return "deadbeef" }),
	}
	return img, cfg, opts
}

func TestUploadToBucket(t *testing.T) {
	img, cfg, opts := fixture(t)
	objects := &fakeObjects{}
	u := New(objects, cfg, logger.NewTestLogger(), opts...)

	url, ok := u.Upload(context.Background(), img)
	require.True(t, ok)
	assert.Equal(t, "ai-post-img/bot/1735000000000-deadbeef-ABC_1copy.png", objects.object)
	assert.Equal(t, "https://storage.googleapis.com/events-bucket/"+objects.object, url)
	assert.Equal(t, "image/png", objects.contentType)
	assert.Equal(t, "png-bytes", string(objects.body))
}

func TestUploadFallsBackToLocalCopy(t *testing.T) {
	img, cfg, opts := fixture(t)
	u := New(&fakeObjects{err: errors.New("403")}, cfg, logger.NewTestLogger(), opts...)

	url, ok := u.Upload(context.Background(), img)
	require.True(t, ok)
	assert.Contains(t, url, "/static/uploads/1735000000000-deadbeef-ABC_1copy.png")

	data, err := os.ReadFile(filepath.Join(cfg.LocalDirectory, "1735000000000-deadbeef-ABC_1copy.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestUploadWithoutBucketClient(t *testing.T) {
	img, cfg, opts := fixture(t)
	u := New(nil, cfg, logger.NewTestLogger(), opts...)
	url, ok := u.Upload(context.Background(), img)
	require.True(t, ok)
	assert.NotContains(t, url, "storage.googleapis.com")
}

func TestUploadMissingFile(t *testing.T) {
	_, cfg, opts := fixture(t)
	u := New(&fakeObjects{}, cfg, logger.NewTestLogger(), opts...)
	_, ok := u.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	assert.False(t, ok)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("a.JPG"))
	assert.Equal(t, "image/jpeg", ContentType("a.heic"))
	assert.Equal(t, "image/png", ContentType("a.png"))
	assert.Equal(t, "image/webp", ContentType("a.webp"))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "poster_1.jpg", SanitizeName("poster_1.jpg"))
	assert.Equal(t, "a-b.jpg", SanitizeName("a -b.jpg"))
	assert.Equal(t, "poster.jpg", SanitizeName("포스터poster.jpg"))
}
