// Package upload hosts poster images for saved events. Images go to a Google
// Cloud Storage bucket; when that is unavailable they are copied into a
// local static directory instead.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"igevents/pkg/config"
	"igevents/pkg/logger"
)

// ObjectWriter stores one object in a bucket.
type ObjectWriter interface {
	Put(ctx context.Context, bucket, object, contentType string, r io.Reader) error
}

// Uploader publishes a local image and returns its URL.
type Uploader struct {
	objects  ObjectWriter
	bucket   string
	folder   string
	userID   string
	localDir string
	now      func() time.Time
	newID    func() string
	log      logger.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithClock overrides the time source used in object names.
func WithClock(clock func() time.Time) Option {
	return func(u *Uploader) {
		if clock != nil {
			u.now = clock
		}
	}
}

// WithIDFunc overrides the random suffix used in object names.
func WithIDFunc(f func() string) Option {
	return func(u *Uploader) {
		if f != nil {
			u.newID = f
		}
	}
}

// New builds an Uploader. objects may be nil, in which case every upload
// goes to the local directory.
func New(objects ObjectWriter, cfg config.StorageConfig, log logger.Logger, opts ...Option) *Uploader {
	if log == nil {
		log = logger.GetLogger()
	}
	u := &Uploader{
		objects:  objects,
		bucket:   cfg.Bucket,
		folder:   cfg.Folder,
		userID:   cfg.UserID,
		localDir: cfg.LocalDirectory,
		now:      time.Now,
		newID:    func() string { return uuid.NewString()[:8] },
		log:      log.WithField("component", "uploader"),
	}
	if u.localDir == "" {
		u.localDir = filepath.Join("static", "uploads")
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ObjectName builds "{folder}/{userID}/{unixMillis}-{id}-{sanitized base name}".
func (u *Uploader) ObjectName(localPath string) string {
	name := fmt.Sprintf("%d-%s-%s", u.now().UnixMilli(), u.newID(), SanitizeName(filepath.Base(localPath)))
	return path.Join(u.folder, u.userID, name)
}

// Upload publishes localPath. The second result is false when the file is
// missing or neither the bucket nor the local copy worked.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, bool) {
	if _, err := os.Stat(localPath); err != nil {
		u.log.WithField("path", localPath).Warn("Image to upload not found")
		return "", false
	}

	object := u.ObjectName(localPath)
	if u.objects != nil && u.bucket != "" {
		err := u.put(ctx, object, localPath)
		if err == nil {
			publicURL := PublicURL(u.bucket, object)
			u.log.WithFields(map[string]any{"object": object, "url": publicURL}).Info("Uploaded image")
			return publicURL, true
		}
		u.log.WithError(err).WithField("object", object).Warn("Bucket upload failed, copying locally")
	}

	local, err := u.copyLocal(localPath, path.Base(object))
	if err != nil {
		u.log.WithError(err).WithField("path", localPath).Error("Local image copy failed")
		return "", false
	}
	return local, true
}

func (u *Uploader) put(ctx context.Context, object, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return u.objects.Put(ctx, u.bucket, object, ContentType(localPath), f)
}

func (u *Uploader) copyLocal(src, name string) (string, error) {
	if err := os.MkdirAll(u.localDir, 0755); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(u.localDir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path.Join("/", filepath.ToSlash(u.localDir), name), nil
}

// PublicURL is the anonymous-read URL of an object.
func PublicURL(bucket, object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object)
}

// ContentType picks the MIME type from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// SanitizeName keeps letters, digits, '.', '-' and '_'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GCS is an ObjectWriter over a Cloud Storage client.
type GCS struct {
	client *storage.Client
}

// NewGCS connects to Cloud Storage with the credentials file from cfg, or
// application default credentials when none is set.
func NewGCS(ctx context.Context, cfg config.StorageConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) Put(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}

func (g *GCS) Close() error { return g.client.Close() }
