package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"igevents/pkg/models"
)

// ImageExtensions are the file types the pipeline sends to OCR.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".webp": true,
}

// Manager owns one run directory: downloaded images, OCR sidecars and
// per-post metadata. It is safe for concurrent use by download workers.
type Manager struct {
	outputDir  string
	downloaded map[string]bool
	mu         sync.RWMutex
}

// RunDir returns {base}/{YYYY-MM-DD}/{username} for the given day.
func RunDir(base string, day time.Time, username string) string {
	return filepath.Join(base, day.Format(time.DateOnly), username)
}

// NewManager creates the directory and indexes the images already in it.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	m := &Manager{outputDir: outputDir, downloaded: make(map[string]bool)}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && IsImage(e.Name()) {
			m.downloaded[e.Name()] = true
		}
	}
	return nil
}

func (m *Manager) Dir() string { return m.outputDir }

// Path returns the absolute location of a file name inside the run directory.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.outputDir, name)
}

// IsDownloaded reports whether name is already on disk.
func (m *Manager) IsDownloaded(name string) bool {
	m.mu.RLock()
	known := m.downloaded[name]
	m.mu.RUnlock()
	if known {
		return true
	}
	if _, err := os.Stat(m.Path(name)); err == nil {
		m.mu.Lock()
		m.downloaded[name] = true
		m.mu.Unlock()
		return true
	}
	return false
}

// SaveImage writes r to name through a temporary file and rename.
func (m *Manager) SaveImage(r io.Reader, name string) (string, error) {
	path := m.Path(name)
	if err := writeAtomic(path, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.downloaded[name] = true
	m.mu.Unlock()
	return path, nil
}

// Images lists the image files belonging to shortcode in index order.
func (m *Manager) Images(shortcode string) []string {
	matches, _ := filepath.Glob(filepath.Join(m.outputDir, shortcode+"_*"))
	var out []string
	for _, p := range matches {
		if IsImage(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// SidecarPath returns the OCR text file next to an image.
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + "_ocr.txt"
}

// WriteSidecar stores OCR output beside the image it came from.
func WriteSidecar(imagePath, text string) error {
	return writeAtomic(SidecarPath(imagePath), strings.NewReader(text))
}

// PostMetadata is written as {shortcode}.json for every scraped post.
type PostMetadata struct {
	Shortcode    string     `json:"shortcode"`
	Username     string     `json:"username"`
	Caption      string     `json:"caption,omitempty"`
	PostURL      string     `json:"post_url"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
	IsVideo      bool       `json:"is_video"`
	Images       []string   `json:"images"`
	Tier         string     `json:"tier"`
	DownloadedAt time.Time  `json:"downloaded_at"`
}

// WriteMetadata records where a post came from and which files belong to it.
func (m *Manager) WriteMetadata(username, tier string, post models.Post) error {
	images := make([]string, 0, len(post.ImagePaths))
	for _, p := range post.ImagePaths {
		images = append(images, filepath.Base(p))
	}
	meta := PostMetadata{
		Shortcode:    post.Shortcode,
		Username:     username,
		Caption:      post.Caption,
		PostURL:      post.PostURL,
		TakenAt:      post.Date,
		IsVideo:      post.IsVideo,
		Images:       images,
		Tier:         tier,
		DownloadedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return writeAtomic(m.Path(post.Shortcode+".json"), strings.NewReader(string(data)))
}

// ReadMetadata loads a previously written metadata file.
func (m *Manager) ReadMetadata(shortcode string) (*PostMetadata, error) {
	data, err := os.ReadFile(m.Path(shortcode + ".json"))
	if err != nil {
		return nil, err
	}
	var meta PostMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.downloaded)
}

// IsImage reports whether path has one of ImageExtensions.
func IsImage(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

func writeAtomic(path string, r io.Reader) error {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	_, err = io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
