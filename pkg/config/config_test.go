package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Inference.MinInterval != time.Second {
		t.Errorf("Expected default inference interval to be 1s, got %v", config.Inference.MinInterval)
	}
	if config.Breaker.FailThreshold != 3 {
		t.Errorf("Expected default breaker threshold to be 3, got %d", config.Breaker.FailThreshold)
	}
	if config.Breaker.Cooldown != 10*time.Minute {
		t.Errorf("Expected default breaker cooldown to be 10m, got %v", config.Breaker.Cooldown)
	}
	if config.Pipeline.FallbackDelayMin != 5*time.Second || config.Pipeline.FallbackDelayMax != 10*time.Second {
		t.Errorf("Expected fallback delay 5s-10s, got %v-%v", config.Pipeline.FallbackDelayMin, config.Pipeline.FallbackDelayMax)
	}
	if config.Pipeline.OCRAttempts != 2 {
		t.Errorf("Expected 2 OCR attempts, got %d", config.Pipeline.OCRAttempts)
	}
	if config.Inference.MaxChars != 3000 {
		t.Errorf("Expected max chars 3000, got %d", config.Inference.MaxChars)
	}

	require.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APIFY_TOKEN", "apify-token")
	t.Setenv("MISTRAL_API_KEY", "mistral-key")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("IGEVENTS_OUTPUT_DIR", "/tmp/scraped")
	t.Setenv("IGEVENTS_DEFAULT_LIMIT", "7")
	t.Setenv("IGEVENTS_AUTO_SAVE", "false")
	t.Setenv("GOOGLE_CLOUD_BUCKET_NAME", "bucket-x")
	t.Setenv("IGEVENTS_NOTIFICATIONS_ENABLED", "false")
	t.Setenv("IGEVENTS_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "apify-token", config.Apify.Token)
	assert.Equal(t, "mistral-key", config.Inference.APIKey)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", config.Database.PostgresDSN)
	assert.Equal(t, "/tmp/scraped", config.Pipeline.BaseDirectory)
	assert.Equal(t, 7, config.Pipeline.DefaultLimit)
	assert.False(t, config.Pipeline.AutoSave)
	assert.Equal(t, "bucket-x", config.Storage.Bucket)
	assert.False(t, config.Notifications.Enabled)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvPrefixedNameWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://generic")
	t.Setenv("IGEVENTS_POSTGRES_DSN", "postgres://specific")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())
	assert.Equal(t, "postgres://specific", config.Database.PostgresDSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:      "unknown provider",
			mutate:    func(c *Config) { c.Inference.Provider = "openai" },
			wantError: "invalid inference provider",
		},
		{
			name:      "zero breaker threshold",
			mutate:    func(c *Config) { c.Breaker.FailThreshold = 0 },
			wantError: "breaker fail threshold",
		},
		{
			name: "inverted fallback delay",
			mutate: func(c *Config) {
				c.Pipeline.FallbackDelayMin = 10 * time.Second
				c.Pipeline.FallbackDelayMax = 5 * time.Second
			},
			wantError: "fallback delay range",
		},
		{
			name:      "mysql without dsn",
			mutate:    func(c *Config) { c.Database.EventsDriver = "mysql" },
			wantError: "mysql dsn is required",
		},
		{
			name:      "redis tasks without address",
			mutate: func(c *Config) {
				c.Tasks.Backend = "redis"
				c.Tasks.RedisAddr = ""
			},
			wantError: "redis address is required",
		},
		{
			name:      "too many concurrent downloads",
			mutate:    func(c *Config) { c.Download.ConcurrentDownloads = 20 },
			wantError: "should not exceed 10",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Logging.Level = "trace" },
			wantError: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestLoadFromFileAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `
breaker:
  fail_threshold: 5
  cooldown: 2m
pipeline:
  base_directory: ./out
  default_limit: 12
  auto_save: false
inference:
  provider: regex
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	c := DefaultConfig()
	require.NoError(t, c.LoadFromFile(path))
	assert.Equal(t, 5, c.Breaker.FailThreshold)
	assert.Equal(t, 2*time.Minute, c.Breaker.Cooldown)
	assert.Equal(t, "./out", c.Pipeline.BaseDirectory)
	assert.Equal(t, 12, c.Pipeline.DefaultLimit)
	assert.False(t, c.Pipeline.AutoSave)
	assert.Equal(t, "regex", c.Inference.Provider)
	// untouched keys keep defaults
	assert.Equal(t, 2, c.Pipeline.OCRAttempts)

	saved := filepath.Join(dir, "nested", "saved.yaml")
	require.NoError(t, c.Save(saved))

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(saved))
	assert.Equal(t, c.Breaker, reloaded.Breaker)
	assert.Equal(t, c.Pipeline, reloaded.Pipeline)
}

func TestLoadFromFileMissing(t *testing.T) {
	c := DefaultConfig()
	err := c.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMergeCommandLineFlags(t *testing.T) {
	c := DefaultConfig()
	c.MergeCommandLineFlags(map[string]interface{}{
		"output":    "/data",
		"limit":     9,
		"auto-save": false,
		"provider":  "regex",
		"addr":      ":9090",
		"log-level": "warn",
	})

	assert.Equal(t, "/data", c.Pipeline.BaseDirectory)
	assert.Equal(t, 9, c.Pipeline.DefaultLimit)
	assert.False(t, c.Pipeline.AutoSave)
	assert.Equal(t, "regex", c.Inference.Provider)
	assert.Equal(t, ":9090", c.Server.Address)
	assert.Equal(t, "warn", c.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  default_limit: 4\nlogging:\n  level: warn\n"), 0644))

	t.Setenv("IGEVENTS_LOG_LEVEL", "error")

	c, err := Load(path, map[string]interface{}{"limit": 8})
	require.NoError(t, err)
	assert.Equal(t, 8, c.Pipeline.DefaultLimit)
	assert.Equal(t, "error", c.Logging.Level)
}
