package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the event collection pipeline
type Config struct {
	// Instagram session tier
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Apify cloud tier
	Apify ApifyConfig `yaml:"apify" json:"apify"`

	// OCR and structured extraction service
	Inference InferenceConfig `yaml:"inference" json:"inference"`

	// Circuit breaker over the cloud tier
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`

	// Pipeline behaviour
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Image downloads
	Download DownloadConfig `yaml:"download" json:"download"`

	// Relational stores
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Image hosting
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Geocoding
	Geocoder GeocoderConfig `yaml:"geocoder" json:"geocoder"`

	// Background task tracking
	Tasks TasksConfig `yaml:"tasks" json:"tasks"`

	// HTTP task API
	Server ServerConfig `yaml:"server" json:"server"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds configuration for the session-based web client
type InstagramConfig struct {
	Account   string        `yaml:"account" json:"account"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// ApifyConfig holds configuration for the cloud scraping actor
type ApifyConfig struct {
	Token   string        `yaml:"token" json:"-"`
	Actor   string        `yaml:"actor" json:"actor"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// InferenceConfig holds configuration for OCR and LLM extraction
type InferenceConfig struct {
	Provider    string        `yaml:"provider" json:"provider"`
	APIKey      string        `yaml:"api_key" json:"-"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	OCRModel    string        `yaml:"ocr_model" json:"ocr_model"`
	ChatModel   string        `yaml:"chat_model" json:"chat_model"`
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
	MaxChars    int           `yaml:"max_chars" json:"max_chars"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// BreakerConfig holds circuit breaker thresholds
type BreakerConfig struct {
	FailThreshold int           `yaml:"fail_threshold" json:"fail_threshold"`
	Cooldown      time.Duration `yaml:"cooldown" json:"cooldown"`
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	BaseDirectory    string        `yaml:"base_directory" json:"base_directory"`
	DefaultLimit     int           `yaml:"default_limit" json:"default_limit"`
	AutoSave         bool          `yaml:"auto_save" json:"auto_save"`
	PostSpacing      time.Duration `yaml:"post_spacing" json:"post_spacing"`
	FallbackDelayMin time.Duration `yaml:"fallback_delay_min" json:"fallback_delay_min"`
	FallbackDelayMax time.Duration `yaml:"fallback_delay_max" json:"fallback_delay_max"`
	OCRAttempts      int           `yaml:"ocr_attempts" json:"ocr_attempts"`
	DraftEvents      bool          `yaml:"draft_events" json:"draft_events"`
	WriteCSV         bool          `yaml:"write_csv" json:"write_csv"`
}

// DownloadConfig holds image download settings
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	MaxImagesPerPost    int           `yaml:"max_images_per_post" json:"max_images_per_post"`
}

// DatabaseConfig holds relational store settings
type DatabaseConfig struct {
	PostgresDSN     string        `yaml:"postgres_dsn" json:"-"`
	MaxConns        int32         `yaml:"max_conns" json:"max_conns"`
	MinConns        int32         `yaml:"min_conns" json:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime"`
	SimpleProtocol  bool          `yaml:"simple_protocol" json:"simple_protocol"`
	EventsDriver    string        `yaml:"events_driver" json:"events_driver"`
	MySQLDSN        string        `yaml:"mysql_dsn" json:"-"`
}

// StorageConfig holds image hosting settings
type StorageConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Folder          string `yaml:"folder" json:"folder"`
	UserID          string `yaml:"user_id" json:"user_id"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	LocalDirectory  string `yaml:"local_directory" json:"local_directory"`
}

// GeocoderConfig holds geocoding settings
type GeocoderConfig struct {
	APIKey      string        `yaml:"api_key" json:"-"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	DefaultCity string        `yaml:"default_city" json:"default_city"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// TasksConfig holds task store settings
type TasksConfig struct {
	Backend   string        `yaml:"backend" json:"backend"`
	Capacity  int           `yaml:"capacity" json:"capacity"`
	Retention time.Duration `yaml:"retention" json:"retention"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	RedisDB   int           `yaml:"redis_db" json:"redis_db"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Address string `yaml:"address" json:"address"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			Timeout:   30 * time.Second,
		},
		Apify: ApifyConfig{
			Actor:   "apify~instagram-scraper",
			BaseURL: "https://api.apify.com",
			Timeout: 3 * time.Minute,
		},
		Inference: InferenceConfig{
			Provider:    "mistral",
			BaseURL:     "https://api.mistral.ai",
			OCRModel:    "mistral-ocr-latest",
			ChatModel:   "mistral-small-latest",
			MinInterval: time.Second,
			MaxChars:    3000,
			Timeout:     60 * time.Second,
		},
		Breaker: BreakerConfig{
			FailThreshold: 3,
			Cooldown:      10 * time.Minute,
		},
		Pipeline: PipelineConfig{
			BaseDirectory:    "scraped_data",
			DefaultLimit:     3,
			AutoSave:         true,
			PostSpacing:      time.Second,
			FallbackDelayMin: 5 * time.Second,
			FallbackDelayMax: 10 * time.Second,
			OCRAttempts:      2,
			DraftEvents:      false,
			WriteCSV:         true,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     30 * time.Second,
			MaxImagesPerPost:    10,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        0,
			MaxConnLifetime: 30 * time.Minute,
			EventsDriver:    "postgres",
		},
		Storage: StorageConfig{
			Bucket:         "communitystorage2",
			Folder:         "ai-post-img",
			UserID:         "pomfs_ai",
			LocalDirectory: filepath.Join("static", "uploads"),
		},
		Geocoder: GeocoderConfig{
			BaseURL:     "https://maps.googleapis.com/maps/api/geocode/json",
			DefaultCity: "Seoul, South Korea",
			Timeout:     10 * time.Second,
		},
		Tasks: TasksConfig{
			Backend:   "memory",
			Capacity:  200,
			Retention: time.Hour,
			RedisAddr: "localhost:6379",
		},
		Server: ServerConfig{
			Address: ":8080",
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// IGEVENTS_* names win over the conventional provider names.
func (c *Config) LoadFromEnv() error {
	setString(&c.Instagram.Account, "IGEVENTS_INSTAGRAM_ACCOUNT")
	setString(&c.Instagram.UserAgent, "IGEVENTS_USER_AGENT")

	setString(&c.Apify.Token, "APIFY_TOKEN", "IGEVENTS_APIFY_TOKEN")

	setString(&c.Inference.APIKey, "MISTRAL_API_KEY", "IGEVENTS_INFERENCE_API_KEY")
	setString(&c.Inference.Provider, "IGEVENTS_INFERENCE_PROVIDER")
	setString(&c.Inference.BaseURL, "IGEVENTS_INFERENCE_BASE_URL")

	setString(&c.Pipeline.BaseDirectory, "IGEVENTS_OUTPUT_DIR")
	if v := os.Getenv("IGEVENTS_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.DefaultLimit = n
		}
	}
	if v := os.Getenv("IGEVENTS_AUTO_SAVE"); v != "" {
		c.Pipeline.AutoSave = strings.ToLower(v) == "true"
	}

	setString(&c.Database.PostgresDSN, "NEON_DB_URL", "DATABASE_URL", "IGEVENTS_POSTGRES_DSN")
	setString(&c.Database.MySQLDSN, "IGEVENTS_MYSQL_DSN")
	setString(&c.Database.EventsDriver, "IGEVENTS_EVENTS_DRIVER")

	setString(&c.Storage.Bucket, "GOOGLE_CLOUD_BUCKET_NAME", "IGEVENTS_GCS_BUCKET")
	setString(&c.Storage.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")

	setString(&c.Geocoder.APIKey, "GOOGLE_MAPS_API_KEY", "IGEVENTS_GEOCODER_API_KEY")

	setString(&c.Tasks.Backend, "IGEVENTS_TASKS_BACKEND")
	setString(&c.Tasks.RedisAddr, "REDIS_ADDR", "IGEVENTS_REDIS_ADDR")

	setString(&c.Server.Address, "IGEVENTS_ADDR")

	if notifEnabled := os.Getenv("IGEVENTS_NOTIFICATIONS_ENABLED"); notifEnabled != "" {
		c.Notifications.Enabled = strings.ToLower(notifEnabled) == "true"
	}

	setString(&c.Logging.Level, "IGEVENTS_LOG_LEVEL")
	setString(&c.Logging.Format, "IGEVENTS_LOG_FORMAT")

	return nil
}

// setString assigns the last non-empty variable among names to dst
func setString(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igevents.yaml",
		".igevents.yml",
		filepath.Join(home, ".config", "igevents", "config.yaml"),
		filepath.Join(home, ".config", "igevents", "config.yml"),
		filepath.Join(home, ".igevents.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Inference.MinInterval < 0 {
		errs = append(errs, errors.New("inference min interval cannot be negative"))
	}
	if c.Inference.MaxChars <= 0 {
		errs = append(errs, errors.New("inference max chars must be positive"))
	}
	validProviders := map[string]bool{"mistral": true, "regex": true}
	if !validProviders[strings.ToLower(c.Inference.Provider)] {
		errs = append(errs, fmt.Errorf("invalid inference provider %q", c.Inference.Provider))
	}

	if c.Breaker.FailThreshold <= 0 {
		errs = append(errs, errors.New("breaker fail threshold must be positive"))
	}
	if c.Breaker.Cooldown <= 0 {
		errs = append(errs, errors.New("breaker cooldown must be positive"))
	}

	if c.Pipeline.BaseDirectory == "" {
		errs = append(errs, errors.New("pipeline base directory is required"))
	}
	if c.Pipeline.DefaultLimit <= 0 {
		errs = append(errs, errors.New("pipeline default limit must be positive"))
	}
	if c.Pipeline.OCRAttempts <= 0 {
		errs = append(errs, errors.New("ocr attempts must be positive"))
	}
	if c.Pipeline.FallbackDelayMin < 0 || c.Pipeline.FallbackDelayMax < c.Pipeline.FallbackDelayMin {
		errs = append(errs, errors.New("fallback delay range is invalid"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	switch strings.ToLower(c.Database.EventsDriver) {
	case "postgres", "":
	case "mysql":
		if c.Database.MySQLDSN == "" {
			errs = append(errs, errors.New("mysql dsn is required when events driver is mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid events driver %q", c.Database.EventsDriver))
	}

	switch strings.ToLower(c.Tasks.Backend) {
	case "memory":
		if c.Tasks.Capacity <= 0 {
			errs = append(errs, errors.New("task capacity must be positive"))
		}
	case "redis":
		if c.Tasks.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required when tasks backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid tasks backend %q", c.Tasks.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Pipeline.BaseDirectory = v
	}
	if v, ok := flags["limit"].(int); ok && v > 0 {
		c.Pipeline.DefaultLimit = v
	}
	if v, ok := flags["auto-save"].(bool); ok {
		c.Pipeline.AutoSave = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Instagram.Account = v
	}
	if v, ok := flags["provider"].(string); ok && v != "" {
		c.Inference.Provider = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["addr"].(string); ok && v != "" {
		c.Server.Address = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igevents.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
