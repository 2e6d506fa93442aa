package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"storysage/internal/validation"
)

// Config holds application configuration
type Config struct {
	ServerPort string `yaml:"server_port"`

	DatabaseType   string `yaml:"database_type"`
	DatabasePath   string `yaml:"database_path"`
	DatabaseURL    string `yaml:"database_url"`
	MigrationsPath string `yaml:"migrations_path"`

	// ContentPath holds categories.json, stories.json and metadata.json.
	ContentPath       string        `yaml:"content_path"`
	BundledAudioPath  string        `yaml:"bundled_audio_path"`
	AudioCachePath    string        `yaml:"audio_cache_path"`
	AudioCacheMaxAge  time.Duration `yaml:"audio_cache_max_age"`
	UseLocalResources bool          `yaml:"use_local_resources"`

	RemoteBaseURL      string        `yaml:"remote_base_url"`
	RemoteTimeout      time.Duration `yaml:"remote_timeout"`
	RemoteClientID     string        `yaml:"remote_client_id"`
	RemoteClientSecret string        `yaml:"remote_client_secret"`
	RemoteTokenURL     string        `yaml:"remote_token_url"`

	SyncMaxAttempts int           `yaml:"sync_max_attempts"`
	SyncBaseDelay   time.Duration `yaml:"sync_base_delay"`
	SyncQueueSize   int           `yaml:"sync_queue_size"`

	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`

	DefaultUserID  string `yaml:"default_user_id"`
	DeviceLockPath string `yaml:"device_lock_path"`
	StreakTimeZone string `yaml:"streak_time_zone"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	AWSRegion    string `yaml:"aws_region"`
	SESFromEmail string `yaml:"ses_from_email"`
	SESFromName  string `yaml:"ses_from_name"`
	NotifyEmail  string `yaml:"notify_email"`
}

// Load builds the configuration from defaults, an optional YAML file
// (STORYSAGE_CONFIG), an optional .env file and environment variables, in
// that order of precedence.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("STORYSAGE_CONFIG"))
}

// LoadFrom is Load with an explicit YAML path. An empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Defaults returns a configuration rooted in the XDG data and cache dirs.
func Defaults() *Config {
	dataDir := filepath.Join(xdg.DataHome, "storysage")
	cacheDir := filepath.Join(xdg.CacheHome, "storysage")

	return &Config{
		ServerPort:        "8080",
		DatabaseType:      "sqlite",
		DatabasePath:      filepath.Join(dataDir, "storysage.db"),
		ContentPath:       filepath.Join(dataDir, "content"),
		BundledAudioPath:  filepath.Join(dataDir, "audio"),
		AudioCachePath:    filepath.Join(cacheDir, "audio"),
		AudioCacheMaxAge:  30 * 24 * time.Hour,
		UseLocalResources: true,
		RemoteTimeout:     30 * time.Second,
		SyncMaxAttempts:   5,
		SyncBaseDelay:     time.Second,
		SyncQueueSize:     64,
		TokenDuration:     30 * 24 * time.Hour,
		DefaultUserID:     "default-user",
		DeviceLockPath:    filepath.Join(xdg.RuntimeDir, "storysage-output.lock"),
		StreakTimeZone:    "Local",
		LogLevel:          "info",
		LogFormat:         "json",
		AWSRegion:         "us-east-1",
		SESFromName:       "StorySage",
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerPort = getEnv("PORT", c.ServerPort)

	c.DatabaseType = getEnv("DB_TYPE", c.DatabaseType)
	c.DatabasePath = getEnv("DB_PATH", c.DatabasePath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.MigrationsPath = getEnv("MIGRATIONS_PATH", c.MigrationsPath)

	c.ContentPath = getEnv("CONTENT_PATH", c.ContentPath)
	c.BundledAudioPath = getEnv("BUNDLED_AUDIO_PATH", c.BundledAudioPath)
	c.AudioCachePath = getEnv("AUDIO_CACHE_PATH", c.AudioCachePath)
	c.AudioCacheMaxAge = getEnvDuration("AUDIO_CACHE_MAX_AGE", c.AudioCacheMaxAge)
	c.UseLocalResources = getEnvBool("USE_LOCAL_RESOURCES", c.UseLocalResources)

	c.RemoteBaseURL = getEnv("REMOTE_BASE_URL", c.RemoteBaseURL)
	c.RemoteTimeout = getEnvDuration("REMOTE_TIMEOUT", c.RemoteTimeout)
	c.RemoteClientID = getEnv("REMOTE_CLIENT_ID", c.RemoteClientID)
	c.RemoteClientSecret = getEnv("REMOTE_CLIENT_SECRET", c.RemoteClientSecret)
	c.RemoteTokenURL = getEnv("REMOTE_TOKEN_URL", c.RemoteTokenURL)

	c.SyncMaxAttempts = getEnvInt("SYNC_MAX_ATTEMPTS", c.SyncMaxAttempts)
	c.SyncBaseDelay = getEnvDuration("SYNC_BASE_DELAY", c.SyncBaseDelay)
	c.SyncQueueSize = getEnvInt("SYNC_QUEUE_SIZE", c.SyncQueueSize)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.TokenDuration = getEnvDuration("TOKEN_DURATION", c.TokenDuration)

	c.DefaultUserID = getEnv("DEFAULT_USER_ID", c.DefaultUserID)
	c.DeviceLockPath = getEnv("DEVICE_LOCK_PATH", c.DeviceLockPath)
	c.StreakTimeZone = getEnv("STREAK_TIME_ZONE", c.StreakTimeZone)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.SESFromEmail = getEnv("SES_FROM_EMAIL", c.SESFromEmail)
	c.SESFromName = getEnv("SES_FROM_NAME", c.SESFromName)
	c.NotifyEmail = getEnv("NOTIFY_EMAIL", c.NotifyEmail)
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.ServerPort)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %q", c.ServerPort)
	}

	switch strings.ToLower(c.DatabaseType) {
	case "sqlite", "sqlite3", "":
		if c.DatabasePath == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "postgres", "postgresql", "mysql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for %s", c.DatabaseType)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	if !c.UseLocalResources && c.RemoteBaseURL == "" {
		return fmt.Errorf("remote base URL is required when local resources are disabled")
	}
	if c.SyncMaxAttempts < 1 {
		return fmt.Errorf("sync max attempts must be at least 1")
	}
	if c.SyncQueueSize < 1 {
		return fmt.Errorf("sync queue size must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid streak time zone %q: %w", c.StreakTimeZone, err)
	}

	for _, addr := range []string{c.SESFromEmail, c.NotifyEmail} {
		if addr == "" {
			continue
		}
		if err := validation.ValidateEmail(addr); err != nil {
			return fmt.Errorf("invalid notification address %q: %w", addr, err)
		}
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	return nil
}

// Location returns the time zone used for calendar-day streak math.
func (c *Config) Location() (*time.Location, error) {
	if c.StreakTimeZone == "" || c.StreakTimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.StreakTimeZone)
}

// RemoteEnabled reports whether a remote content API is configured.
func (c *Config) RemoteEnabled() bool {
	return c.RemoteBaseURL != ""
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
