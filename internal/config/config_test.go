package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.UseLocalResources)
	assert.Equal(t, 30*24*time.Hour, cfg.AudioCacheMaxAge)
	assert.Equal(t, "default-user", cfg.DefaultUserID)
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storysage.yaml")
	content := `
server_port: "9090"
content_path: /srv/content
sync_max_attempts: 3
log_format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Chdir(dir)
	t.Setenv("STORYSAGE_CONFIG", path)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SYNC_BASE_DELAY", "250ms")
	t.Setenv("USE_LOCAL_RESOURCES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "/srv/content", cfg.ContentPath)
	assert.Equal(t, 3, cfg.SyncMaxAttempts)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncBaseDelay)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	t.Setenv("STORYSAGE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.ServerPort = "http" }, true},
		{"postgres without url", func(c *Config) { c.DatabaseType = "postgres" }, true},
		{"postgres with url", func(c *Config) {
			c.DatabaseType = "postgres"
			c.DatabaseURL = "postgres://localhost/storysage"
		}, false},
		{"unknown database", func(c *Config) { c.DatabaseType = "oracle" }, true},
		{"remote only without url", func(c *Config) { c.UseLocalResources = false }, true},
		{"remote only with url", func(c *Config) {
			c.UseLocalResources = false
			c.RemoteBaseURL = "https://api.example.com"
		}, false},
		{"zero attempts", func(c *Config) { c.SyncMaxAttempts = 0 }, true},
		{"bad zone", func(c *Config) { c.StreakTimeZone = "Mars/Olympus" }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
