package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")

	cfg := fmt.Sprintf(`database_type: sqlite
database_path: %s
content_path: %s
audio_cache_path: %s
log_format: console
`, filepath.Join(dir, "storysage.db"), filepath.Join(dir, "content"), cacheDir)

	path := filepath.Join(dir, "storysage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	for _, key := range []string{"DB_TYPE", "DB_PATH", "DATABASE_URL", "CONTENT_PATH", "AUDIO_CACHE_PATH", "MIGRATIONS_PATH"} {
		t.Setenv(key, "")
	}
	return path, cacheDir
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogCommandsFallBackToSample(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := runCLI(t, configPath, "catalog", "stories", "--grade", "grade_prek")
	require.NoError(t, err)
	assert.Contains(t, out, "sample-story-1")
	assert.Contains(t, out, "Benny's Big Feeling Day")

	out, err = runCLI(t, configPath, "catalog", "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "Source: sample")
	assert.Contains(t, out, "firefly-forest")

	out, err = runCLI(t, configPath, "catalog", "story", "sample-story-2")
	require.NoError(t, err)
	assert.Contains(t, out, "ID:        sample-story-2")

	_, err = runCLI(t, configPath, "catalog", "stories", "--grade", "grade_99")
	assert.Error(t, err)

	_, err = runCLI(t, configPath, "catalog", "story", "missing")
	assert.Error(t, err)
}

func TestProgressStatsForNewUser(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := runCLI(t, configPath, "progress", "stats", "listener-1")
	require.NoError(t, err)
	assert.Contains(t, out, "User:            listener-1")
	assert.Contains(t, out, "Completed:       0")

	out, err = runCLI(t, configPath, "progress", "recent", "listener-1")
	require.NoError(t, err)
	assert.Contains(t, out, "No stories played yet")
}

func TestBackupExportImport(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	backupPath := filepath.Join(t.TempDir(), "out", "backup.json")

	out, err := runCLI(t, configPath, "backup", "export", "--output", backupPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported backup version 1.0")
	assert.FileExists(t, backupPath)

	out, err = runCLI(t, configPath, "backup", "import", backupPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported backup version 1.0")
}

func TestCacheCommands(t *testing.T) {
	configPath, cacheDir := writeTestConfig(t)

	out, err := runCLI(t, configPath, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache is empty")

	require.NoError(t, os.MkdirAll(cacheDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "story.mp3"), []byte("abc"), 0o644))

	out, err = runCLI(t, configPath, "cache", "size")
	require.NoError(t, err)
	assert.Contains(t, out, "3 B")

	out, err = runCLI(t, configPath, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "story.mp3")

	out, err = runCLI(t, configPath, "cache", "cleanup", "--max-age", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 file(s)")

	_, err = runCLI(t, configPath, "cache", "clear")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cacheDir, "story.mp3"))
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanBytes(tt.in))
	}
}
