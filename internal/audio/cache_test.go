package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storysage/internal/errs"
)

func TestCacheFileName(t *testing.T) {
	c := NewCache(t.TempDir(), nil, nil)

	assert.Equal(t, "luna.mp3", c.FileName("https://cdn.example.com/audio/luna.mp3?x=1"))
	assert.Equal(t, "local.mp3", c.FileName("local.mp3"))

	hashed := c.FileName("https://cdn.example.com/stream/12345")
	assert.True(t, strings.HasPrefix(hashed, "audio_"), hashed)
	assert.True(t, strings.HasSuffix(hashed, ".mp3"), hashed)
	assert.Equal(t, hashed, c.FileName("https://cdn.example.com/stream/12345"))
	assert.NotEqual(t, hashed, c.FileName("https://cdn.example.com/stream/67890"))
}

func TestCacheFetchDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("ID3-audio-bytes"))
	}))
	defer srv.Close()

	c := NewCache(t.TempDir(), srv.Client(), nil)
	url := srv.URL + "/audio/benny.mp3"

	p, err := c.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "benny.mp3", filepath.Base(p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio-bytes", string(data))

	again, err := c.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, p, again)
	assert.Equal(t, int32(1), hits.Load())

	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len("ID3-audio-bytes")), size)
}

func TestCacheFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewCache(t.TempDir(), srv.Client(), nil)
	_, err := c.Fetch(context.Background(), srv.URL+"/missing.mp3")
	assert.ErrorIs(t, err, errs.ErrNetwork)

	files, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCacheRemoveClearAndCleanup(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, nil, nil)
	now := time.Now()

	write := func(name string, age time.Duration) {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, now.Add(-age), now.Add(-age)))
	}
	write("old.mp3", 40*24*time.Hour)
	write("fresh.mp3", time.Hour)
	write("other.mp3", 31*24*time.Hour)

	removed, err := c.CleanupOlderThan(30*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	files, err := c.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "fresh.mp3", files[0].Name)

	require.NoError(t, c.Remove("https://x.example.com/audio/fresh.mp3"))
	require.NoError(t, c.Remove("https://x.example.com/audio/never.mp3"))
	_, ok := c.Lookup("fresh.mp3")
	assert.False(t, ok)

	write("a.mp3", 0)
	require.NoError(t, c.Clear())
	files, err = c.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCacheListMissingDir(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "absent"), nil, nil)

	files, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}
