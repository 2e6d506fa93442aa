package audio

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"storysage/internal/errs"
	"storysage/internal/logging"
)

const downloadTimeout = 5 * time.Minute

// CachedFile describes one downloaded audio file.
type CachedFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Cache stores downloaded story audio in a flat directory.
type Cache struct {
	dir    string
	client *http.Client
	logger *zap.Logger
}

// NewCache creates a cache rooted at dir. A nil client uses a client with a
// download timeout.
func NewCache(dir string, client *http.Client, logger *zap.Logger) *Cache {
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}
	return &Cache{dir: dir, client: client, logger: logging.OrNop(logger)}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// FileName returns the cache file name for an audio reference: the last URL
// path component when it has an extension, otherwise a name derived from a
// hash of the reference.
func (c *Cache) FileName(ref string) string {
	name := ref
	if IsURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			name = u.Path
		}
	}
	name = path.Base(name)
	if strings.Contains(name, ".") && name != "." && name != ".." {
		return name
	}
	sum := blake2b.Sum256([]byte(ref))
	return "audio_" + hex.EncodeToString(sum[:8]) + ".mp3"
}

// Path returns where ref would be cached.
func (c *Cache) Path(ref string) string {
	return filepath.Join(c.dir, c.FileName(ref))
}

// Lookup returns the cached file path for ref if it exists.
func (c *Cache) Lookup(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	p := c.Path(ref)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// Fetch downloads rawURL into the cache unless it is already present, and
// returns the local path.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	if p, ok := c.Lookup(rawURL); ok {
		return p, nil
	}
	if !IsURL(rawURL) {
		return "", errs.Invalid("audio.fetch", "not a URL: %q", rawURL)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errs.Persistence("audio.fetch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errs.Invalid("audio.fetch", "bad URL %q", rawURL)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", errs.Network("audio.fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errs.Network("audio.fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return "", errs.Persistence("audio.fetch", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", errs.Network("audio.fetch", fmt.Errorf("failed to write audio file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return "", errs.Persistence("audio.fetch", err)
	}

	dest := c.Path(rawURL)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", errs.Persistence("audio.fetch", err)
	}

	c.logger.Info("cached audio", zap.String("url", rawURL), zap.String("file", filepath.Base(dest)))
	return dest, nil
}

// Remove deletes the cached file for ref. Missing files are not an error.
func (c *Cache) Remove(ref string) error {
	err := os.Remove(c.Path(ref))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Persistence("audio.remove", err)
	}
	return nil
}

// Clear deletes every cached file.
func (c *Cache) Clear() error {
	files, err := c.List()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(filepath.Join(c.dir, f.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.Persistence("audio.clear", err)
		}
	}
	return nil
}

// List returns the cached files sorted by name.
func (c *Cache) List() ([]CachedFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.Persistence("audio.list", err)
	}

	var files []CachedFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, CachedFile{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Size returns the total size of cached files in bytes.
func (c *Cache) Size() (int64, error) {
	files, err := c.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// CleanupOlderThan removes files last written before now-age and returns
// how many were removed.
func (c *Cache) CleanupOlderThan(age time.Duration, now time.Time) (int, error) {
	files, err := c.List()
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-age)
	removed := 0
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, errs.Persistence("audio.cleanup", err)
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info("removed stale cached audio", zap.Int("files", removed), zap.Duration("max_age", age))
	}
	return removed, nil
}
