// Package audio resolves story audio to a playable location and manages
// the downloaded-audio cache.
package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
)

// Kind says where a resolved handle points.
type Kind string

const (
	KindBundled Kind = "bundled"
	KindCached  Kind = "cached"
	KindRemote  Kind = "remote"
)

// Handle is a resolved, playable audio location: a file path for bundled
// and cached audio, a URL for remote audio.
type Handle struct {
	StoryID  string `json:"story_id"`
	Kind     Kind   `json:"kind"`
	Location string `json:"location"`
}

// IsLocal reports whether the handle points at a file on disk.
func (h Handle) IsLocal() bool {
	return h.Kind == KindBundled || h.Kind == KindCached
}

// Subdirectories of the bundle root probed for audio, in order.
var bundleDirs = []string{"", "Audio", "Resources/Audio"}

// Locator maps stories to audio handles. Results are memoized per story id.
type Locator struct {
	bundleDir string
	cache     *Cache
	logger    *zap.Logger

	mu       sync.Mutex
	resolved map[string]Handle
	observe  func(Kind)
}

// NewLocator creates a locator over a bundled audio directory and a download
// cache. Either may be empty/nil.
func NewLocator(bundleDir string, cache *Cache, logger *zap.Logger) *Locator {
	return &Locator{
		bundleDir: bundleDir,
		cache:     cache,
		logger:    logging.OrNop(logger),
		resolved:  make(map[string]Handle),
	}
}

// OnResolve registers a callback invoked with the kind of every fresh
// resolution.
func (l *Locator) OnResolve(fn func(Kind)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observe = fn
}

// Resolve returns the audio handle for story. Resolution order is: the
// memoized handle, the download cache, a bundled file named after the
// normalized audio reference, a bundled file named after the story id, and
// finally the remote URL itself.
func (l *Locator) Resolve(story models.Story) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.resolved[story.ID]; ok {
		if !h.IsLocal() || fileExists(h.Location) {
			return h, nil
		}
		delete(l.resolved, story.ID)
	}

	h, ok := l.resolve(story)
	if !ok {
		l.logger.Warn("no audio for story",
			zap.String("story_id", story.ID),
			zap.String("title", story.Title),
			zap.String("audio_ref", story.AudioRef))
		return Handle{}, errs.NotFound("audio.resolve", "no audio file for %q (%s)", story.Title, l.displayName(story))
	}

	l.resolved[story.ID] = h
	if l.observe != nil {
		l.observe(h.Kind)
	}
	return h, nil
}

func (l *Locator) resolve(story models.Story) (Handle, bool) {
	ref := story.AudioRef

	if l.cache != nil && ref != "" {
		if p, ok := l.cache.Lookup(ref); ok {
			return Handle{StoryID: story.ID, Kind: KindCached, Location: p}, true
		}
	}
	if ref != "" {
		if p, ok := l.findBundled(NormalizeName(ref)); ok {
			return Handle{StoryID: story.ID, Kind: KindBundled, Location: p}, true
		}
	}
	if p, ok := l.findBundled(story.ID); ok {
		return Handle{StoryID: story.ID, Kind: KindBundled, Location: p}, true
	}
	if IsURL(ref) {
		return Handle{StoryID: story.ID, Kind: KindRemote, Location: ref}, true
	}
	return Handle{}, false
}

// Download fetches the story's remote audio into the cache and replaces any
// memoized handle with the cached one.
func (l *Locator) Download(ctx context.Context, story models.Story) (Handle, error) {
	if l.cache == nil {
		return Handle{}, errs.Invalid("audio.download", "no audio cache configured")
	}
	if !IsURL(story.AudioRef) {
		return Handle{}, errs.Invalid("audio.download", "story %q has no remote audio", story.ID)
	}

	p, err := l.cache.Fetch(ctx, story.AudioRef)
	if err != nil {
		return Handle{}, err
	}

	h := Handle{StoryID: story.ID, Kind: KindCached, Location: p}
	l.mu.Lock()
	l.resolved[story.ID] = h
	l.mu.Unlock()
	return h, nil
}

// Forget drops the memoized handle for a story.
func (l *Locator) Forget(storyID string) {
	l.mu.Lock()
	delete(l.resolved, storyID)
	l.mu.Unlock()
}

// MissingBundled lists the expected bundled file names for stories that
// have neither a bundled nor a cached file.
func (l *Locator) MissingBundled(stories []models.Story) []string {
	var missing []string
	for _, s := range stories {
		if l.cache != nil && s.AudioRef != "" {
			if _, ok := l.cache.Lookup(s.AudioRef); ok {
				continue
			}
		}
		if s.AudioRef != "" {
			if _, ok := l.findBundled(NormalizeName(s.AudioRef)); ok {
				continue
			}
		}
		if _, ok := l.findBundled(s.ID); ok {
			continue
		}
		missing = append(missing, l.displayName(s))
	}
	return missing
}

func (l *Locator) findBundled(name string) (string, bool) {
	name = filepath.Base(name)
	if l.bundleDir == "" || name == "" || name == "." || name == ".." {
		return "", false
	}
	for _, dir := range bundleDirs {
		for _, ext := range audioExtensions {
			p := filepath.Join(l.bundleDir, dir, name+ext)
			if fileExists(p) {
				return p, true
			}
		}
	}
	return "", false
}

func (l *Locator) displayName(story models.Story) string {
	if story.AudioRef != "" {
		return NormalizeName(story.AudioRef) + ".mp3"
	}
	return story.ID + ".mp3"
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
