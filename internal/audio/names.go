package audio

import (
	"path"
	"strings"
)

// Extensions treated as audio when normalizing references and probing
// bundled files, in probe order.
var audioExtensions = []string{".mp3", ".m4a", ".aac", ".wav"}

// IsURL reports whether ref carries a URL scheme marker.
func IsURL(ref string) bool {
	return strings.Contains(ref, "://")
}

// NormalizeName derives the bundled base name for an audio reference. For a
// URL it is the last path segment; for a bare filename it is the name
// itself. A trailing audio extension is removed in both cases.
func NormalizeName(ref string) string {
	name := strings.TrimSpace(ref)
	if IsURL(name) {
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		name = path.Base(name)
	}
	return stripAudioExtension(name)
}

func stripAudioExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	for _, known := range audioExtensions {
		if ext == known {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}
