package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"https://api.storysage.com/audio/benny-big-feeling-day.mp3", "benny-big-feeling-day"},
		{"https://cdn.example.com/a/b/luna.m4a?sig=abc", "luna"},
		{"benny-big-feeling-day.mp3", "benny-big-feeling-day"},
		{"benny-big-feeling-day", "benny-big-feeling-day"},
		{"notes.v2.MP3", "notes.v2"},
		{"cover.png", "cover.png"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.ref))
		})
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://x/y.mp3"))
	assert.True(t, IsURL("file:///tmp/y.mp3"))
	assert.False(t, IsURL("y.mp3"))
}
