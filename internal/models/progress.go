package models

import (
	"fmt"
	"time"
)

// ProgressRecord tracks one user's listening state for one story. There is at
// most one record per (StoryID, UserID).
type ProgressRecord struct {
	ID               string     `json:"id"`
	StoryID          string     `json:"story_id"`
	UserID           string     `json:"user_id"`
	PlaybackPosition float64    `json:"playback_position"`
	IsCompleted      bool       `json:"is_completed"`
	IsFavorite       bool       `json:"is_favorite"`
	PlayCount        int        `json:"play_count"`
	ListenedSeconds  float64    `json:"listened_seconds"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastPlayedAt     *time.Time `json:"last_played_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// UserStatistics is derived from a user's progress records.
type UserStatistics struct {
	TotalStoriesListened int     `json:"total_stories_listened"`
	CompletedStories     int     `json:"completed_stories"`
	FavoriteStories      int     `json:"favorite_stories"`
	TotalListeningTime   float64 `json:"total_listening_time"`
	CurrentStreak        int     `json:"current_streak"`
	LongestStreak        int     `json:"longest_streak"`
}

// FormattedListeningTime renders the total as "1h 5m" or "5m".
func (s UserStatistics) FormattedListeningTime() string {
	total := int(s.TotalListeningTime)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// UserProgress is the per-user summary served by GET /api/progress/{userId}.
type UserProgress struct {
	UserID               string        `json:"user_id"`
	TotalStoriesListened int           `json:"total_stories_listened"`
	TotalListeningTime   float64       `json:"total_listening_time"`
	CompletedStories     []string      `json:"completed_stories"`
	FavoriteStories      []string      `json:"favorite_stories"`
	CurrentStreak        int           `json:"current_streak"`
	LongestStreak        int           `json:"longest_streak"`
	Achievements         []Achievement `json:"achievements"`
	LastStoryID          string        `json:"last_story_id,omitempty"`
	LastPlaybackPosition *float64      `json:"last_playback_position,omitempty"`
}

// ProgressUpdate is the body of POST /api/progress/{userId}/{storyId}.
type ProgressUpdate struct {
	PlaybackPosition float64   `json:"playback_position"`
	IsCompleted      bool      `json:"is_completed"`
	Timestamp        time.Time `json:"timestamp"`
}

// Achievement is an unlockable badge.
type Achievement struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
	IsUnlocked  bool       `json:"is_unlocked"`
	Progress    int        `json:"progress"`
}

// ProgressEventType names a listening lifecycle event.
type ProgressEventType string

const (
	EventStoryStarted        ProgressEventType = "story_started"
	EventStoryPaused         ProgressEventType = "story_paused"
	EventStoryResumed        ProgressEventType = "story_resumed"
	EventStoryCompleted      ProgressEventType = "story_completed"
	EventStorySkipped        ProgressEventType = "story_skipped"
	EventStoryFavorited      ProgressEventType = "story_favorited"
	EventStoryUnfavorited    ProgressEventType = "story_unfavorited"
	EventStoryDownloaded     ProgressEventType = "story_downloaded"
	EventAchievementUnlocked ProgressEventType = "achievement_unlocked"
	EventSessionStarted      ProgressEventType = "session_started"
	EventSessionEnded        ProgressEventType = "session_ended"
)

// ProgressEvent is a timestamped listening event.
type ProgressEvent struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	StoryID   string            `json:"story_id,omitempty"`
	EventType ProgressEventType `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
