package models

import "time"

// PlaybackSpeed is one of the supported playback rates.
type PlaybackSpeed float64

const (
	SpeedSlow   PlaybackSpeed = 0.75
	SpeedNormal PlaybackSpeed = 1.0
	SpeedFast   PlaybackSpeed = 1.25
	SpeedFaster PlaybackSpeed = 1.5
)

// PlaybackSpeeds lists the selectable rates.
var PlaybackSpeeds = []PlaybackSpeed{SpeedSlow, SpeedNormal, SpeedFast, SpeedFaster}

// DisplayName returns the label shown in settings pickers.
func (p PlaybackSpeed) DisplayName() string {
	switch p {
	case SpeedSlow:
		return "Slow (0.75x)"
	case SpeedNormal:
		return "Normal (1x)"
	case SpeedFast:
		return "Fast (1.25x)"
	case SpeedFaster:
		return "Faster (1.5x)"
	default:
		return "Custom"
	}
}

// Settings holds a user's playback preferences.
type Settings struct {
	UserID              string     `json:"user_id"`
	AutoPlay            bool       `json:"auto_play"`
	PlaybackSpeed       float64    `json:"playback_speed"`
	SkipSilence         bool       `json:"skip_silence"`
	PreferredGradeLevel GradeLevel `json:"preferred_grade_level,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DefaultSettings returns the settings a new user starts with.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:        userID,
		AutoPlay:      true,
		PlaybackSpeed: float64(SpeedNormal),
		SkipSilence:   false,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	AutoPlay            *bool       `json:"auto_play,omitempty"`
	PlaybackSpeed       *float64    `json:"playback_speed,omitempty"`
	SkipSilence         *bool       `json:"skip_silence,omitempty"`
	PreferredGradeLevel *GradeLevel `json:"preferred_grade_level,omitempty"`
}

// Apply returns s with the non-nil fields of p applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.AutoPlay != nil {
		s.AutoPlay = *p.AutoPlay
	}
	if p.PlaybackSpeed != nil {
		s.PlaybackSpeed = *p.PlaybackSpeed
	}
	if p.SkipSilence != nil {
		s.SkipSilence = *p.SkipSilence
	}
	if p.PreferredGradeLevel != nil {
		s.PreferredGradeLevel = *p.PreferredGradeLevel
	}
	return s
}

// Device is a registered client installation.
type Device struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Platform   string    `json:"platform"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
