package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/playback"
	"storysage/internal/repository"
)

// SettingsService manages per-user playback preferences
type SettingsService struct {
	settings *repository.SettingsRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewSettingsService creates a new settings service
func NewSettingsService(settingsRepo *repository.SettingsRepository, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		settings: settingsRepo,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Get returns the user's settings, storing the defaults on first access.
func (s *SettingsService) Get(ctx context.Context, userID string) (*models.Settings, error) {
	settings, err := s.settings.Get(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	defaults := models.DefaultSettings(userID)
	defaults.UpdatedAt = s.now().UTC()
	if err := s.settings.Save(ctx, &defaults); err != nil {
		return nil, err
	}
	s.logger.Debug("created default settings", zap.String("user_id", userID))
	return &defaults, nil
}

// Update applies a partial update after validating it.
func (s *SettingsService) Update(ctx context.Context, userID string, patch models.SettingsPatch) (*models.Settings, error) {
	if patch.PlaybackSpeed != nil {
		speed := *patch.PlaybackSpeed
		if speed < playback.MinRate || speed > playback.MaxRate {
			return nil, errs.Invalid("settings.update", "playback speed %.2f outside [%.1f, %.1f]", speed, playback.MinRate, playback.MaxRate)
		}
	}
	if patch.PreferredGradeLevel != nil && *patch.PreferredGradeLevel != "" && !patch.PreferredGradeLevel.Valid() {
		return nil, errs.Invalid("settings.update", "unknown grade level %q", *patch.PreferredGradeLevel)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated := patch.Apply(*current)
	updated.UpdatedAt = s.now().UTC()
	if err := s.settings.Save(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// PlaybackRate returns the user's preferred rate, or 1 when unavailable.
func (s *SettingsService) PlaybackRate(ctx context.Context, userID string) float64 {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load settings, using normal speed", zap.String("user_id", userID), zap.Error(err))
		return float64(models.SpeedNormal)
	}
	return settings.PlaybackSpeed
}
