package repository

import (
	"context"
	"database/sql"
	"errors"

	"storysage/internal/database"
	"storysage/internal/errs"
	"storysage/internal/models"
)

// SettingsRepository handles user_settings database operations
type SettingsRepository struct {
	db database.DBTX
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db database.DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves the settings of a user
func (r *SettingsRepository) Get(ctx context.Context, userID string) (*models.Settings, error) {
	query := `
		SELECT user_id, auto_play, playback_speed, skip_silence, preferred_grade_level, updated_at
		FROM user_settings
		WHERE user_id = ?
	`

	s := &models.Settings{}
	var grade string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID,
		&s.AutoPlay,
		&s.PlaybackSpeed,
		&s.SkipSilence,
		&grade,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("settings.get", "no settings for user %q", userID)
	}
	if err != nil {
		return nil, errs.Persistence("settings.get", err)
	}
	s.PreferredGradeLevel = models.GradeLevel(grade)
	return s, nil
}

// Save updates or inserts a user's settings
func (r *SettingsRepository) Save(ctx context.Context, s *models.Settings) error {
	query := `
		INSERT INTO user_settings (user_id, auto_play, playback_speed, skip_silence, preferred_grade_level, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)` +
		r.db.GetDialect().UpsertClause(
			[]string{"user_id"},
			[]string{"auto_play", "playback_speed", "skip_silence", "preferred_grade_level", "updated_at"},
		)

	_, err := r.db.ExecContext(ctx, query,
		s.UserID, s.AutoPlay, s.PlaybackSpeed, s.SkipSilence, string(s.PreferredGradeLevel), s.UpdatedAt.UTC())
	if err != nil {
		return errs.Persistence("settings.save", err)
	}
	return nil
}

// ListAll retrieves every user's settings, for backups
func (r *SettingsRepository) ListAll(ctx context.Context) ([]models.Settings, error) {
	query := `
		SELECT user_id, auto_play, playback_speed, skip_silence, preferred_grade_level, updated_at
		FROM user_settings
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.Persistence("settings.all", err)
	}
	defer rows.Close()

	all := []models.Settings{}
	for rows.Next() {
		var s models.Settings
		var grade string
		if err := rows.Scan(&s.UserID, &s.AutoPlay, &s.PlaybackSpeed, &s.SkipSilence, &grade, &s.UpdatedAt); err != nil {
			return nil, errs.Persistence("settings.all", err)
		}
		s.PreferredGradeLevel = models.GradeLevel(grade)
		all = append(all, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence("settings.all", err)
	}
	return all, nil
}
