package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storysage/internal/database"
	"storysage/internal/errs"
)

// UnlockedAchievement is a stored award.
type UnlockedAchievement struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// AchievementRepository handles user_achievements database operations
type AchievementRepository struct {
	db database.DBTX
}

// NewAchievementRepository creates a new achievement repository
func NewAchievementRepository(db database.DBTX) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Unlock stores an award. It reports false when the user already had it.
func (r *AchievementRepository) Unlock(ctx context.Context, userID, achievementID string, at time.Time) (bool, error) {
	query := `
		INSERT INTO user_achievements (id, user_id, achievement_id, unlocked_at)
		VALUES (?, ?, ?, ?)
	`

	inserted, err := database.ExecInsertIgnore(ctx, r.db, query, uuid.NewString(), userID, achievementID, at.UTC())
	if err != nil {
		return false, errs.Persistence("achievements.unlock", err)
	}
	return inserted, nil
}

// Restore stores a previously exported award, keeping its id. Existing
// awards are left untouched.
func (r *AchievementRepository) Restore(ctx context.Context, a UnlockedAchievement) error {
	query := `
		INSERT INTO user_achievements (id, user_id, achievement_id, unlocked_at)
		VALUES (?, ?, ?, ?)
	`

	if _, err := database.ExecInsertIgnore(ctx, r.db, query, a.ID, a.UserID, a.AchievementID, a.UnlockedAt.UTC()); err != nil {
		return errs.Persistence("achievements.restore", err)
	}
	return nil
}

// ListByUser retrieves a user's awards in unlock order
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]UnlockedAchievement, error) {
	return r.list(ctx, "achievements.list", `WHERE user_id = ? ORDER BY unlocked_at ASC`, userID)
}

// ListAll retrieves every award, for backups
func (r *AchievementRepository) ListAll(ctx context.Context) ([]UnlockedAchievement, error) {
	return r.list(ctx, "achievements.all", `ORDER BY user_id, unlocked_at`)
}

func (r *AchievementRepository) list(ctx context.Context, op, where string, args ...any) ([]UnlockedAchievement, error) {
	query := `SELECT id, user_id, achievement_id, unlocked_at FROM user_achievements ` + where

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Persistence(op, err)
	}
	defer rows.Close()

	out := []UnlockedAchievement{}
	for rows.Next() {
		var a UnlockedAchievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.AchievementID, &a.UnlockedAt); err != nil {
			return nil, errs.Persistence(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence(op, err)
	}
	return out, nil
}
