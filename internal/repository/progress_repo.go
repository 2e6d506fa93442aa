package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storysage/internal/database"
	"storysage/internal/errs"
	"storysage/internal/models"
)

const progressColumns = `id, story_id, user_id, playback_position, is_completed, is_favorite,
	       play_count, listened_seconds, created_at, updated_at, last_played_at, completed_at`

// ProgressRepository handles story_progress database operations
type ProgressRepository struct {
	db database.DBTX
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db database.DBTX) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ProgressRepository) WithTx(tx *database.Tx) *ProgressRepository {
	return &ProgressRepository{db: tx}
}

// Get retrieves the record for a (story, user) pair
func (r *ProgressRepository) Get(ctx context.Context, storyID, userID string) (*models.ProgressRecord, error) {
	query := `SELECT ` + progressColumns + `
		FROM story_progress
		WHERE story_id = ? AND user_id = ?
	`

	rec, err := scanProgress(r.db.QueryRowContext(ctx, query, storyID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("progress.get", "no progress for story %q", storyID)
	}
	if err != nil {
		return nil, errs.Persistence("progress.get", err)
	}
	return rec, nil
}

// Save inserts the record or replaces the mutable columns of the existing
// record for the same (story, user) pair.
func (r *ProgressRepository) Save(ctx context.Context, rec *models.ProgressRecord) error {
	query := `
		INSERT INTO story_progress (id, story_id, user_id, playback_position, is_completed, is_favorite,
		                            play_count, listened_seconds, created_at, updated_at, last_played_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)` +
		r.db.GetDialect().UpsertClause(
			[]string{"story_id", "user_id"},
			[]string{"playback_position", "is_completed", "is_favorite", "play_count",
				"listened_seconds", "updated_at", "last_played_at", "completed_at"},
		)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.StoryID, rec.UserID, rec.PlaybackPosition, rec.IsCompleted, rec.IsFavorite,
		rec.PlayCount, rec.ListenedSeconds, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
		nullTime(rec.LastPlayedAt), nullTime(rec.CompletedAt),
	)
	if err != nil {
		return errs.Persistence("progress.save", err)
	}
	return nil
}

// ListByUser retrieves every record of a user, most recently updated first
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	return r.list(ctx, "progress.list", `WHERE user_id = ? ORDER BY updated_at DESC`, userID)
}

// ListRecent retrieves played records, most recently played first
func (r *ProgressRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.ProgressRecord, error) {
	return r.list(ctx, "progress.recent",
		`WHERE user_id = ? AND last_played_at IS NOT NULL ORDER BY last_played_at DESC LIMIT ?`, userID, limit)
}

// ListCompleted retrieves completed records, most recently completed first
func (r *ProgressRepository) ListCompleted(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	return r.list(ctx, "progress.completed",
		`WHERE user_id = ? AND is_completed = ? ORDER BY completed_at DESC`, userID, true)
}

// ListFavorites retrieves favorited records
func (r *ProgressRepository) ListFavorites(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	return r.list(ctx, "progress.favorites",
		`WHERE user_id = ? AND is_favorite = ? ORDER BY updated_at DESC`, userID, true)
}

// ListAll retrieves every record, for backups
func (r *ProgressRepository) ListAll(ctx context.Context) ([]models.ProgressRecord, error) {
	return r.list(ctx, "progress.all", `ORDER BY user_id, story_id`)
}

func (r *ProgressRepository) list(ctx context.Context, op, where string, args ...any) ([]models.ProgressRecord, error) {
	query := `SELECT ` + progressColumns + ` FROM story_progress ` + where

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Persistence(op, err)
	}
	defer rows.Close()

	records := []models.ProgressRecord{}
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, errs.Persistence(op, err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence(op, err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(row scanner) (*models.ProgressRecord, error) {
	rec := &models.ProgressRecord{}
	var lastPlayedAt, completedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.StoryID,
		&rec.UserID,
		&rec.PlaybackPosition,
		&rec.IsCompleted,
		&rec.IsFavorite,
		&rec.PlayCount,
		&rec.ListenedSeconds,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&lastPlayedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastPlayedAt.Valid {
		t := lastPlayedAt.Time
		rec.LastPlayedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
