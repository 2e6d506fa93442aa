package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"storysage/internal/database"
	"storysage/internal/errs"
	"storysage/internal/models"
)

// EventRepository handles progress_events database operations
type EventRepository struct {
	db database.DBTX
}

// NewEventRepository creates a new event repository
func NewEventRepository(db database.DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Record appends an event
func (r *EventRepository) Record(ctx context.Context, e *models.ProgressEvent) error {
	metadata := ""
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
		metadata = string(data)
	}

	query := `
		INSERT INTO progress_events (id, user_id, story_id, event_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.UserID, e.StoryID, string(e.EventType), metadata, e.Timestamp.UTC())
	if err != nil {
		return errs.Persistence("events.record", err)
	}
	return nil
}

// ListByUser retrieves a user's most recent events, newest first
func (r *EventRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ProgressEvent, error) {
	query := `
		SELECT id, user_id, story_id, event_type, metadata, created_at
		FROM progress_events
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, errs.Persistence("events.list", err)
	}
	defer rows.Close()

	events := []models.ProgressEvent{}
	for rows.Next() {
		var e models.ProgressEvent
		var eventType, metadata string
		if err := rows.Scan(&e.ID, &e.UserID, &e.StoryID, &eventType, &metadata, &e.Timestamp); err != nil {
			return nil, errs.Persistence("events.list", err)
		}
		e.EventType = models.ProgressEventType(eventType)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, errs.Malformed("events.list", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence("events.list", err)
	}
	return events, nil
}
