package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/playback"
	"storysage/internal/repository"
)

// EventService keeps the listening event log
type EventService struct {
	events *repository.EventRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewEventService creates a new event service
func NewEventService(eventRepo *repository.EventRepository, logger *zap.Logger) *EventService {
	return &EventService{events: eventRepo, logger: logging.OrNop(logger), now: time.Now}
}

// Record appends an event. The event log is best effort: failures are
// logged and never reach the caller.
func (s *EventService) Record(ctx context.Context, userID, storyID string, eventType models.ProgressEventType, metadata map[string]string) {
	e := &models.ProgressEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		StoryID:   storyID,
		EventType: eventType,
		Timestamp: s.now().UTC(),
		Metadata:  metadata,
	}
	if err := s.events.Record(ctx, e); err != nil {
		s.logger.Warn("failed to record event", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// List returns a user's most recent events
func (s *EventService) List(ctx context.Context, userID string, limit int) ([]models.ProgressEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.events.ListByUser(ctx, userID, limit)
}

// HandleProgress is a ProgressObserver recording favorite changes.
func (s *EventService) HandleProgress(ctx context.Context, change ProgressChange) {
	if !change.FavoriteOnly {
		return
	}
	eventType := models.EventStoryUnfavorited
	if change.Record.IsFavorite {
		eventType = models.EventStoryFavorited
	}
	s.Record(ctx, change.Record.UserID, change.Record.StoryID, eventType, nil)
}

// Watch records listening events from the playback bus until ctx is done.
func (s *EventService) Watch(ctx context.Context, bus *playback.Bus) {
	events, cancel := bus.Subscribe(64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			eventType, ok := progressEventFor(e)
			if !ok {
				continue
			}
			metadata := map[string]string{
				"position": strconv.FormatFloat(e.Position, 'f', 1, 64),
			}
			s.Record(ctx, e.UserID, e.StoryID, eventType, metadata)
		}
	}
}

func progressEventFor(e playback.Event) (models.ProgressEventType, bool) {
	switch e.Type {
	case playback.EventCompleted:
		return models.EventStoryCompleted, true
	case playback.EventStateChanged:
	default:
		return "", false
	}

	switch {
	case e.State == playback.StatePlaying && e.PrevState == playback.StateReady:
		return models.EventStoryStarted, true
	case e.State == playback.StatePlaying && e.PrevState == playback.StatePaused:
		return models.EventStoryResumed, true
	case e.State == playback.StatePaused && e.PrevState == playback.StatePlaying:
		return models.EventStoryPaused, true
	case e.State == playback.StateIdle && (e.PrevState == playback.StatePlaying || e.PrevState == playback.StatePaused):
		return models.EventStorySkipped, true
	case e.State == playback.StateIdle && e.PrevState == playback.StateEnded:
		return models.EventSessionEnded, true
	}
	return "", false
}
