package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storysage/internal/catalog"
	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/repository"
)

// AchievementDefinition describes an unlockable badge and the statistic that
// unlocks it.
type AchievementDefinition struct {
	ID          string
	Title       string
	Description string
	Icon        string
	Target      int
	Metric      func(models.UserStatistics) int
}

// Achievements is the badge catalog, in display order.
var Achievements = []AchievementDefinition{
	{
		ID: "first-story", Title: "First Story", Icon: "star.fill",
		Description: "Listened to a whole story",
		Target:      1,
		Metric:      func(s models.UserStatistics) int { return s.CompletedStories },
	},
	{
		ID: "story-collector", Title: "Story Collector", Icon: "books.vertical.fill",
		Description: "Finished 10 different stories",
		Target:      10,
		Metric:      func(s models.UserStatistics) int { return s.CompletedStories },
	},
	{
		ID: "streak-3", Title: "Three Day Streak", Icon: "flame.fill",
		Description: "Listened three days in a row",
		Target:      3,
		Metric:      func(s models.UserStatistics) int { return s.LongestStreak },
	},
	{
		ID: "streak-7", Title: "Week of Stories", Icon: "calendar",
		Description: "Listened seven days in a row",
		Target:      7,
		Metric:      func(s models.UserStatistics) int { return s.LongestStreak },
	},
	{
		ID: "favorite-finder", Title: "Favorite Finder", Icon: "heart.fill",
		Description: "Marked five stories as favorites",
		Target:      5,
		Metric:      func(s models.UserStatistics) int { return s.FavoriteStories },
	},
}

// AchievementService awards badges after progress changes and sends the
// related notifications.
type AchievementService struct {
	progress     *ProgressService
	achievements *repository.AchievementRepository
	events       *EventService
	email        *EmailService
	stories      catalog.Provider
	logger       *zap.Logger
	now          func() time.Time
}

// NewAchievementService creates a new achievement service. events, email and
// stories may be nil.
func NewAchievementService(progress *ProgressService, achievementRepo *repository.AchievementRepository, events *EventService, email *EmailService, stories catalog.Provider, logger *zap.Logger) *AchievementService {
	return &AchievementService{
		progress:     progress,
		achievements: achievementRepo,
		events:       events,
		email:        email,
		stories:      stories,
		logger:       logging.OrNop(logger),
		now:          time.Now,
	}
}

// List returns every badge with the user's unlock state and progress.
func (s *AchievementService) List(ctx context.Context, userID string) ([]models.Achievement, error) {
	stats, err := s.progress.ComputeStatistics(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.achievements.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	at := make(map[string]time.Time, len(unlocked))
	for _, u := range unlocked {
		at[u.AchievementID] = u.UnlockedAt
	}

	out := make([]models.Achievement, 0, len(Achievements))
	for _, def := range Achievements {
		a := def.model(stats)
		if t, ok := at[def.ID]; ok {
			a.IsUnlocked = true
			a.UnlockedAt = &t
			a.Progress = def.Target
		}
		out = append(out, a)
	}
	return out, nil
}

// Evaluate awards every badge the user has reached and not yet received. It
// returns the newly unlocked badges.
func (s *AchievementService) Evaluate(ctx context.Context, userID string) ([]models.Achievement, error) {
	stats, err := s.progress.ComputeStatistics(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var unlocked []models.Achievement
	for _, def := range Achievements {
		if def.Metric(stats) < def.Target {
			continue
		}
		inserted, err := s.achievements.Unlock(ctx, userID, def.ID, now)
		if err != nil {
			return unlocked, err
		}
		if !inserted {
			continue
		}

		a := def.model(stats)
		a.IsUnlocked = true
		a.UnlockedAt = &now
		unlocked = append(unlocked, a)

		s.logger.Info("achievement unlocked", zap.String("user_id", userID), zap.String("achievement_id", def.ID))
		if s.events != nil {
			s.events.Record(ctx, userID, "", models.EventAchievementUnlocked, map[string]string{"achievement_id": def.ID})
		}
		s.email.Enqueue("achievement_unlocked", func(ctx context.Context) error {
			return s.email.SendAchievementUnlocked(ctx, userID, a)
		})
	}
	return unlocked, nil
}

// HandleProgress is a ProgressObserver: completions notify the parent and
// trigger badge evaluation, favorites trigger evaluation only. E-mails are
// queued, so the caller never waits on SES.
func (s *AchievementService) HandleProgress(ctx context.Context, change ProgressChange) {
	if !change.NewlyCompleted && !change.FavoriteOnly {
		return
	}
	userID := change.Record.UserID

	if change.NewlyCompleted && s.email.IsEnabled() && s.stories != nil {
		storyID := change.Record.StoryID
		s.email.Enqueue("story_completed", func(ctx context.Context) error {
			story, err := s.stories.Story(ctx, storyID)
			if err != nil {
				return fmt.Errorf("completed story %q not in catalog: %w", storyID, err)
			}
			return s.email.SendStoryCompleted(ctx, userID, story)
		})
	}

	if _, err := s.Evaluate(ctx, userID); err != nil {
		s.logger.Warn("failed to evaluate achievements", zap.String("user_id", userID), zap.Error(err))
	}
}

func (def AchievementDefinition) model(stats models.UserStatistics) models.Achievement {
	return models.Achievement{
		ID:          def.ID,
		Title:       def.Title,
		Description: def.Description,
		Icon:        def.Icon,
		Progress:    min(def.Metric(stats), def.Target),
	}
}
