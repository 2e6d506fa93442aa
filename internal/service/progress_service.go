package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storysage/internal/database"
	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/playback"
	"storysage/internal/repository"
)

// DefaultRecentLimit is the number of recently played stories returned when
// the caller does not ask for a specific count.
const DefaultRecentLimit = 10

// ProgressChange describes a committed progress write.
type ProgressChange struct {
	Record         models.ProgressRecord
	PlayCounted    bool
	NewlyCompleted bool
	FavoriteOnly   bool
}

// ProgressObserver is notified after every committed progress write.
type ProgressObserver func(ctx context.Context, change ProgressChange)

// ProgressService is the only writer of story progress. Writes for the same
// (story, user) pair are serialized and applied in call order.
type ProgressService struct {
	db       *database.DB
	progress *repository.ProgressRepository
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time

	locks     keyedMutex
	observers []ProgressObserver
}

// NewProgressService creates a new progress service. Calendar-day streaks are
// computed in loc.
func NewProgressService(db *database.DB, progressRepo *repository.ProgressRepository, loc *time.Location, logger *zap.Logger) *ProgressService {
	if loc == nil {
		loc = time.Local
	}
	return &ProgressService{
		db:       db,
		progress: progressRepo,
		logger:   logging.OrNop(logger),
		loc:      loc,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *ProgressService) SetClock(now func() time.Time) {
	s.now = now
}

// Observe registers an observer. Observers must be registered before the
// service is used concurrently.
func (s *ProgressService) Observe(fn ProgressObserver) {
	s.observers = append(s.observers, fn)
}

// Get returns the record for a (story, user) pair
func (s *ProgressService) Get(ctx context.Context, storyID, userID string) (*models.ProgressRecord, error) {
	return s.progress.Get(ctx, storyID, userID)
}

// Upsert records a play of a story: it creates the record when absent,
// always refreshes position, completion and timestamps, increments the play
// count and sets completedAt on the first completion only.
func (s *ProgressService) Upsert(ctx context.Context, storyID, userID string, position float64, completed bool) (*models.ProgressRecord, error) {
	return s.write(ctx, storyID, userID, func(rec *models.ProgressRecord, now time.Time) {
		s.applyPosition(rec, position, now)
		rec.IsCompleted = completed
		rec.PlayCount++
	}, writeOptions{countsPlay: true})
}

// BeginPlay counts a new play starting at position. Unlike Upsert it keeps
// an earlier completion.
func (s *ProgressService) BeginPlay(ctx context.Context, storyID, userID string, position float64) (*models.ProgressRecord, error) {
	return s.write(ctx, storyID, userID, func(rec *models.ProgressRecord, now time.Time) {
		s.applyPosition(rec, position, now)
		rec.PlayCount++
	}, writeOptions{countsPlay: true})
}

// RecordPosition saves a checkpoint of an ongoing play without counting a
// new play. Completion is sticky.
func (s *ProgressService) RecordPosition(ctx context.Context, storyID, userID string, position float64, completed bool) (*models.ProgressRecord, error) {
	return s.write(ctx, storyID, userID, func(rec *models.ProgressRecord, now time.Time) {
		s.applyPosition(rec, position, now)
		rec.IsCompleted = rec.IsCompleted || completed
	}, writeOptions{})
}

// SetFavorite marks or unmarks a story as a favorite.
func (s *ProgressService) SetFavorite(ctx context.Context, storyID, userID string, favorite bool) (*models.ProgressRecord, error) {
	return s.write(ctx, storyID, userID, func(rec *models.ProgressRecord, now time.Time) {
		rec.IsFavorite = favorite
		rec.UpdatedAt = now
	}, writeOptions{favoriteOnly: true})
}

func (s *ProgressService) applyPosition(rec *models.ProgressRecord, position float64, now time.Time) {
	if position < 0 {
		position = 0
	}
	if delta := position - rec.PlaybackPosition; delta > 0 {
		rec.ListenedSeconds += delta
	}
	rec.PlaybackPosition = position
	rec.UpdatedAt = now
	rec.LastPlayedAt = &now
}

type writeOptions struct {
	countsPlay   bool
	favoriteOnly bool
}

func (s *ProgressService) write(ctx context.Context, storyID, userID string, mutate func(*models.ProgressRecord, time.Time), opts writeOptions) (*models.ProgressRecord, error) {
	if storyID == "" || userID == "" {
		return nil, errs.Invalid("progress.write", "story id and user id are required")
	}

	unlock := s.locks.Lock(storyID + "|" + userID)
	defer unlock()

	var rec *models.ProgressRecord
	var newlyCompleted bool
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := s.progress.WithTx(tx)
		now := s.now().UTC()

		existing, err := repo.Get(ctx, storyID, userID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			existing = &models.ProgressRecord{
				ID:        uuid.NewString(),
				StoryID:   storyID,
				UserID:    userID,
				CreatedAt: now,
			}
		case err != nil:
			return err
		}

		mutate(existing, now)
		if existing.IsCompleted && existing.CompletedAt == nil {
			existing.CompletedAt = &now
			newlyCompleted = true
		}
		rec = existing
		return repo.Save(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("progress saved",
		zap.String("story_id", storyID),
		zap.String("user_id", userID),
		zap.Float64("position", rec.PlaybackPosition),
		zap.Bool("completed", rec.IsCompleted),
		zap.Int("play_count", rec.PlayCount))

	change := ProgressChange{
		Record:         *rec,
		PlayCounted:    opts.countsPlay,
		NewlyCompleted: newlyCompleted,
		FavoriteOnly:   opts.favoriteOnly,
	}
	for _, observe := range s.observers {
		observe(ctx, change)
	}
	return rec, nil
}

// ListAll returns every record of a user
func (s *ProgressService) ListAll(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	return s.progress.ListByUser(ctx, userID)
}

// ListRecentlyPlayed returns played stories, most recent first
func (s *ProgressService) ListRecentlyPlayed(ctx context.Context, userID string, limit int) ([]models.ProgressRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.progress.ListRecent(ctx, userID, limit)
}

// ListCompleted returns completed stories
func (s *ProgressService) ListCompleted(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	return s.progress.ListCompleted(ctx, userID)
}

// ListFavorites returns favorited stories
func (s *ProgressService) ListFavorites(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	return s.progress.ListFavorites(ctx, userID)
}

// ComputeStatistics derives a user's listening statistics
func (s *ProgressService) ComputeStatistics(ctx context.Context, userID string) (models.UserStatistics, error) {
	records, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return models.UserStatistics{}, err
	}
	return Statistics(records, s.now(), s.loc), nil
}

// UserProgress builds the API progress summary of a user. Achievements are
// filled in by the caller.
func (s *ProgressService) UserProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	records, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := Statistics(records, s.now(), s.loc)

	summary := &models.UserProgress{
		UserID:               userID,
		TotalStoriesListened: stats.TotalStoriesListened,
		TotalListeningTime:   stats.TotalListeningTime,
		CompletedStories:     []string{},
		FavoriteStories:      []string{},
		CurrentStreak:        stats.CurrentStreak,
		LongestStreak:        stats.LongestStreak,
		Achievements:         []models.Achievement{},
	}

	var last *models.ProgressRecord
	for i := range records {
		rec := &records[i]
		if rec.IsCompleted {
			summary.CompletedStories = append(summary.CompletedStories, rec.StoryID)
		}
		if rec.IsFavorite {
			summary.FavoriteStories = append(summary.FavoriteStories, rec.StoryID)
		}
		if rec.LastPlayedAt != nil && (last == nil || rec.LastPlayedAt.After(*last.LastPlayedAt)) {
			last = rec
		}
	}
	if last != nil {
		pos := last.PlaybackPosition
		summary.LastStoryID = last.StoryID
		summary.LastPlaybackPosition = &pos
	}
	return summary, nil
}

// Statistics derives totals and streaks from a user's records.
func Statistics(records []models.ProgressRecord, now time.Time, loc *time.Location) models.UserStatistics {
	var stats models.UserStatistics
	var played []time.Time
	for _, rec := range records {
		if rec.PlayCount > 0 || rec.LastPlayedAt != nil {
			stats.TotalStoriesListened++
		}
		if rec.IsCompleted {
			stats.CompletedStories++
		}
		if rec.IsFavorite {
			stats.FavoriteStories++
		}
		stats.TotalListeningTime += rec.ListenedSeconds
		if rec.LastPlayedAt != nil {
			played = append(played, *rec.LastPlayedAt)
		}
	}
	stats.CurrentStreak, stats.LongestStreak = Streaks(played, now, loc)
	return stats
}

// Streaks computes the current and longest runs of consecutive calendar days
// with a play. The current streak only counts when the most recent play was
// today or yesterday.
func Streaks(played []time.Time, now time.Time, loc *time.Location) (current, longest int) {
	if len(played) == 0 {
		return 0, 0
	}
	if loc == nil {
		loc = time.Local
	}

	sorted := append([]time.Time(nil), played...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	var days []time.Time
	for _, t := range sorted {
		d := civilDay(t, loc)
		if len(days) == 0 || !days[len(days)-1].Equal(d) {
			days = append(days, d)
		}
	}

	run := 1
	longest = 1
	for i := 1; i < len(days); i++ {
		if dayGap(days[i], days[i-1]) == 1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}

	if dayGap(days[0], civilDay(now, loc)) > 1 {
		return 0, longest
	}
	current = 1
	for i := 1; i < len(days); i++ {
		if dayGap(days[i], days[i-1]) != 1 {
			break
		}
		current++
	}
	return current, longest
}

// civilDay returns midnight UTC of t's calendar date in loc.
func civilDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayGap returns the number of days from earlier to later.
func dayGap(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}

// Recorder adapts the service to a playback session for one user.
func (s *ProgressService) Recorder(userID string) playback.Recorder {
	return &sessionRecorder{svc: s, userID: userID}
}

type sessionRecorder struct {
	svc    *ProgressService
	userID string
}

func (r *sessionRecorder) SavedPosition(ctx context.Context, storyID string) (float64, bool) {
	rec, err := r.svc.Get(ctx, storyID, r.userID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			r.svc.logger.Warn("failed to read saved position", zap.String("story_id", storyID), zap.Error(err))
		}
		return 0, false
	}
	return rec.PlaybackPosition, true
}

func (r *sessionRecorder) BeginPlay(ctx context.Context, storyID string, position float64) error {
	_, err := r.svc.BeginPlay(ctx, storyID, r.userID, position)
	return err
}

func (r *sessionRecorder) SavePosition(ctx context.Context, storyID string, position float64, completed bool) error {
	_, err := r.svc.RecordPosition(ctx, storyID, r.userID, position, completed)
	return err
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
