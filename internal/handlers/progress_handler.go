package handlers

import (
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"storysage/internal/catalog"
	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/service"
)

// ProgressHandler serves listening progress, statistics and achievements
type ProgressHandler struct {
	progress     *service.ProgressService
	stories      catalog.Provider
	achievements *service.AchievementService
	events       *service.EventService
	logger       *zap.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(progress *service.ProgressService, stories catalog.Provider, achievements *service.AchievementService, events *service.EventService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress:     progress,
		stories:      stories,
		achievements: achievements,
		events:       events,
		logger:       logging.OrNop(logger),
	}
}

// UserProgress handles GET /api/progress/{userId}
func (h *ProgressHandler) UserProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	summary, err := h.progress.UserProgress(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to load user progress")
		return
	}

	achievements, err := h.achievements.List(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to load achievements")
		return
	}
	for _, a := range achievements {
		if a.IsUnlocked {
			summary.Achievements = append(summary.Achievements, a)
		}
	}
	respondJSON(w, http.StatusOK, summary)
}

// UpdateProgress handles POST /api/progress/{userId}/{storyId}
func (h *ProgressHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var body models.ProgressUpdate
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	if body.PlaybackPosition < 0 || math.IsNaN(body.PlaybackPosition) || math.IsInf(body.PlaybackPosition, 0) {
		respondWithError(w, h.logger, http.StatusBadRequest, "playback_position must be a non-negative number", "", nil)
		return
	}

	story, err := h.stories.Story(r.Context(), r.PathValue("storyId"))
	if err != nil {
		respondError(w, h.logger, err, "failed to look up story")
		return
	}
	position := math.Min(body.PlaybackPosition, story.Duration)

	rec, err := h.progress.Upsert(r.Context(), story.ID, r.PathValue("userId"), position, body.IsCompleted)
	if err != nil {
		respondError(w, h.logger, err, "failed to save progress")
		return
	}
	respondMessage(w, http.StatusOK, "Progress updated successfully", rec)
}

type favoriteRequest struct {
	IsFavorite bool `json:"is_favorite"`
}

// SetFavorite handles POST /api/progress/{userId}/{storyId}/favorite
func (h *ProgressHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	var body favoriteRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}

	rec, err := h.progress.SetFavorite(r.Context(), r.PathValue("storyId"), r.PathValue("userId"), body.IsFavorite)
	if err != nil {
		respondError(w, h.logger, err, "failed to update favorite")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Recent handles GET /api/progress/{userId}/recent?limit=
func (h *ProgressHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, h.logger)
	if !ok {
		return
	}
	records, err := h.progress.ListRecentlyPlayed(r.Context(), r.PathValue("userId"), limit)
	h.respondRecords(w, records, err)
}

// Completed handles GET /api/progress/{userId}/completed
func (h *ProgressHandler) Completed(w http.ResponseWriter, r *http.Request) {
	records, err := h.progress.ListCompleted(r.Context(), r.PathValue("userId"))
	h.respondRecords(w, records, err)
}

// Favorites handles GET /api/progress/{userId}/favorites
func (h *ProgressHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	records, err := h.progress.ListFavorites(r.Context(), r.PathValue("userId"))
	h.respondRecords(w, records, err)
}

// Stats handles GET /api/progress/{userId}/stats
func (h *ProgressHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.progress.ComputeStatistics(r.Context(), r.PathValue("userId"))
	if err != nil {
		respondError(w, h.logger, err, "failed to compute statistics")
		return
	}
	respondJSON(w, http.StatusOK, struct {
		models.UserStatistics
		FormattedListeningTime string `json:"formatted_listening_time"`
	}{stats, stats.FormattedListeningTime()})
}

// Events handles GET /api/progress/{userId}/events?limit=
func (h *ProgressHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, h.logger)
	if !ok {
		return
	}
	events, err := h.events.List(r.Context(), r.PathValue("userId"), limit)
	if err != nil {
		respondError(w, h.logger, err, "failed to list events")
		return
	}
	if events == nil {
		events = []models.ProgressEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

// Achievements handles GET /api/achievements/{userId}
func (h *ProgressHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := h.achievements.List(r.Context(), r.PathValue("userId"))
	if err != nil {
		respondError(w, h.logger, err, "failed to list achievements")
		return
	}
	respondJSON(w, http.StatusOK, achievements)
}

func (h *ProgressHandler) respondRecords(w http.ResponseWriter, records []models.ProgressRecord, err error) {
	if err != nil {
		respondError(w, h.logger, err, "failed to list progress")
		return
	}
	if records == nil {
		records = []models.ProgressRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// queryLimit parses the optional limit parameter. Zero means the default.
func queryLimit(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 500 {
		respondWithError(w, logger, http.StatusBadRequest, "limit must be between 1 and 500", "", nil)
		return 0, false
	}
	return limit, true
}
