package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"storysage/internal/audio"
	"storysage/internal/catalog"
	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/service"
)

// ContentHandler serves the story catalog and health probes
type ContentHandler struct {
	stories catalog.Provider
	locator *audio.Locator
	sync    *service.SyncService
	events  *service.EventService
	logger  *zap.Logger
}

// NewContentHandler creates a new content handler. sync and events may be nil.
func NewContentHandler(stories catalog.Provider, locator *audio.Locator, sync *service.SyncService, events *service.EventService, logger *zap.Logger) *ContentHandler {
	return &ContentHandler{
		stories: stories,
		locator: locator,
		sync:    sync,
		events:  events,
		logger:  logging.OrNop(logger),
	}
}

// Categories handles GET /api/categories
func (h *ContentHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.stories.Categories(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to list categories")
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

// Stories handles GET /api/stories?category=&grade_level=
func (h *ContentHandler) Stories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	grade := models.GradeLevel(query.Get("grade_level"))
	if grade != "" && !grade.Valid() {
		respondWithError(w, h.logger, http.StatusBadRequest, "Unknown grade level", "", nil)
		return
	}

	stories, err := h.stories.Stories(r.Context(), query.Get("category"), grade)
	if err != nil {
		respondError(w, h.logger, err, "failed to list stories")
		return
	}
	respondJSON(w, http.StatusOK, stories)
}

// Story handles GET /api/stories/{id}
func (h *ContentHandler) Story(w http.ResponseWriter, r *http.Request) {
	story, err := h.stories.Story(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, err, "failed to get story")
		return
	}
	respondJSON(w, http.StatusOK, story)
}

// Download handles POST /api/stories/{id}/download: the story's remote audio
// is fetched into the local cache.
func (h *ContentHandler) Download(w http.ResponseWriter, r *http.Request) {
	story, err := h.stories.Story(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, err, "failed to get story")
		return
	}

	handle, err := h.locator.Download(r.Context(), story)
	if err != nil {
		respondError(w, h.logger, err, "failed to download audio")
		return
	}

	if claims := GetDeviceFromContext(r.Context()); claims != nil && h.events != nil {
		h.events.Record(r.Context(), claims.Subject, story.ID, models.EventStoryDownloaded, nil)
	}
	respondJSON(w, http.StatusOK, handle)
}

type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	RemoteEnabled bool      `json:"remote_enabled"`
	RemoteHealthy bool      `json:"remote_healthy"`
}

// Health handles GET /api/health
func (h *ContentHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		RemoteEnabled: h.sync.Enabled(),
	}
	if resp.RemoteEnabled {
		resp.RemoteHealthy = h.sync.ContentHealthy(r.Context())
	}
	respondJSON(w, http.StatusOK, resp)
}

type audioHealthResponse struct {
	Status        string   `json:"status"`
	TotalStories  int      `json:"total_stories"`
	MissingFiles  []string `json:"missing_files"`
	RemoteHealthy bool     `json:"remote_healthy"`
}

// AudioHealth handles GET /api/health/audio. Stories without a local file
// are reported; they still play when their audio reference is a URL.
func (h *ContentHandler) AudioHealth(w http.ResponseWriter, r *http.Request) {
	stories, err := h.stories.Stories(r.Context(), "", "")
	if err != nil {
		respondError(w, h.logger, err, "failed to list stories")
		return
	}

	resp := audioHealthResponse{
		Status:       "healthy",
		TotalStories: len(stories),
		MissingFiles: h.locator.MissingBundled(stories),
	}
	if resp.MissingFiles == nil {
		resp.MissingFiles = []string{}
	}
	if len(resp.MissingFiles) > 0 {
		resp.Status = "degraded"
	}
	if h.sync.Enabled() {
		resp.RemoteHealthy = h.sync.AudioHealthy(r.Context())
	}
	respondJSON(w, http.StatusOK, resp)
}

