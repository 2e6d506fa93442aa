package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/service"
)

// SettingsHandler serves per-user playback preferences
type SettingsHandler struct {
	settings *service.SettingsService
	logger   *zap.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings *service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logging.OrNop(logger)}
}

// Get handles GET /api/settings/{userId}
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context(), r.PathValue("userId"))
	if err != nil {
		respondError(w, h.logger, err, "failed to load settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/settings/{userId}. Omitted fields keep their value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, h.logger, err, "")
		return
	}

	settings, err := h.settings.Update(r.Context(), r.PathValue("userId"), patch)
	if err != nil {
		respondError(w, h.logger, err, "failed to update settings")
		return
	}
	respondMessage(w, http.StatusOK, "Settings updated", settings)
}
