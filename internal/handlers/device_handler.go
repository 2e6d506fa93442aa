package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/service"
	"storysage/internal/validation"
)

// DeviceHandler registers client installations
type DeviceHandler struct {
	devices *service.DeviceService
	logger  *zap.Logger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, logger: logging.OrNop(logger)}
}

type registerDeviceRequest struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	UserID   string `json:"user_id"`
}

// Register handles POST /api/devices. Without a user_id an anonymous user
// is created. Claiming an existing user id requires a token of that user.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerDeviceRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	for _, err := range []error{validation.ValidateDeviceName(body.Name), validation.ValidatePlatform(body.Platform)} {
		if err != nil {
			respondWithError(w, h.logger, http.StatusBadRequest, err.Error(), "", nil)
			return
		}
	}

	if userID := strings.TrimSpace(body.UserID); userID != "" {
		claims, err := h.devices.Authenticate(r.Context(), bearerToken(r))
		if err != nil || claims.Subject != userID {
			respondWithError(w, h.logger, http.StatusForbidden, ErrForbidden, "device registration for existing user rejected", err)
			return
		}
	}

	reg, err := h.devices.Register(r.Context(), body.Name, body.Platform, body.UserID)
	if err != nil {
		respondError(w, h.logger, err, "failed to register device")
		return
	}
	respondJSON(w, http.StatusCreated, reg)
}

// List handles GET /api/devices/{userId}
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.List(r.Context(), r.PathValue("userId"))
	if err != nil {
		respondError(w, h.logger, err, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	respondJSON(w, http.StatusOK, devices)
}
