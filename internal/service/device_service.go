package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/repository"
	"storysage/internal/security"
)

// AnonymousUserPrefix starts every generated user id.
const AnonymousUserPrefix = "anon_"

// Registration is the result of registering a device.
type Registration struct {
	Device    models.Device `json:"device"`
	UserID    string        `json:"user_id"`
	Token     string        `json:"token"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

// DeviceService registers client installations and authenticates their
// bearer tokens.
type DeviceService struct {
	devices *repository.DeviceRepository
	tokens  *security.TokenIssuer
	logger  *zap.Logger
	now     func() time.Time
}

// NewDeviceService creates a new device service
func NewDeviceService(deviceRepo *repository.DeviceRepository, tokens *security.TokenIssuer, logger *zap.Logger) *DeviceService {
	return &DeviceService{devices: deviceRepo, tokens: tokens, logger: logging.OrNop(logger), now: time.Now}
}

// NewAnonymousUserID returns a fresh anonymous user id.
func NewAnonymousUserID() string {
	return AnonymousUserPrefix + uuid.NewString()
}

// Register stores a device for userID, creating an anonymous user when
// userID is empty, and issues its token.
func (s *DeviceService) Register(ctx context.Context, name, platform, userID string) (*Registration, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = NewAnonymousUserID()
	}
	now := s.now().UTC()
	device := models.Device{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		Platform:   strings.TrimSpace(platform),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.devices.Create(ctx, &device); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(userID, device.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("device registered",
		zap.String("device_id", device.ID),
		zap.String("user_id", userID),
		zap.String("platform", device.Platform))
	return &Registration{Device: device, UserID: userID, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate verifies a bearer token, checks that its device still exists
// and returns the claims.
func (s *DeviceService) Authenticate(ctx context.Context, token string) (*security.DeviceClaims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	device, err := s.devices.Get(ctx, claims.DeviceID)
	if err != nil {
		return nil, errs.E(errs.ErrUnauthorized, "device.authenticate", err)
	}
	if device.UserID != claims.Subject {
		return nil, &errs.Error{Kind: errs.ErrUnauthorized, Op: "device.authenticate", Detail: "token does not match device owner"}
	}

	if err := s.devices.Touch(ctx, device.ID, s.now()); err != nil {
		s.logger.Warn("failed to update device last seen", zap.String("device_id", device.ID), zap.Error(err))
	}
	return claims, nil
}

// List returns the devices of a user
func (s *DeviceService) List(ctx context.Context, userID string) ([]models.Device, error) {
	return s.devices.ListByUser(ctx, userID)
}
