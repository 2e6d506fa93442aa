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

// DeviceRepository handles devices database operations
type DeviceRepository struct {
	db database.DBTX
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db database.DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create stores a new device
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (id, user_id, name, platform, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, d.ID, d.UserID, d.Name, d.Platform, d.CreatedAt.UTC(), d.LastSeenAt.UTC())
	if err != nil {
		return errs.Persistence("devices.create", err)
	}
	return nil
}

// Get retrieves a device by ID
func (r *DeviceRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	query := `
		SELECT id, user_id, name, platform, created_at, last_seen_at
		FROM devices
		WHERE id = ?
	`

	d := &models.Device{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.UserID, &d.Name, &d.Platform, &d.CreatedAt, &d.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("devices.get", "device %q", id)
	}
	if err != nil {
		return nil, errs.Persistence("devices.get", err)
	}
	return d, nil
}

// Touch records that a device was seen
func (r *DeviceRepository) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE devices SET last_seen_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return errs.Persistence("devices.touch", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errs.NotFound("devices.touch", "device %q", id)
	}
	return nil
}

// ListByUser retrieves a user's devices, most recently seen first
func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]models.Device, error) {
	return r.list(ctx, "devices.list", `WHERE user_id = ? ORDER BY last_seen_at DESC`, userID)
}

// ListAll retrieves every device, for backups
func (r *DeviceRepository) ListAll(ctx context.Context) ([]models.Device, error) {
	return r.list(ctx, "devices.all", `ORDER BY created_at`)
}

// Restore stores an exported device unless its id already exists
func (r *DeviceRepository) Restore(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (id, user_id, name, platform, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := database.ExecInsertIgnore(ctx, r.db, query, d.ID, d.UserID, d.Name, d.Platform, d.CreatedAt.UTC(), d.LastSeenAt.UTC())
	if err != nil {
		return errs.Persistence("devices.restore", err)
	}
	return nil
}

func (r *DeviceRepository) list(ctx context.Context, op, where string, args ...any) ([]models.Device, error) {
	query := `SELECT id, user_id, name, platform, created_at, last_seen_at FROM devices ` + where

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Persistence(op, err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Platform, &d.CreatedAt, &d.LastSeenAt); err != nil {
			return nil, errs.Persistence(op, err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence(op, err)
	}
	return devices, nil
}
