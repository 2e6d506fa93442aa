package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"storysage/internal/database"
	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/repository"
)

// BackupVersion is written into every export.
const BackupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version      string                           `json:"version"`
	ExportedAt   time.Time                        `json:"exported_at"`
	DatabaseType string                           `json:"database_type"`
	Progress     []models.ProgressRecord          `json:"progress"`
	Settings     []models.Settings                `json:"settings"`
	Achievements []repository.UnlockedAchievement `json:"achievements"`
	Devices      []models.Device                  `json:"devices"`
}

// BackupService exports and restores listening data
type BackupService struct {
	db     *database.DB
	logger *zap.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, logger *zap.Logger) *BackupService {
	return &BackupService{db: db, logger: logging.OrNop(logger)}
}

// Export writes a complete backup as indented JSON
func (s *BackupService) Export(ctx context.Context, w io.Writer) (*BackupData, error) {
	backup := &BackupData{
		Version:      BackupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: "universal",
	}

	var err error
	if backup.Progress, err = repository.NewProgressRepository(s.db).ListAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to export progress: %w", err)
	}
	if backup.Settings, err = repository.NewSettingsRepository(s.db).ListAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to export settings: %w", err)
	}
	if backup.Achievements, err = repository.NewAchievementRepository(s.db).ListAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to export achievements: %w", err)
	}
	if backup.Devices, err = repository.NewDeviceRepository(s.db).ListAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to export devices: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}

	s.logger.Info("database exported",
		zap.Int("progress", len(backup.Progress)),
		zap.Int("settings", len(backup.Settings)),
		zap.Int("achievements", len(backup.Achievements)),
		zap.Int("devices", len(backup.Devices)))
	return backup, nil
}

// ExportFile creates a complete backup of the database in a file
func (s *BackupService) ExportFile(ctx context.Context, outputPath string) (*BackupData, error) {
	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	return s.Export(ctx, file)
}

// Import restores a backup in a single transaction. Progress and settings
// rows replace existing rows with the same key; awards and devices that
// already exist are kept.
func (s *BackupService) Import(ctx context.Context, r io.Reader) (*BackupData, error) {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, errs.Malformed("backup.import", err)
	}
	if backup.Version != BackupVersion {
		return nil, errs.Invalid("backup.import", "unsupported backup version %q", backup.Version)
	}

	s.logger.Info("importing backup",
		zap.String("version", backup.Version),
		zap.Time("exported_at", backup.ExportedAt))

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		progress := repository.NewProgressRepository(tx)
		for i := range backup.Progress {
			if err := progress.Save(ctx, &backup.Progress[i]); err != nil {
				return fmt.Errorf("failed to import progress: %w", err)
			}
		}

		settings := repository.NewSettingsRepository(tx)
		for i := range backup.Settings {
			if err := settings.Save(ctx, &backup.Settings[i]); err != nil {
				return fmt.Errorf("failed to import settings: %w", err)
			}
		}

		achievements := repository.NewAchievementRepository(tx)
		for _, a := range backup.Achievements {
			if err := achievements.Restore(ctx, a); err != nil {
				return fmt.Errorf("failed to import achievements: %w", err)
			}
		}

		devices := repository.NewDeviceRepository(tx)
		for i := range backup.Devices {
			if err := devices.Restore(ctx, &backup.Devices[i]); err != nil {
				return fmt.Errorf("failed to import devices: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("database import completed",
		zap.Int("progress", len(backup.Progress)),
		zap.Int("settings", len(backup.Settings)),
		zap.Int("achievements", len(backup.Achievements)),
		zap.Int("devices", len(backup.Devices)))
	return &backup, nil
}

// ImportFile restores a backup from a file
func (s *BackupService) ImportFile(ctx context.Context, inputPath string) (*BackupData, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.Import(ctx, file)
}
