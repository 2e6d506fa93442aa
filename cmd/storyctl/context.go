package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"storysage/internal/audio"
	"storysage/internal/catalog"
	"storysage/internal/config"
	"storysage/internal/database"
	"storysage/internal/logging"
)

// commandContext lazily builds the pieces subcommands share so commands that
// never touch the database do not open it.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger

	db *database.DB
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = os.Getenv("STORYSAGE_CONFIG")
		}
		c.config, c.configErr = config.LoadFrom(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() *zap.Logger {
	c.loggerOnce.Do(func() {
		level := "warn"
		if cfg, err := c.ensureConfig(); err == nil && cfg.LogLevel == "debug" {
			level = cfg.LogLevel
		}
		logger, err := logging.New(level, "console")
		if err != nil {
			logger = zap.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// database opens and migrates the configured database once per invocation.
func (c *commandContext) database(ctx context.Context) (*database.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.MigrationsPath != "" {
		_, err = db.MigrateDir(ctx, cfg.MigrationsPath)
	} else {
		_, err = db.Migrate(ctx)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	c.db = db
	return db, nil
}

func (c *commandContext) catalog() (*catalog.Repository, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return catalog.NewRepository(os.DirFS(cfg.ContentPath), c.ensureLogger().Named("catalog")), nil
}

func (c *commandContext) cache() (*audio.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return audio.NewCache(cfg.AudioCachePath, nil, c.ensureLogger().Named("audio")), nil
}

func (c *commandContext) close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
