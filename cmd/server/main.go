package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storysage/internal/audio"
	"storysage/internal/catalog"
	"storysage/internal/config"
	"storysage/internal/database"
	"storysage/internal/handlers"
	"storysage/internal/logging"
	"storysage/internal/metrics"
	"storysage/internal/playback"
	"storysage/internal/remote"
	"storysage/internal/repository"
	"storysage/internal/security"
	"storysage/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startup := handlers.NewStartupStatus()
	m := metrics.New()

	// Database
	startup.SetCurrentStep(handlers.StepDatabase)
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("database connection established", zap.String("type", cfg.DatabaseType))
	startup.CompleteStep(handlers.StepDatabase)

	startup.SetCurrentStep(handlers.StepMigrations)
	var applied []string
	if cfg.MigrationsPath != "" {
		applied, err = db.MigrateDir(ctx, cfg.MigrationsPath)
	} else {
		applied, err = db.Migrate(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("migrations completed", zap.Strings("applied", applied))
	startup.CompleteStep(handlers.StepMigrations)

	// Content
	startup.SetCurrentStep(handlers.StepCatalog)
	local := catalog.NewRepository(os.DirFS(cfg.ContentPath), logger.Named("catalog"))
	cat, err := local.Load(ctx)
	if err != nil {
		logger.Warn("serving fallback catalog", zap.Error(err))
	}
	if cat != nil {
		m.SetCatalogSource(string(cat.Source))
	}

	var remoteClient *remote.Client
	if cfg.RemoteEnabled() {
		remoteClient, err = remote.New(cfg.RemoteBaseURL, cfg.RemoteTimeout,
			remote.WithClientCredentials(cfg.RemoteClientID, cfg.RemoteClientSecret, cfg.RemoteTokenURL, cfg.RemoteTimeout),
			remote.WithLogger(logger.Named("remote")))
		if err != nil {
			return fmt.Errorf("failed to create remote client: %w", err)
		}
	}

	var stories catalog.Provider = local
	if remoteClient != nil && !cfg.UseLocalResources {
		rc := service.NewRemoteCatalog(remoteClient, local, logger.Named("catalog"))
		rc.OnResult(m.RemoteResult)
		stories = rc
		m.SetCatalogSource("remote")
	}

	var httpClient *http.Client
	if remoteClient != nil {
		httpClient = remoteClient.HTTPClient()
	}
	cache := audio.NewCache(cfg.AudioCachePath, httpClient, logger.Named("audio"))
	locator := audio.NewLocator(cfg.BundledAudioPath, cache, logger.Named("audio"))
	locator.OnResolve(func(k audio.Kind) { m.AudioResolved(string(k)) })
	startup.CompleteStep(handlers.StepCatalog)

	// Services
	startup.SetCurrentStep(handlers.StepServices)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	progressService := service.NewProgressService(db, repository.NewProgressRepository(db), loc, logger.Named("progress"))
	eventService := service.NewEventService(repository.NewEventRepository(db), logger.Named("events"))
	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.NotifyEmail, logger.Named("email"))
	if err != nil {
		return err
	}
	achievementService := service.NewAchievementService(progressService, repository.NewAchievementRepository(db), eventService, emailService, stories, logger.Named("achievements"))
	settingsService := service.NewSettingsService(repository.NewSettingsRepository(db), logger.Named("settings"))

	secret := cfg.JWTSecret
	if secret == "" {
		secret, err = ephemeralSecret()
		if err != nil {
			return err
		}
		logger.Warn("JWT_SECRET not set, device tokens will not survive a restart")
	}
	tokens, err := security.NewTokenIssuer(secret, cfg.TokenDuration)
	if err != nil {
		return err
	}
	deviceService := service.NewDeviceService(repository.NewDeviceRepository(db), tokens, logger.Named("devices"))

	var syncClient service.SyncClient
	if remoteClient != nil {
		syncClient = remoteClient
	}
	syncService := service.NewSyncService(syncClient, service.SyncOptions{
		MaxAttempts: cfg.SyncMaxAttempts,
		BaseDelay:   cfg.SyncBaseDelay,
		QueueSize:   cfg.SyncQueueSize,
	}, logger.Named("sync"))
	syncService.OnResult(m.SyncResult)

	progressService.Observe(achievementService.HandleProgress)
	progressService.Observe(eventService.HandleProgress)
	progressService.Observe(syncService.HandleProgress)
	progressService.Observe(func(_ context.Context, change service.ProgressChange) {
		m.ProgressWritten(progressKind(change))
	})

	player := playback.NewPlayer(locator,
		func() playback.Engine { return playback.NewVirtualEngine(playback.SystemClock) },
		playback.NewLockedDevice(cfg.DeviceLockPath),
		progressService.Recorder,
		logger.Named("playback"),
		playback.Options{})
	player.OnStateChange(func(from, to playback.State) { m.PlaybackTransition(string(from), string(to)) })

	syncService.Start(ctx)
	go eventService.Watch(ctx, player.Bus())
	go cleanupAudioCache(ctx, cache, cfg.AudioCacheMaxAge, logger)

	limiter := security.NewRateLimiter(120, 20)
	defer limiter.Close()
	startup.CompleteStep(handlers.StepServices)

	router := handlers.NewRouter(handlers.Handlers{
		Middleware: handlers.NewMiddleware(deviceService, limiter, m, logger.Named("http")),
		Content:    handlers.NewContentHandler(stories, locator, syncService, eventService, logger.Named("http")),
		Progress:   handlers.NewProgressHandler(progressService, stories, achievementService, eventService, logger.Named("http")),
		Settings:   handlers.NewSettingsHandler(settingsService, logger.Named("http")),
		Devices:    handlers.NewDeviceHandler(deviceService, logger.Named("http")),
		Playback:   handlers.NewPlaybackHandler(player, stories, settingsService, logger.Named("http")),
		Stream:     handlers.NewStreamHandler(player.Bus(), m, logger.Named("http")),
		Startup:    startup,
		Metrics:    m,
	})

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	startup.MarkReady()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := player.Stop(shutdownCtx); err != nil && !errors.Is(err, playback.ErrNoSession) {
		logger.Warn("failed to stop playback", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	syncService.Wait()
	emailService.Close()
	return nil
}

func progressKind(change service.ProgressChange) string {
	switch {
	case change.FavoriteOnly:
		return "favorite"
	case change.NewlyCompleted:
		return "completion"
	case change.PlayCounted:
		return "play"
	default:
		return "position"
	}
}

func ephemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// cleanupAudioCache periodically removes cached audio older than maxAge
func cleanupAudioCache(ctx context.Context, cache *audio.Cache, maxAge time.Duration, logger *zap.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		removed, err := cache.CleanupOlderThan(maxAge, time.Now())
		if err != nil {
			logger.Warn("audio cache cleanup failed", zap.Error(err))
		} else if removed > 0 {
			logger.Info("audio cache cleaned up", zap.Int("removed", removed))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
