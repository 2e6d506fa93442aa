package handlers

import (
	"net/http"

	"storysage/internal/metrics"
)

// Handlers groups everything the router serves.
type Handlers struct {
	Middleware *Middleware
	Content    *ContentHandler
	Progress   *ProgressHandler
	Settings   *SettingsHandler
	Devices    *DeviceHandler
	Playback   *PlaybackHandler
	Stream     *StreamHandler
	Startup    *StartupStatus
	Metrics    *metrics.Metrics
}

// NewRouter registers every API route and wraps the mux with request logging.
func NewRouter(h Handlers) http.Handler {
	mw := h.Middleware
	mux := http.NewServeMux()

	// Public content routes
	mux.HandleFunc("GET /api/categories", h.Content.Categories)
	mux.HandleFunc("GET /api/stories", h.Content.Stories)
	mux.HandleFunc("GET /api/stories/{id}", h.Content.Story)
	mux.HandleFunc("POST /api/stories/{id}/download", mw.RequireDevice(mw.RateLimit(h.Content.Download)))
	mux.HandleFunc("GET /api/health", h.Content.Health)
	mux.HandleFunc("GET /api/health/audio", h.Content.AudioHealth)
	if h.Startup != nil {
		mux.HandleFunc("GET /api/ready", h.Startup.ShowStartupStatus)
	}

	// Devices
	mux.HandleFunc("POST /api/devices", mw.RateLimit(h.Devices.Register))
	mux.HandleFunc("GET /api/devices/{userId}", mw.RequireDevice(h.Devices.List))

	// Progress routes, scoped to the token's user
	mux.HandleFunc("GET /api/progress/{userId}", mw.RequireDevice(h.Progress.UserProgress))
	mux.HandleFunc("GET /api/progress/{userId}/recent", mw.RequireDevice(h.Progress.Recent))
	mux.HandleFunc("GET /api/progress/{userId}/completed", mw.RequireDevice(h.Progress.Completed))
	mux.HandleFunc("GET /api/progress/{userId}/favorites", mw.RequireDevice(h.Progress.Favorites))
	mux.HandleFunc("GET /api/progress/{userId}/stats", mw.RequireDevice(h.Progress.Stats))
	mux.HandleFunc("GET /api/progress/{userId}/events", mw.RequireDevice(h.Progress.Events))
	mux.HandleFunc("POST /api/progress/{userId}/{storyId}", mw.RequireDevice(mw.RateLimit(h.Progress.UpdateProgress)))
	mux.HandleFunc("POST /api/progress/{userId}/{storyId}/favorite", mw.RequireDevice(mw.RateLimit(h.Progress.SetFavorite)))
	mux.HandleFunc("GET /api/achievements/{userId}", mw.RequireDevice(h.Progress.Achievements))

	// Settings
	mux.HandleFunc("GET /api/settings/{userId}", mw.RequireDevice(h.Settings.Get))
	mux.HandleFunc("PUT /api/settings/{userId}", mw.RequireDevice(mw.RateLimit(h.Settings.Update)))

	// Playback control
	mux.HandleFunc("GET /api/playback", mw.RequireDevice(h.Playback.Status))
	mux.HandleFunc("POST /api/playback/load", mw.RequireDevice(mw.RateLimit(h.Playback.Load)))
	mux.HandleFunc("POST /api/playback/play", mw.RequireDevice(h.Playback.Play))
	mux.HandleFunc("POST /api/playback/pause", mw.RequireDevice(h.Playback.Pause))
	mux.HandleFunc("POST /api/playback/stop", mw.RequireDevice(h.Playback.Stop))
	mux.HandleFunc("POST /api/playback/seek", mw.RequireDevice(h.Playback.Seek))
	mux.HandleFunc("POST /api/playback/skip", mw.RequireDevice(h.Playback.Skip))
	mux.HandleFunc("POST /api/playback/rate", mw.RequireDevice(h.Playback.Rate))
	mux.HandleFunc("POST /api/playback/interruption", mw.RequireDevice(h.Playback.Interruption))
	mux.HandleFunc("POST /api/playback/route-change", mw.RequireDevice(h.Playback.RouteChange))
	mux.HandleFunc("GET /api/playback/events", mw.RequireDevice(h.Stream.Events))

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics.Handler())
	}

	return mw.Logging(mux)
}
