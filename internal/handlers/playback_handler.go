package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"storysage/internal/catalog"
	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/playback"
	"storysage/internal/service"
)

// PlaybackHandler controls the headless player
type PlaybackHandler struct {
	player   *playback.Player
	stories  catalog.Provider
	settings *service.SettingsService
	logger   *zap.Logger
}

// NewPlaybackHandler creates a new playback handler
func NewPlaybackHandler(player *playback.Player, stories catalog.Provider, settings *service.SettingsService, logger *zap.Logger) *PlaybackHandler {
	return &PlaybackHandler{
		player:   player,
		stories:  stories,
		settings: settings,
		logger:   logging.OrNop(logger),
	}
}

// Status handles GET /api/playback
func (h *PlaybackHandler) Status(w http.ResponseWriter, r *http.Request) {
	session, err := h.player.Current()
	if err != nil {
		respondJSON(w, http.StatusOK, playback.Status{State: playback.StateIdle})
		return
	}
	respondJSON(w, http.StatusOK, session.Status())
}

type loadRequest struct {
	StoryID string `json:"story_id"`
	// Play overrides the user's auto-play setting when set.
	Play *bool `json:"play,omitempty"`
}

// Load handles POST /api/playback/load. The previous session is stopped and
// the story is loaded at the user's preferred speed.
func (h *PlaybackHandler) Load(w http.ResponseWriter, r *http.Request) {
	var body loadRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	if body.StoryID == "" {
		respondWithError(w, h.logger, http.StatusBadRequest, "story_id is required", "", nil)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	userID := h.userID(r)
	story, err := h.stories.Story(ctx, body.StoryID)
	if err != nil {
		respondError(w, h.logger, err, "failed to get story")
		return
	}

	settings, err := h.settings.Get(ctx, userID)
	if err != nil {
		respondError(w, h.logger, err, "failed to load settings")
		return
	}

	session, err := h.player.Start(ctx, story, userID, settings.PlaybackSpeed)
	if err != nil {
		respondError(w, h.logger, err, "failed to load story")
		return
	}

	autoPlay := settings.AutoPlay
	if body.Play != nil {
		autoPlay = *body.Play
	}
	if autoPlay {
		if err := session.Play(ctx); err != nil {
			respondError(w, h.logger, err, "failed to start playback")
			return
		}
	}
	respondJSON(w, http.StatusOK, session.Status())
}

// Play handles POST /api/playback/play
func (h *PlaybackHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(ctx context.Context, s *playback.Session) error {
		return s.Play(ctx)
	})
}

// Pause handles POST /api/playback/pause
func (h *PlaybackHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(ctx context.Context, s *playback.Session) error {
		return s.Pause(ctx)
	})
}

// Stop handles POST /api/playback/stop
func (h *PlaybackHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	if err := h.player.Stop(context.WithoutCancel(r.Context())); err != nil {
		respondError(w, h.logger, err, "failed to stop playback")
		return
	}
	respondJSON(w, http.StatusOK, playback.Status{State: playback.StateIdle})
}

type seekRequest struct {
	Position float64 `json:"position"`
}

// Seek handles POST /api/playback/seek
func (h *PlaybackHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var body seekRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	h.control(w, r, func(ctx context.Context, s *playback.Session) error {
		return s.Seek(ctx, body.Position)
	})
}

type skipRequest struct {
	Direction string `json:"direction"`
}

// Skip handles POST /api/playback/skip with direction forward or backward
func (h *PlaybackHandler) Skip(w http.ResponseWriter, r *http.Request) {
	var body skipRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	h.control(w, r, func(ctx context.Context, s *playback.Session) error {
		switch body.Direction {
		case "forward":
			return s.SeekForward(ctx)
		case "backward":
			return s.SeekBackward(ctx)
		default:
			return errs.Invalid("playback.skip", "direction must be forward or backward")
		}
	})
}

type rateRequest struct {
	Rate float64 `json:"rate"`
}

// Rate handles POST /api/playback/rate
func (h *PlaybackHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var body rateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	h.control(w, r, func(_ context.Context, s *playback.Session) error {
		return s.SetRate(body.Rate)
	})
}

// Interruption handles POST /api/playback/interruption
func (h *PlaybackHandler) Interruption(w http.ResponseWriter, r *http.Request) {
	var body playback.Interruption
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	h.control(w, r, func(ctx context.Context, s *playback.Session) error {
		return s.HandleInterruption(ctx, body)
	})
}

type routeChangeRequest struct {
	Reason playback.RouteChangeReason `json:"reason"`
}

// RouteChange handles POST /api/playback/route-change
func (h *PlaybackHandler) RouteChange(w http.ResponseWriter, r *http.Request) {
	var body routeChangeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, h.logger, err, "")
		return
	}
	h.control(w, r, func(ctx context.Context, s *playback.Session) error {
		return s.HandleRouteChange(ctx, body.Reason)
	})
}

// control runs op on the caller's active session and responds with its status.
func (h *PlaybackHandler) control(w http.ResponseWriter, r *http.Request, op func(context.Context, *playback.Session) error) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := op(context.WithoutCancel(r.Context()), session); err != nil {
		respondError(w, h.logger, err, "playback control failed")
		return
	}
	respondJSON(w, http.StatusOK, session.Status())
}

func (h *PlaybackHandler) session(w http.ResponseWriter, r *http.Request) (*playback.Session, bool) {
	session, err := h.player.Current()
	if err != nil {
		respondError(w, h.logger, err, "")
		return nil, false
	}
	if session.UserID() != h.userID(r) {
		respondWithError(w, h.logger, http.StatusForbidden, "Another user is playing", "", nil)
		return nil, false
	}
	return session, true
}

func (h *PlaybackHandler) userID(r *http.Request) string {
	if claims := GetDeviceFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
