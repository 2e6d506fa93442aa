package playback

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storysage/internal/audio"
	"storysage/internal/logging"
	"storysage/internal/models"
)

// Resolver maps a story to playable audio.
type Resolver interface {
	Resolve(story models.Story) (audio.Handle, error)
}

// RecorderFunc returns the progress recorder for a user.
type RecorderFunc func(userID string) Recorder

// Player owns the single active session. Starting a story tears down the
// previous session before the new one loads.
type Player struct {
	resolver  Resolver
	newEngine func() Engine
	device    Device
	recorders RecorderFunc
	bus       *Bus
	logger    *zap.Logger
	opts      Options

	onStateChange func(from, to State)

	mu      sync.Mutex
	current *Session
}

// NewPlayer creates a player. newEngine is called once per session.
func NewPlayer(resolver Resolver, newEngine func() Engine, device Device, recorders RecorderFunc, logger *zap.Logger, opts Options) *Player {
	if device == nil {
		device = NopDevice{}
	}
	return &Player{
		resolver:  resolver,
		newEngine: newEngine,
		device:    device,
		recorders: recorders,
		bus:       NewBus(),
		logger:    logging.OrNop(logger),
		opts:      opts,
	}
}

// Bus returns the event bus shared by all sessions of this player.
func (p *Player) Bus() *Bus { return p.bus }

// OnStateChange registers a hook called on every session state transition.
func (p *Player) OnStateChange(fn func(from, to State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStateChange = fn
}

// Start resolves the story's audio, stops the current session and loads a
// new one at the given initial rate. A failed load is kept as the current
// session so its state can be inspected.
func (p *Player) Start(ctx context.Context, story models.Story, userID string, rate float64) (*Session, error) {
	h, err := p.resolver.Resolve(story)
	if err != nil {
		p.bus.Publish(Event{
			Type:     EventError,
			StoryID:  story.ID,
			UserID:   userID,
			State:    StateFailed,
			Duration: story.Duration,
			Message:  err.Error(),
		})
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.current.Stop(ctx)
	}

	var recorder Recorder
	if p.recorders != nil {
		recorder = p.recorders(userID)
	}
	s := NewSession(story, userID, Deps{
		Engine:        p.newEngine(),
		Device:        p.device,
		Recorder:      recorder,
		Bus:           p.bus,
		Logger:        p.logger,
		OnStateChange: p.onStateChange,
	}, p.opts)
	if rate >= MinRate && rate <= MaxRate {
		s.rate = rate
	}
	p.current = s

	if err := s.Load(ctx, h); err != nil {
		return s, err
	}
	p.logger.Info("story loaded",
		zap.String("story_id", story.ID),
		zap.String("user_id", userID),
		zap.String("audio_kind", string(h.Kind)))
	return s, nil
}

// Current returns the active session or ErrNoSession.
func (p *Player) Current() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, ErrNoSession
	}
	return p.current, nil
}

// Stop stops and discards the active session.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ErrNoSession
	}
	p.current.Stop(ctx)
	p.current = nil
	return nil
}
