package playback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storysage/internal/audio"
	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
)

// Playback rate bounds.
const (
	MinRate = 0.5
	MaxRate = 2.0
)

// Recorder persists progress for one user on behalf of a session.
type Recorder interface {
	// SavedPosition returns the stored position for a story, if any.
	SavedPosition(ctx context.Context, storyID string) (float64, bool)
	// BeginPlay records the start of a play and counts it.
	BeginPlay(ctx context.Context, storyID string, position float64) error
	// SavePosition records a position checkpoint without counting a play.
	SavePosition(ctx context.Context, storyID string, position float64, completed bool) error
}

// Options tune session timing.
type Options struct {
	// TickInterval is the position update cadence while playing.
	TickInterval time.Duration
	// SaveEvery is the number of ticks between background progress saves.
	SaveEvery int
	// SkipInterval is the seekForward/seekBackward step in seconds.
	SkipInterval float64
	// ManualTicks disables the internal ticker; callers drive Tick.
	ManualTicks bool
}

// DefaultOptions ticks every half second and saves every five seconds.
func DefaultOptions() Options {
	return Options{
		TickInterval: 500 * time.Millisecond,
		SaveEvery:    10,
		SkipInterval: 15,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.SaveEvery <= 0 {
		o.SaveEvery = d.SaveEvery
	}
	if o.SkipInterval <= 0 {
		o.SkipInterval = d.SkipInterval
	}
	return o
}

// Deps are the collaborators of a session.
type Deps struct {
	Engine   Engine
	Device   Device
	Recorder Recorder
	Bus      *Bus
	Logger   *zap.Logger
	// OnStateChange is called for every transition, under the session lock.
	OnStateChange func(from, to State)
}

// Status is a point-in-time view of a session.
type Status struct {
	StoryID   string       `json:"story_id"`
	UserID    string       `json:"user_id"`
	Title     string       `json:"title"`
	State     State        `json:"state"`
	Position  float64      `json:"position"`
	Duration  float64      `json:"duration"`
	Rate      float64      `json:"rate"`
	Completed bool         `json:"completed"`
	Audio     audio.Handle `json:"audio"`
}

// Session is one story's playback. All methods are safe for concurrent use;
// progress writes happen under the session lock so they apply in order.
type Session struct {
	story  models.Story
	userID string
	deps   Deps
	opts   Options
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	handle      audio.Handle
	rate        float64
	ticks       int
	completed   bool
	playCounted bool
	interrupted bool
	deviceHeld  bool
	stopTick    chan struct{}
}

// NewSession creates an idle session for story.
func NewSession(story models.Story, userID string, deps Deps, opts Options) *Session {
	if deps.Device == nil {
		deps.Device = NopDevice{}
	}
	if deps.Bus == nil {
		deps.Bus = NewBus()
	}
	logger := logging.OrNop(deps.Logger).With(
		zap.String("story_id", story.ID),
		zap.String("user_id", userID))
	return &Session{
		story:  story,
		userID: userID,
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger,
		state:  StateIdle,
		rate:   1,
	}
}

// Story returns the story being played.
func (s *Session) Story() models.Story { return s.story }

// UserID returns the listener.
func (s *Session) UserID() string { return s.userID }

// Load opens the audio and restores the saved position when it lies within
// [0, duration).
func (s *Session) Load(ctx context.Context, h audio.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle && s.state != StateFailed {
		return invalidTransition("session.load", s.state)
	}
	s.handle = h
	s.setStateLocked(StateLoading)

	if err := s.deps.Engine.Open(ctx, h, s.story.Duration); err != nil {
		s.setStateLocked(StateFailed)
		s.publishErrorLocked(err)
		return errs.Playback("session.load", err)
	}

	if s.deps.Recorder != nil {
		if pos, ok := s.deps.Recorder.SavedPosition(ctx, s.story.ID); ok && pos > 0 && pos < s.duration() {
			s.deps.Engine.Seek(pos)
			s.logger.Debug("restored saved position", zap.Float64("position", pos))
		}
	}

	s.setStateLocked(StateReady)
	return nil
}

// Play starts or resumes playback. When the output device cannot be
// activated the error is reported and the state is left unchanged.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playLocked(ctx)
}

func (s *Session) playLocked(ctx context.Context) error {
	if s.state != StateReady && s.state != StatePaused {
		return invalidTransition("session.play", s.state)
	}

	if !s.deviceHeld {
		if err := s.deps.Device.Activate(); err != nil {
			s.publishErrorLocked(err)
			return errs.Playback("session.play", err)
		}
		s.deviceHeld = true
	}
	if err := s.deps.Engine.Play(s.rate); err != nil {
		s.publishErrorLocked(err)
		return errs.Playback("session.play", err)
	}

	if !s.playCounted && s.deps.Recorder != nil {
		if err := s.deps.Recorder.BeginPlay(ctx, s.story.ID, s.deps.Engine.Position()); err != nil {
			s.logger.Warn("failed to record play start", zap.Error(err))
		}
	}
	s.playCounted = true
	s.interrupted = false

	s.setStateLocked(StatePlaying)
	s.startTickerLocked()
	return nil
}

// Pause pauses playback and saves the position immediately.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseLocked(ctx)
}

func (s *Session) pauseLocked(ctx context.Context) error {
	if s.state != StatePlaying {
		return invalidTransition("session.pause", s.state)
	}
	s.stopTickerLocked()
	s.deps.Engine.Pause()
	s.saveLocked(ctx, s.deps.Engine.Position(), false)
	s.setStateLocked(StatePaused)
	return nil
}

// Stop tears the session down from any state. It is idempotent.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return
	}
	s.stopTickerLocked()
	if (s.state == StatePlaying || s.state == StatePaused) && !s.completed {
		s.saveLocked(ctx, s.deps.Engine.Position(), false)
	}
	s.deps.Engine.Close()
	s.releaseDeviceLocked()
	s.setStateLocked(StateIdle)
}

// Seek moves to position, clamped to [0, duration]. Seeking back from the
// end of the story leaves the session paused.
func (s *Session) Seek(ctx context.Context, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(position)
}

func (s *Session) seekLocked(position float64) error {
	switch s.state {
	case StateReady, StatePlaying, StatePaused, StateEnded:
	default:
		return invalidTransition("session.seek", s.state)
	}

	position = clamp(position, 0, s.duration())
	s.deps.Engine.Seek(position)
	if s.state == StateEnded && position < s.duration() {
		s.setStateLocked(StatePaused)
	}
	s.publishLocked(Event{Type: EventTimeUpdate})
	return nil
}

// SeekForward skips ahead by the skip interval.
func (s *Session) SeekForward(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(s.deps.Engine.Position() + s.opts.SkipInterval)
}

// SeekBackward skips back by the skip interval.
func (s *Session) SeekBackward(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(s.deps.Engine.Position() - s.opts.SkipInterval)
}

// SetRate changes the playback rate. It applies immediately while playing
// and is otherwise kept for the next Play.
func (s *Session) SetRate(rate float64) error {
	if rate < MinRate || rate > MaxRate {
		return errs.Invalid("session.rate", "rate %.2f outside [%.1f, %.1f]", rate, MinRate, MaxRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
	if s.state == StatePlaying {
		s.deps.Engine.SetRate(rate)
	}
	s.publishLocked(Event{Type: EventTimeUpdate})
	return nil
}

// Tick samples the position while playing. Every SaveEvery-th tick saves
// progress; reaching the end completes the story.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked(ctx)
}

// tickFrom runs a ticker-driven tick unless the ticker owning stop has
// been stopped since it fired.
func (s *Session) tickFrom(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopTick != stop {
		return
	}
	s.tickLocked(context.Background())
}

func (s *Session) tickLocked(ctx context.Context) {
	if s.state != StatePlaying {
		return
	}
	s.ticks++
	pos := s.deps.Engine.Position()
	s.publishLocked(Event{Type: EventTimeUpdate})

	if pos >= s.duration() {
		s.finishLocked(ctx)
		return
	}
	if s.ticks%s.opts.SaveEvery == 0 {
		s.saveLocked(ctx, pos, false)
	}
}

func (s *Session) finishLocked(ctx context.Context) {
	s.stopTickerLocked()
	s.deps.Engine.Pause()

	if !s.completed {
		s.completed = true
		s.saveLocked(ctx, s.duration(), true)
	}
	s.releaseDeviceLocked()
	s.setStateLocked(StateEnded)
	s.publishLocked(Event{Type: EventCompleted})
	s.logger.Info("story completed")
}

// HandleInterruption pauses when another client takes the output and
// resumes afterwards when the interruption ends with a resume hint.
func (s *Session) HandleInterruption(ctx context.Context, in Interruption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch in.Type {
	case InterruptionBegan:
		if s.state != StatePlaying {
			return nil
		}
		if err := s.pauseLocked(ctx); err != nil {
			return err
		}
		s.interrupted = true
		return nil
	case InterruptionEnded:
		resume := s.interrupted && in.ShouldResume && s.state == StatePaused
		s.interrupted = false
		if resume {
			return s.playLocked(ctx)
		}
		return nil
	default:
		return errs.Invalid("session.interruption", "unknown interruption type %q", in.Type)
	}
}

// HandleRouteChange pauses when the current output device disappears.
func (s *Session) HandleRouteChange(ctx context.Context, reason RouteChangeReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch reason {
	case RouteOldDeviceUnavailable:
		if s.state == StatePlaying {
			return s.pauseLocked(ctx)
		}
		return nil
	case RouteNewDeviceAvailable, RouteCategoryChange:
		return nil
	default:
		return errs.Invalid("session.route_change", "unknown route change reason %q", reason)
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		StoryID:   s.story.ID,
		UserID:    s.userID,
		Title:     s.story.Title,
		State:     s.state,
		Position:  s.deps.Engine.Position(),
		Duration:  s.duration(),
		Rate:      s.rate,
		Completed: s.completed,
		Audio:     s.handle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) duration() float64 {
	if d := s.deps.Engine.Duration(); d > 0 {
		return d
	}
	return s.story.Duration
}

func (s *Session) saveLocked(ctx context.Context, position float64, completed bool) {
	if s.deps.Recorder == nil {
		return
	}
	if err := s.deps.Recorder.SavePosition(ctx, s.story.ID, position, completed); err != nil {
		s.logger.Warn("failed to save progress",
			zap.Float64("position", position),
			zap.Bool("completed", completed),
			zap.Error(err))
	}
}

func (s *Session) releaseDeviceLocked() {
	if !s.deviceHeld {
		return
	}
	if err := s.deps.Device.Deactivate(); err != nil {
		s.logger.Warn("failed to release output device", zap.Error(err))
	}
	s.deviceHeld = false
}

func (s *Session) startTickerLocked() {
	if s.opts.ManualTicks || s.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	s.stopTick = stop
	interval := s.opts.TickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.tickFrom(stop)
			}
		}
	}()
}

func (s *Session) stopTickerLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.deps.OnStateChange != nil {
		s.deps.OnStateChange(from, to)
	}
	s.publishLocked(Event{Type: EventStateChanged, PrevState: from})
}

func (s *Session) publishErrorLocked(err error) {
	s.publishLocked(Event{Type: EventError, Message: err.Error()})
}

func (s *Session) publishLocked(e Event) {
	e.StoryID = s.story.ID
	e.UserID = s.userID
	e.State = s.state
	e.Position = s.deps.Engine.Position()
	e.Duration = s.duration()
	e.Rate = s.rate
	e.Timestamp = time.Now().UTC()
	s.deps.Bus.Publish(e)
}
