package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"storysage/internal/logging"
	"storysage/internal/models"
	"storysage/internal/remote"
)

// Sync outcomes reported to the result hook.
const (
	SyncPushed  = "pushed"
	SyncFailed  = "failed"
	SyncDropped = "dropped"
)

// SyncClient is the remote API surface used for progress sync.
type SyncClient interface {
	UpdateProgress(ctx context.Context, userID, storyID string, u models.ProgressUpdate) error
	Progress(ctx context.Context, userID string) (*models.UserProgress, error)
	Health(ctx context.Context) error
	AudioHealth(ctx context.Context) error
}

// SyncOptions tune the push worker.
type SyncOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	QueueSize   int
	// PushesPerMinute paces requests to the remote service.
	PushesPerMinute int
}

type pushJob struct {
	userID  string
	storyID string
	update  models.ProgressUpdate
}

// SyncService mirrors local progress to the remote service. Pushes are
// fire-and-forget: they are queued, sent in order by a single worker and
// retried with exponential backoff. Failures are logged, never returned.
type SyncService struct {
	client  SyncClient
	opts    SyncOptions
	limiter *rate.Limiter
	logger  *zap.Logger

	queue    chan pushJob
	sleep func(ctx context.Context, d time.Duration) error

	hookMu   sync.RWMutex
	onResult func(outcome string)

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewSyncService creates a sync service. A nil client disables sync.
func NewSyncService(client SyncClient, opts SyncOptions, logger *zap.Logger) *SyncService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Minute
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.PushesPerMinute < 1 {
		opts.PushesPerMinute = 120
	}

	return &SyncService{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.PushesPerMinute)), opts.PushesPerMinute),
		logger:  logging.OrNop(logger),
		queue:   make(chan pushJob, opts.QueueSize),
		sleep:   sleepWithContext,
	}
}

// Enabled reports whether a remote service is configured.
func (s *SyncService) Enabled() bool {
	return s != nil && s.client != nil
}

// OnResult registers a hook called with the outcome of every push.
func (s *SyncService) OnResult(fn func(outcome string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onResult = fn
}

// Start runs the push worker until ctx is done. It is a no-op when sync is
// disabled or already started.
func (s *SyncService) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx)
		}()
	})
}

// Wait blocks until the worker has exited.
func (s *SyncService) Wait() {
	s.wg.Wait()
}

// PushProgress queues an update. It never blocks; when the queue is full the
// update is dropped and false is returned.
func (s *SyncService) PushProgress(userID, storyID string, u models.ProgressUpdate) bool {
	if !s.Enabled() {
		return false
	}
	select {
	case s.queue <- pushJob{userID: userID, storyID: storyID, update: u}:
		return true
	default:
		s.logger.Warn("sync queue full, dropping progress update",
			zap.String("user_id", userID),
			zap.String("story_id", storyID))
		s.report(SyncDropped)
		return false
	}
}

// HandleProgress is a ProgressObserver that mirrors position writes.
func (s *SyncService) HandleProgress(_ context.Context, change ProgressChange) {
	if change.FavoriteOnly {
		return
	}
	rec := change.Record
	s.PushProgress(rec.UserID, rec.StoryID, models.ProgressUpdate{
		PlaybackPosition: rec.PlaybackPosition,
		IsCompleted:      rec.IsCompleted,
		Timestamp:        rec.UpdatedAt,
	})
}

// PullProgress fetches the remote progress summary of a user.
func (s *SyncService) PullProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	if !s.Enabled() {
		return nil, errors.New("remote sync is not configured")
	}
	return s.client.Progress(ctx, userID)
}

// ContentHealthy reports remote content service liveness.
func (s *SyncService) ContentHealthy(ctx context.Context) bool {
	return s.Enabled() && s.client.Health(ctx) == nil
}

// AudioHealthy reports remote audio service liveness.
func (s *SyncService) AudioHealthy(ctx context.Context) bool {
	return s.Enabled() && s.client.AudioHealth(ctx) == nil
}

func (s *SyncService) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			if err := s.push(ctx, job); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("progress sync failed",
					zap.String("user_id", job.userID),
					zap.String("story_id", job.storyID),
					zap.Error(err))
				s.report(SyncFailed)
				continue
			}
			s.report(SyncPushed)
		}
	}
}

func (s *SyncService) push(ctx context.Context, job pushJob) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		err := s.client.UpdateProgress(ctx, job.userID, job.storyID, job.update)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == s.opts.MaxAttempts || !retryable(ctx, err) {
			break
		}
		delay := s.backoffDelay(attempt)
		s.logger.Debug("retrying progress sync",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("push progress: %w", lastErr)
}

// backoffDelay doubles the base delay per attempt, capped at MaxDelay.
func (s *SyncService) backoffDelay(attempt int) time.Duration {
	delay := s.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.opts.MaxDelay {
			return s.opts.MaxDelay
		}
	}
	return delay
}

func (s *SyncService) report(outcome string) {
	s.hookMu.RLock()
	fn := s.onResult
	s.hookMu.RUnlock()
	if fn != nil {
		fn(outcome)
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *remote.APIError
	return !errors.As(err, &apiErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
