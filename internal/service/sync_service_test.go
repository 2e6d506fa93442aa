package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storysage/internal/models"
	"storysage/internal/remote"
)

type pushCall struct {
	storyID  string
	position float64
}

type fakeSyncClient struct {
	mu       sync.Mutex
	failures []error
	calls    []pushCall
	healthy  bool
}

func (f *fakeSyncClient) UpdateProgress(_ context.Context, _, storyID string, u models.ProgressUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{storyID: storyID, position: u.PlaybackPosition})
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	return nil
}

func (f *fakeSyncClient) Progress(context.Context, string) (*models.UserProgress, error) {
	return &models.UserProgress{UserID: "u1"}, nil
}

func (f *fakeSyncClient) Health(context.Context) error {
	if f.healthy {
		return nil
	}
	return errors.New("down")
}

func (f *fakeSyncClient) AudioHealth(ctx context.Context) error { return f.Health(ctx) }

func (f *fakeSyncClient) pushes() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushCall(nil), f.calls...)
}

func statusErr(code int) error {
	return &remote.StatusError{StatusCode: code}
}

type syncHarness struct {
	svc     *SyncService
	results chan string

	mu     sync.Mutex
	delays []time.Duration
}

func newSyncHarness(t *testing.T, client SyncClient, opts SyncOptions) *syncHarness {
	t.Helper()
	h := &syncHarness{results: make(chan string, 16)}
	h.svc = NewSyncService(client, opts, nil)
	h.svc.sleep = func(_ context.Context, d time.Duration) error {
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.mu.Unlock()
		return nil
	}
	h.svc.OnResult(func(outcome string) { h.results <- outcome })
	return h
}

func (h *syncHarness) next(t *testing.T) string {
	t.Helper()
	select {
	case outcome := <-h.results:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync result")
		return ""
	}
}

func TestSyncRetriesServerErrorsWithBackoff(t *testing.T) {
	client := &fakeSyncClient{failures: []error{statusErr(http.StatusServiceUnavailable), statusErr(http.StatusBadGateway)}}
	h := newSyncHarness(t, client, SyncOptions{BaseDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.svc.Start(ctx)

	require.True(t, h.svc.PushProgress("u1", "s1", models.ProgressUpdate{PlaybackPosition: 12}))
	assert.Equal(t, SyncPushed, h.next(t))

	assert.Len(t, client.pushes(), 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.delays)
}

func TestSyncDoesNotRetryClientErrors(t *testing.T) {
	client := &fakeSyncClient{failures: []error{statusErr(http.StatusBadRequest)}}
	h := newSyncHarness(t, client, SyncOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.svc.Start(ctx)

	h.svc.PushProgress("u1", "s1", models.ProgressUpdate{})
	assert.Equal(t, SyncFailed, h.next(t))
	assert.Len(t, client.pushes(), 1)
	assert.Empty(t, h.delays)
}

func TestSyncGivesUpAfterMaxAttempts(t *testing.T) {
	fail := statusErr(http.StatusInternalServerError)
	client := &fakeSyncClient{failures: []error{fail, fail, fail, fail}}
	h := newSyncHarness(t, client, SyncOptions{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 1500 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.svc.Start(ctx)

	h.svc.PushProgress("u1", "s1", models.ProgressUpdate{})
	assert.Equal(t, SyncFailed, h.next(t))
	assert.Len(t, client.pushes(), 3)
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond}, h.delays)
}

func TestSyncPreservesOrder(t *testing.T) {
	client := &fakeSyncClient{failures: []error{statusErr(http.StatusTooManyRequests)}}
	h := newSyncHarness(t, client, SyncOptions{})

	for i := 1; i <= 3; i++ {
		require.True(t, h.svc.PushProgress("u1", "s1", models.ProgressUpdate{PlaybackPosition: float64(i)}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.svc.Start(ctx)
	for i := 0; i < 3; i++ {
		assert.Equal(t, SyncPushed, h.next(t))
	}

	var positions []float64
	for _, c := range client.pushes() {
		positions = append(positions, c.position)
	}
	assert.Equal(t, []float64{1, 1, 2, 3}, positions)
}

func TestSyncDropsWhenQueueFull(t *testing.T) {
	h := newSyncHarness(t, &fakeSyncClient{}, SyncOptions{QueueSize: 1})

	assert.True(t, h.svc.PushProgress("u1", "s1", models.ProgressUpdate{}))
	assert.False(t, h.svc.PushProgress("u1", "s2", models.ProgressUpdate{}))
	assert.Equal(t, SyncDropped, h.next(t))
}

func TestSyncObserverSkipsFavorites(t *testing.T) {
	h := newSyncHarness(t, &fakeSyncClient{}, SyncOptions{QueueSize: 1})

	h.svc.HandleProgress(context.Background(), ProgressChange{FavoriteOnly: true, Record: models.ProgressRecord{UserID: "u1", StoryID: "s1"}})
	assert.True(t, h.svc.PushProgress("u1", "s1", models.ProgressUpdate{}))
}

func TestDisabledSync(t *testing.T) {
	svc := NewSyncService(nil, SyncOptions{}, nil)

	assert.False(t, svc.Enabled())
	assert.False(t, svc.PushProgress("u1", "s1", models.ProgressUpdate{}))
	assert.False(t, svc.ContentHealthy(context.Background()))
	_, err := svc.PullProgress(context.Background(), "u1")
	assert.Error(t, err)
	svc.Start(context.Background())
	svc.Wait()
}

func TestSyncHealth(t *testing.T) {
	client := &fakeSyncClient{healthy: true}
	svc := NewSyncService(client, SyncOptions{}, nil)

	assert.True(t, svc.ContentHealthy(context.Background()))
	assert.True(t, svc.AudioHealthy(context.Background()))
	client.healthy = false
	assert.False(t, svc.ContentHealthy(context.Background()))
}

func TestRetryable(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"service unavailable", statusErr(503), true},
		{"too many requests", statusErr(429), true},
		{"bad request", statusErr(400), false},
		{"api error", &remote.APIError{Code: "VALIDATION_ERROR"}, false},
		{"canceled", context.Canceled, false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(ctx, tt.err))
		})
	}
}
