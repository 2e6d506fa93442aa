package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storysage/internal/catalog"
	"storysage/internal/errs"
	"storysage/internal/models"
	"storysage/internal/playback"
	"storysage/internal/repository"
	"storysage/internal/security"
)

func ptr[T any](v T) *T { return &v }

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	db := openTestDB(t)
	svc := NewSettingsService(repository.NewSettingsRepository(db), nil)
	ctx := context.Background()

	settings, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, settings.AutoPlay)
	assert.Equal(t, 1.0, settings.PlaybackSpeed)

	updated, err := svc.Update(ctx, "u1", models.SettingsPatch{
		PlaybackSpeed:       ptr(1.5),
		PreferredGradeLevel: ptr(models.GradeK),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.5, updated.PlaybackSpeed)
	assert.True(t, updated.AutoPlay)
	assert.Equal(t, 1.5, svc.PlaybackRate(ctx, "u1"))
}

func TestSettingsValidation(t *testing.T) {
	db := openTestDB(t)
	svc := NewSettingsService(repository.NewSettingsRepository(db), nil)

	tests := []struct {
		name  string
		patch models.SettingsPatch
	}{
		{"too slow", models.SettingsPatch{PlaybackSpeed: ptr(0.25)}},
		{"too fast", models.SettingsPatch{PlaybackSpeed: ptr(3.0)}},
		{"unknown grade", models.SettingsPatch{PreferredGradeLevel: ptr(models.GradeLevel("grade_12"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), "u1", tt.patch)
			assert.ErrorIs(t, err, errs.ErrInvalid)
		})
	}
}

func TestDeviceRegisterAndAuthenticate(t *testing.T) {
	db := openTestDB(t)
	tokens, err := security.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	svc := NewDeviceService(repository.NewDeviceRepository(db), tokens, nil)
	ctx := context.Background()

	anon, err := svc.Register(ctx, " Kitchen iPad ", "ios", "")
	require.NoError(t, err)
	assert.Contains(t, anon.UserID, AnonymousUserPrefix)
	assert.Equal(t, "Kitchen iPad", anon.Device.Name)
	require.NotNil(t, anon.ExpiresAt)

	claims, err := svc.Authenticate(ctx, anon.Token)
	require.NoError(t, err)
	assert.Equal(t, anon.UserID, claims.Subject)
	assert.Equal(t, anon.Device.ID, claims.DeviceID)

	named, err := svc.Register(ctx, "Phone", "android", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", named.UserID)

	devices, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuthenticateRejectsUnknownDevice(t *testing.T) {
	db := openTestDB(t)
	tokens, err := security.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	svc := NewDeviceService(repository.NewDeviceRepository(db), tokens, nil)

	token, _, err := tokens.Issue("u1", "missing-device")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

type failingProvider struct{}

func (failingProvider) Categories(context.Context) ([]models.Category, error) {
	return nil, errs.Network("remote.categories", errors.New("connection refused"))
}

func (failingProvider) Stories(context.Context, string, models.GradeLevel) ([]models.Story, error) {
	return nil, errs.Network("remote.stories", errors.New("connection refused"))
}

func (failingProvider) Story(context.Context, string) (models.Story, error) {
	return models.Story{}, errs.Network("remote.story", errors.New("connection refused"))
}

func TestRemoteCatalogFallsBackToLocal(t *testing.T) {
	local := catalog.NewRepository(nil, nil)
	rc := NewRemoteCatalog(failingProvider{}, local, nil)
	var failures []string
	rc.OnResult(func(op string, err error) {
		if err != nil {
			failures = append(failures, op)
		}
	})
	ctx := context.Background()

	categories, err := rc.Categories(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, categories)

	stories, err := rc.Stories(ctx, "", models.GradePreK)
	require.NoError(t, err)
	assert.NotEmpty(t, stories)

	story, err := rc.Story(ctx, "sample-story-1")
	require.NoError(t, err)
	assert.Equal(t, "sample-story-1", story.ID)

	assert.Equal(t, []string{"categories", "stories", "story"}, failures)
}

func TestBackupRoundTrip(t *testing.T) {
	progress, source := newTestProgressService(t)
	ctx := context.Background()

	_, err := progress.Upsert(ctx, "s1", "u1", 60, true)
	require.NoError(t, err)
	_, err = progress.SetFavorite(ctx, "s2", "u1", true)
	require.NoError(t, err)
	_, err = NewSettingsService(repository.NewSettingsRepository(source), nil).Get(ctx, "u1")
	require.NoError(t, err)
	_, err = repository.NewAchievementRepository(source).Unlock(ctx, "u1", "first-story", testNow)
	require.NoError(t, err)

	var buf bytes.Buffer
	exported, err := NewBackupService(source, nil).Export(ctx, &buf)
	require.NoError(t, err)
	assert.Len(t, exported.Progress, 2)

	target := openTestDB(t)
	imported, err := NewBackupService(target, nil).Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, BackupVersion, imported.Version)

	restored, err := repository.NewProgressRepository(target).ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, restored, 2)

	awards, err := repository.NewAchievementRepository(target).ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, "first-story", awards[0].AchievementID)

	// Importing twice keeps one row per key.
	_, err = NewBackupService(target, nil).Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	restored, err = repository.NewProgressRepository(target).ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, restored, 2)
}

func TestBackupImportRejectsBadInput(t *testing.T) {
	svc := NewBackupService(openTestDB(t), nil)

	_, err := svc.Import(context.Background(), bytes.NewBufferString(`{`))
	assert.ErrorIs(t, err, errs.ErrMalformed)

	_, err = svc.Import(context.Background(), bytes.NewBufferString(`{"version": "0.1"}`))
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestEventServiceWatchesPlaybackBus(t *testing.T) {
	db := openTestDB(t)
	svc := NewEventService(repository.NewEventRepository(db), nil)
	bus := playback.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Watch(ctx, bus)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	publish := func(e playback.Event) {
		e.StoryID, e.UserID = "s1", "u1"
		bus.Publish(e)
	}
	publish(playback.Event{Type: playback.EventStateChanged, PrevState: playback.StateLoading, State: playback.StateReady})
	publish(playback.Event{Type: playback.EventStateChanged, PrevState: playback.StateReady, State: playback.StatePlaying})
	publish(playback.Event{Type: playback.EventTimeUpdate, Position: 3})
	publish(playback.Event{Type: playback.EventStateChanged, PrevState: playback.StatePlaying, State: playback.StatePaused, Position: 4})
	publish(playback.Event{Type: playback.EventCompleted, Position: 60})

	require.Eventually(t, func() bool {
		events, err := svc.List(context.Background(), "u1", 0)
		return err == nil && len(events) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	events, err := svc.List(context.Background(), "u1", 0)
	require.NoError(t, err)
	types := map[models.ProgressEventType]bool{}
	for _, e := range events {
		types[e.EventType] = true
	}
	assert.Equal(t, map[models.ProgressEventType]bool{
		models.EventStoryStarted:   true,
		models.EventStoryPaused:    true,
		models.EventStoryCompleted: true,
	}, types)
}
