package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storysage/internal/audio"
	"storysage/internal/catalog"
	"storysage/internal/models"
	"storysage/internal/playback"
	"storysage/internal/repository"
)

type fakeSender struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeSender) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, *in.Content.Simple.Subject.Data)
	return &sesv2.SendEmailOutput{}, nil
}

type achievementFixture struct {
	progress     *ProgressService
	achievements *AchievementService
	events       *EventService
	email        *EmailService
	sender       *fakeSender
}

func newAchievementFixture(t *testing.T) achievementFixture {
	t.Helper()
	progress, db := newTestProgressService(t)
	events := NewEventService(repository.NewEventRepository(db), nil)
	sender := &fakeSender{}
	email := newEmailService(sender, "stories@example.com", "StorySage", "parent@example.com", nil)
	t.Cleanup(email.Close)

	achievements := NewAchievementService(progress, repository.NewAchievementRepository(db), events, email, catalog.NewRepository(nil, nil), nil)
	achievements.now = func() time.Time { return testNow }
	progress.Observe(achievements.HandleProgress)
	progress.Observe(events.HandleProgress)

	return achievementFixture{progress: progress, achievements: achievements, events: events, email: email, sender: sender}
}

func TestFirstCompletionUnlocksBadgeOnce(t *testing.T) {
	f := newAchievementFixture(t)
	ctx := context.Background()

	_, err := f.progress.Upsert(ctx, "sample-story-1", "u1", 60, true)
	require.NoError(t, err)
	_, err = f.progress.Upsert(ctx, "sample-story-1", "u1", 60, true)
	require.NoError(t, err)

	f.email.Close()
	assert.Equal(t, []string{
		"Story finished: Benny's Big Feeling Day",
		"New badge unlocked: First Story",
	}, f.sender.subjects)

	list, err := f.achievements.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, len(Achievements))
	assert.True(t, list[0].IsUnlocked)
	require.NotNil(t, list[0].UnlockedAt)
	assert.True(t, list[0].UnlockedAt.Equal(testNow))
	assert.False(t, list[1].IsUnlocked)
	assert.Equal(t, 1, list[1].Progress)

	events, err := f.events.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAchievementUnlocked, events[0].EventType)
	assert.Equal(t, "first-story", events[0].Metadata["achievement_id"])
}

func TestFavoritesUnlockFavoriteFinder(t *testing.T) {
	f := newAchievementFixture(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := f.progress.SetFavorite(ctx, id, "u1", true)
		require.NoError(t, err)
	}

	list, err := f.achievements.List(ctx, "u1")
	require.NoError(t, err)
	unlocked := map[string]bool{}
	for _, a := range list {
		unlocked[a.ID] = a.IsUnlocked
	}
	assert.True(t, unlocked["favorite-finder"])
	assert.False(t, unlocked["first-story"])

	events, err := f.events.List(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 6)
}

func TestEvaluateWithoutProgress(t *testing.T) {
	f := newAchievementFixture(t)

	unlocked, err := f.achievements.Evaluate(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, unlocked)
	assert.Empty(t, f.sender.subjects)
}

func TestDisabledEmailServiceSkipsSends(t *testing.T) {
	email, err := NewEmailService(context.Background(), "us-east-1", "", "", "", nil)
	require.NoError(t, err)
	assert.False(t, email.IsEnabled())
	assert.NoError(t, email.SendStoryCompleted(context.Background(), "u1", models.Story{Title: "x"}))

	var missing *EmailService
	assert.False(t, missing.IsEnabled())
	assert.NoError(t, missing.SendAchievementUnlocked(context.Background(), "u1", models.Achievement{}))
}

// blockingSender holds every send until release is closed.
type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSender) SendEmail(ctx context.Context, _ *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
		return &sesv2.SendEmailOutput{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSlowEmailDoesNotBlockPlayback(t *testing.T) {
	ctx := context.Background()
	progress, db := newTestProgressService(t)
	sender := &blockingSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	email := newEmailService(sender, "stories@example.com", "", "parent@example.com", nil)
	t.Cleanup(email.Close)
	t.Cleanup(func() { close(sender.release) })

	stories := catalog.NewRepository(nil, nil)
	achievements := NewAchievementService(progress, repository.NewAchievementRepository(db), nil, email, stories, nil)
	progress.Observe(achievements.HandleProgress)

	story, err := stories.Story(ctx, "sample-story-1")
	require.NoError(t, err)
	clock := playback.NewManualClock(testNow)
	session := playback.NewSession(story, "u1", playback.Deps{
		Engine:   playback.NewVirtualEngine(clock),
		Recorder: progress.Recorder("u1"),
	}, playback.Options{ManualTicks: true})

	handle := audio.Handle{StoryID: story.ID, Kind: audio.KindRemote, Location: "https://cdn.example.com/audio/one.mp3"}
	require.NoError(t, session.Load(ctx, handle))
	require.NoError(t, session.Play(ctx))
	clock.Advance(time.Duration(story.Duration * float64(time.Second)))

	ticked := make(chan struct{})
	go func() {
		session.Tick(ctx)
		close(ticked)
	}()

	select {
	case <-sender.started:
	case <-time.After(5 * time.Second):
		t.Fatal("completion email was never sent")
	}
	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("final tick waited on the email send")
	}

	status := make(chan playback.Status, 1)
	go func() { status <- session.Status() }()
	select {
	case st := <-status:
		assert.Equal(t, playback.StateEnded, st.State)
		assert.True(t, st.Completed)
	case <-time.After(time.Second):
		t.Fatal("status blocked while an email was in flight")
	}

	rec, err := progress.Get(ctx, story.ID, "u1")
	require.NoError(t, err)
	assert.True(t, rec.IsCompleted)
}

func TestEmailQueueDropsAfterClose(t *testing.T) {
	sender := &fakeSender{}
	email := newEmailService(sender, "stories@example.com", "", "parent@example.com", nil)

	email.Enqueue("story_completed", func(ctx context.Context) error {
		return email.SendStoryCompleted(ctx, "u1", models.Story{Title: "Before"})
	})
	email.Close()
	email.Enqueue("story_completed", func(ctx context.Context) error {
		return email.SendStoryCompleted(ctx, "u1", models.Story{Title: "After"})
	})
	email.Close()

	assert.Equal(t, []string{"Story finished: Before"}, sender.subjects)
}
