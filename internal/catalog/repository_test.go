package catalog

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storysage/internal/errs"
	"storysage/internal/models"
)

const twoByTwoCategories = `{
  "categories": [
    {"id": "forest", "name": "Forest", "description": "d", "color": "green", "icon": "leaf", "gradeLevels": ["grade_prek", "grade_k"]},
    {"id": "river", "name": "River", "description": "d", "color": "blue", "icon": "drop", "grade_levels": ["grade_prek", "grade_k"]}
  ]
}`

const threeStories = `{
  "stories": [
    {"id": "s1", "title": "One", "category": "forest", "gradeLevel": "grade_prek", "duration": 120, "audioFile": "one.mp3", "keyLessons": ["a"], "tags": ["t"]},
    {"id": "s2", "title": "Two", "category": "river", "grade_level": "grade_k", "duration": 90, "audio_url": "https://cdn.example.com/audio/two.mp3", "key_lessons": ["b"]},
    {"id": "s3", "title": "Three", "category": "forest", "gradeLevel": "grade_k", "duration": 60,
     "segments": [{"id": "b", "order": 2}, {"id": "a", "order": 1}]}
  ]
}`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"categories.json": {Data: []byte(twoByTwoCategories)},
		"stories.json":    {Data: []byte(threeStories)},
	}
}

func storyIDs(stories []models.Story) []string {
	ids := make([]string, 0, len(stories))
	for _, s := range stories {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestLoadExpandsCategoriesPerGrade(t *testing.T) {
	repo := NewRepository(testFS(), nil)

	cat, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourcePackaged, cat.Source)
	require.Len(t, cat.Categories, 4)

	type key struct {
		id    string
		grade models.GradeLevel
	}
	counts := map[key]int{}
	for _, c := range cat.Categories {
		counts[key{c.ID, c.GradeLevel}] = c.StoryCount
		assert.True(t, c.IsActive)
	}
	assert.Equal(t, map[key]int{
		{"forest", models.GradePreK}: 1,
		{"forest", models.GradeK}:    1,
		{"river", models.GradePreK}:  0,
		{"river", models.GradeK}:     1,
	}, counts)
}

func TestLoadAcceptsSnakeCaseAliases(t *testing.T) {
	repo := NewRepository(testFS(), nil)

	s2, err := repo.Story(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, models.GradeK, s2.GradeLevel)
	assert.Equal(t, "https://cdn.example.com/audio/two.mp3", s2.AudioRef)
	assert.Equal(t, []string{"b"}, s2.KeyLessons)
	assert.Equal(t, models.StoryPublished, s2.Status)

	s3, err := repo.Story(context.Background(), "s3")
	require.NoError(t, err)
	require.Len(t, s3.Segments, 2)
	assert.Equal(t, "a", s3.Segments[0].ID)
}

func TestFilterByGradePreservesCatalogOrder(t *testing.T) {
	repo := NewRepository(testFS(), nil)
	ctx := context.Background()

	byGrade, err := repo.Stories(ctx, "", models.GradeK)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3"}, storyIDs(byGrade))
	for _, s := range byGrade {
		assert.Equal(t, models.GradeK, s.GradeLevel)
	}

	all, err := repo.Stories(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, storyIDs(all))
}

func TestFilterCombinedIsSubsetOfEach(t *testing.T) {
	repo := NewRepository(testFS(), nil)
	ctx := context.Background()

	for _, categoryID := range []string{"forest", "river", "missing"} {
		for _, grade := range []models.GradeLevel{models.GradePreK, models.GradeK, models.Grade2} {
			both, err := repo.Stories(ctx, categoryID, grade)
			require.NoError(t, err)
			byCategory, _ := repo.Stories(ctx, categoryID, "")
			byGrade, _ := repo.Stories(ctx, "", grade)

			for _, id := range storyIDs(both) {
				assert.Contains(t, storyIDs(byCategory), id)
				assert.Contains(t, storyIDs(byGrade), id)
			}
		}
	}

	both, err := repo.Stories(ctx, "forest", models.GradeK)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, storyIDs(both))

	none, err := repo.Stories(ctx, "river", models.Grade2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoryNotFound(t *testing.T) {
	repo := NewRepository(testFS(), nil)

	_, err := repo.Story(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLoadIsCachedUntilReload(t *testing.T) {
	fsys := testFS()
	repo := NewRepository(fsys, nil)
	ctx := context.Background()

	first, err := repo.Load(ctx)
	require.NoError(t, err)

	fsys["stories.json"] = &fstest.MapFile{Data: []byte(`{"stories": [{"id": "x", "category": "forest", "gradeLevel": "grade_k", "duration": 5}]}`)}
	second, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	reloaded, err := repo.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, storyIDs(reloaded.Stories))
	assert.Equal(t, []string{"x"}, storyIDs(reloaded.Filter("forest", "")))
}

func TestFallbackToSample(t *testing.T) {
	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr error
	}{
		{"missing files", fstest.MapFS{}, errs.ErrNotFound},
		{"malformed stories", fstest.MapFS{
			"categories.json": {Data: []byte(twoByTwoCategories)},
			"stories.json":    {Data: []byte(`{"stories": [`)},
		}, errs.ErrMalformed},
		{"missing stories", fstest.MapFS{
			"categories.json": {Data: []byte(twoByTwoCategories)},
		}, errs.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewRepository(tt.fsys, nil)

			cat, err := repo.Load(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, cat)
			assert.Equal(t, SourceSample, cat.Source)

			categories, err := repo.Categories(context.Background())
			require.NoError(t, err)
			assert.Len(t, categories, 5)
		})
	}
}

func TestSampleCatalog(t *testing.T) {
	cat, err := LoadSample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"sample-story-1", "sample-story-2"}, storyIDs(cat.Stories))
	require.NotNil(t, cat.Metadata)
	assert.Equal(t, 2, cat.Metadata.TotalStories)

	forest, ok := cat.Category("firefly-forest", models.GradePreK)
	require.True(t, ok)
	assert.Equal(t, 2, forest.StoryCount)
}

func TestFindsDataSubdirectory(t *testing.T) {
	fsys := fstest.MapFS{
		"Resources/Data/categories.json": {Data: []byte(twoByTwoCategories)},
		"Resources/Data/stories.json":    {Data: []byte(threeStories)},
		"Resources/Data/metadata.json":   {Data: []byte(`{"version": "1.2", "totalStories": 3}`)},
	}

	cat, err := NewRepository(fsys, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourcePackaged, cat.Source)
	require.NotNil(t, cat.Metadata)
	assert.Equal(t, "1.2", cat.Metadata.Version)
}
