package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"storysage/internal/models"
)

// Packaged content uses camelCase keys. The snake_case spellings found in
// older exports are accepted on read:
//
//	gradeLevels  <- grade_levels, gradeLevel, grade_level (single grade)
//	gradeLevel   <- grade_level
//	audioFile    <- audio_file, audioUrl, audio_url
//	keyLessons   <- key_lessons
//	createdAt    <- created_at
//	downloadUrl  <- download_url

type categoriesFile struct {
	Categories []packagedCategory `json:"categories"`
}

type storiesFile struct {
	Stories []packagedStory `json:"stories"`
}

type packagedCategory struct {
	ID          string
	Name        string
	Description string
	Color       string
	Icon        string
	GradeLevels []models.GradeLevel
}

func (c *packagedCategory) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID               string              `json:"id"`
		Name             string              `json:"name"`
		Description      string              `json:"description"`
		Color            string              `json:"color"`
		Icon             string              `json:"icon"`
		GradeLevels      []models.GradeLevel `json:"gradeLevels"`
		GradeLevelsSnake []models.GradeLevel `json:"grade_levels"`
		GradeLevel       models.GradeLevel   `json:"gradeLevel"`
		GradeLevelSnake  models.GradeLevel   `json:"grade_level"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.ID = raw.ID
	c.Name = raw.Name
	c.Description = raw.Description
	c.Color = raw.Color
	c.Icon = raw.Icon
	switch {
	case len(raw.GradeLevels) > 0:
		c.GradeLevels = raw.GradeLevels
	case len(raw.GradeLevelsSnake) > 0:
		c.GradeLevels = raw.GradeLevelsSnake
	case raw.GradeLevel != "":
		c.GradeLevels = []models.GradeLevel{raw.GradeLevel}
	case raw.GradeLevelSnake != "":
		c.GradeLevels = []models.GradeLevel{raw.GradeLevelSnake}
	}
	return nil
}

type packagedSegment struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Duration float64 `json:"duration"`
	Order    int     `json:"order"`
	Audio    string  `json:"audioFile"`
	AudioURL string  `json:"audio_url"`
}

type packagedStory struct {
	story models.Story
}

func (s *packagedStory) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID              string            `json:"id"`
		Title           string            `json:"title"`
		Description     string            `json:"description"`
		Category        string            `json:"category"`
		GradeLevel      models.GradeLevel `json:"gradeLevel"`
		GradeLevelSnake models.GradeLevel `json:"grade_level"`
		Duration        float64           `json:"duration"`
		AudioFile       string            `json:"audioFile"`
		AudioFileSnake  string            `json:"audio_file"`
		AudioURL        string            `json:"audioUrl"`
		AudioURLSnake   string            `json:"audio_url"`
		Segments        []packagedSegment `json:"segments"`
		Tags            []string          `json:"tags"`
		KeyLessons      []string          `json:"keyLessons"`
		KeyLessonsSnake []string          `json:"key_lessons"`
		CreatedAt       string            `json:"createdAt"`
		CreatedAtSnake  string            `json:"created_at"`
		Status          string            `json:"status"`
		DownloadURL     string            `json:"downloadUrl"`
		DownloadSnake   string            `json:"download_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	story := models.Story{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Category:    raw.Category,
		GradeLevel:  firstNonEmpty(raw.GradeLevel, raw.GradeLevelSnake),
		Duration:    raw.Duration,
		AudioRef:    firstNonEmpty(raw.AudioFile, raw.AudioFileSnake, raw.AudioURL, raw.AudioURLSnake),
		Tags:        nonNil(raw.Tags),
		KeyLessons:  nonNil(firstNonEmptySlice(raw.KeyLessons, raw.KeyLessonsSnake)),
		Status:      models.StoryStatus(strings.ToLower(raw.Status)),
		DownloadRef: firstNonEmpty(raw.DownloadURL, raw.DownloadSnake),
		Segments:    make([]models.Segment, 0, len(raw.Segments)),
	}
	if story.Status == "" {
		story.Status = models.StoryPublished
	}
	if created := firstNonEmpty(raw.CreatedAt, raw.CreatedAtSnake); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			story.CreatedAt = t
		}
	}
	for _, seg := range raw.Segments {
		story.Segments = append(story.Segments, models.Segment{
			ID:       seg.ID,
			Title:    seg.Title,
			Content:  seg.Content,
			Duration: seg.Duration,
			Order:    seg.Order,
			AudioRef: firstNonEmpty(seg.Audio, seg.AudioURL),
		})
	}
	models.SortSegments(story.Segments)

	s.story = story
	return nil
}

type packagedMetadata struct {
	Version         string              `json:"version"`
	TotalStories    int                 `json:"totalStories"`
	TotalCategories int                 `json:"totalCategories"`
	GradeLevels     []models.GradeLevel `json:"gradeLevels"`
	TotalDuration   float64             `json:"totalDuration"`
	LastUpdated     string              `json:"lastUpdated"`
}

func (m packagedMetadata) toModel() *models.CatalogMetadata {
	return &models.CatalogMetadata{
		Version:         m.Version,
		TotalStories:    m.TotalStories,
		TotalCategories: m.TotalCategories,
		GradeLevels:     m.GradeLevels,
		TotalDuration:   m.TotalDuration,
		LastUpdated:     m.LastUpdated,
	}
}

func firstNonEmpty[T ~string](values ...T) T {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
