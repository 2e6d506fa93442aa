package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GradeLevel is a coarse age bucket used to filter content.
type GradeLevel string

const (
	GradePreK GradeLevel = "grade_prek"
	GradeK    GradeLevel = "grade_k"
	Grade1    GradeLevel = "grade_1"
	Grade2    GradeLevel = "grade_2"
)

// GradeLevels lists the supported grades in curriculum order.
var GradeLevels = []GradeLevel{GradePreK, GradeK, Grade1, Grade2}

// DisplayName returns the human readable grade name.
func (g GradeLevel) DisplayName() string {
	switch g {
	case GradePreK:
		return "Pre-K"
	case GradeK:
		return "Kindergarten"
	case Grade1:
		return "1st Grade"
	case Grade2:
		return "2nd Grade"
	default:
		s := strings.ReplaceAll(string(g), "_", " ")
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

// AgeRange returns the typical listener age range for the grade.
func (g GradeLevel) AgeRange() string {
	switch g {
	case GradePreK:
		return "3-4"
	case GradeK:
		return "5-6"
	case Grade1:
		return "6-7"
	case Grade2:
		return "7-8"
	default:
		return ""
	}
}

// Valid reports whether g is one of the supported grades.
func (g GradeLevel) Valid() bool {
	for _, known := range GradeLevels {
		if g == known {
			return true
		}
	}
	return false
}

// StoryStatus is the publication state of a story.
type StoryStatus string

const (
	StoryDraft     StoryStatus = "draft"
	StoryReady     StoryStatus = "ready"
	StoryPublished StoryStatus = "published"
	StoryArchived  StoryStatus = "archived"
)

// DisplayName returns the capitalized status.
func (s StoryStatus) DisplayName() string {
	switch s {
	case StoryDraft:
		return "Draft"
	case StoryReady:
		return "Ready"
	case StoryPublished:
		return "Published"
	case StoryArchived:
		return "Archived"
	default:
		return string(s)
	}
}

// Category is one (category, grade) row of the catalog. A category that
// supports several grades appears once per grade with the same ID.
type Category struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Color       string     `json:"color"`
	GradeLevel  GradeLevel `json:"grade_level"`
	StoryCount  int        `json:"story_count"`
	IsActive    bool       `json:"is_active"`
}

// Segment is an ordered chapter of a story.
type Segment struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Duration float64 `json:"duration"`
	Order    int     `json:"order"`
	AudioRef string  `json:"audio_url,omitempty"`
}

// Story is a narrated audio item. Catalog content is immutable at runtime.
type Story struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	GradeLevel  GradeLevel  `json:"grade_level"`
	Duration    float64     `json:"duration"`
	AudioRef    string      `json:"audio_url,omitempty"`
	Segments    []Segment   `json:"segments"`
	Tags        []string    `json:"tags"`
	KeyLessons  []string    `json:"key_lessons"`
	CreatedAt   time.Time   `json:"created_at"`
	Status      StoryStatus `json:"status"`
	DownloadRef string      `json:"download_url,omitempty"`
}

// SortSegments orders segments by Order. Equal orders keep their original
// relative position.
func SortSegments(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Order < segments[j].Order
	})
}

// FormattedDuration renders the duration as m:ss.
func (s Story) FormattedDuration() string {
	return FormatClock(s.Duration)
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// CatalogMetadata describes a packaged catalog.
type CatalogMetadata struct {
	Version         string       `json:"version"`
	TotalStories    int          `json:"total_stories"`
	TotalCategories int          `json:"total_categories"`
	GradeLevels     []GradeLevel `json:"grade_levels"`
	TotalDuration   float64      `json:"total_duration"`
	LastUpdated     string       `json:"last_updated"`
}
