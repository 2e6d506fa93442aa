// Package catalog loads the packaged story catalog and answers category,
// story and grade queries against it.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"go.uber.org/zap"

	"storysage/internal/errs"
	"storysage/internal/logging"
	"storysage/internal/models"
)

//go:embed sample/*.json
var sampleFS embed.FS

// Directories searched for the packaged files, in order.
var searchDirs = []string{".", "Data", "Resources/Data"}

const (
	categoriesFileName = "categories.json"
	storiesFileName    = "stories.json"
	metadataFileName   = "metadata.json"
)

// Source identifies where a loaded catalog came from.
type Source string

const (
	SourcePackaged Source = "packaged"
	SourceSample   Source = "sample"
)

// Provider answers catalog queries. The local Repository and the remote
// catalog both implement it.
type Provider interface {
	Categories(ctx context.Context) ([]models.Category, error)
	Stories(ctx context.Context, categoryID string, grade models.GradeLevel) ([]models.Story, error)
	Story(ctx context.Context, id string) (models.Story, error)
}

// Catalog is an immutable, indexed snapshot of packaged content.
type Catalog struct {
	Source     Source
	Categories []models.Category
	Stories    []models.Story
	Metadata   *models.CatalogMetadata

	byID       map[string]int
	byCategory map[string][]int
	byGrade    map[models.GradeLevel][]int
}

// Repository serves the packaged catalog, loading it once on first use.
type Repository struct {
	fsys   fs.FS
	logger *zap.Logger

	mu      sync.Mutex
	catalog *Catalog
	loadErr error
}

// NewRepository creates a repository reading packaged files from fsys. A nil
// fsys serves the embedded sample catalog.
func NewRepository(fsys fs.FS, logger *zap.Logger) *Repository {
	return &Repository{fsys: fsys, logger: logging.OrNop(logger)}
}

// Load returns the catalog, reading it on the first call and returning the
// cached result afterwards. When the packaged data is missing or malformed
// the sample catalog is returned together with the error that caused the
// fallback.
func (r *Repository) Load(ctx context.Context) (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.catalog == nil {
		r.catalog, r.loadErr = r.load(ctx)
	}
	return r.catalog, r.loadErr
}

// Reload discards the cached catalog and reads the packaged data again.
func (r *Repository) Reload(ctx context.Context) (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.catalog, r.loadErr = r.load(ctx)
	return r.catalog, r.loadErr
}

func (r *Repository) load(ctx context.Context) (*Catalog, error) {
	if r.fsys != nil {
		cat, err := readCatalog(ctx, r.fsys, SourcePackaged, r.logger)
		if err == nil {
			r.logger.Info("catalog loaded",
				zap.Int("categories", len(cat.Categories)),
				zap.Int("stories", len(cat.Stories)))
			return cat, nil
		}
		r.logger.Warn("packaged catalog unavailable, using sample data", zap.Error(err))
		sample, sampleErr := LoadSample(ctx)
		if sampleErr != nil {
			return nil, errors.Join(err, sampleErr)
		}
		return sample, err
	}
	return LoadSample(ctx)
}

// LoadSample reads the embedded sample catalog.
func LoadSample(ctx context.Context) (*Catalog, error) {
	sub, err := fs.Sub(sampleFS, "sample")
	if err != nil {
		return nil, err
	}
	return readCatalog(ctx, sub, SourceSample, zap.NewNop())
}

// Categories returns every expanded category row.
func (r *Repository) Categories(ctx context.Context) ([]models.Category, error) {
	cat, _ := r.Load(ctx)
	if cat == nil {
		return nil, errs.NotFound("catalog.categories", "catalog not loaded")
	}
	return append([]models.Category(nil), cat.Categories...), nil
}

// Stories returns the stories matching the optional filters.
func (r *Repository) Stories(ctx context.Context, categoryID string, grade models.GradeLevel) ([]models.Story, error) {
	cat, _ := r.Load(ctx)
	if cat == nil {
		return nil, errs.NotFound("catalog.stories", "catalog not loaded")
	}
	return cat.Filter(categoryID, grade), nil
}

// Story returns the story with the given id.
func (r *Repository) Story(ctx context.Context, id string) (models.Story, error) {
	cat, _ := r.Load(ctx)
	if cat == nil {
		return models.Story{}, errs.NotFound("catalog.story", "catalog not loaded")
	}
	return cat.Story(id)
}

// Story looks up a story by id.
func (c *Catalog) Story(id string) (models.Story, error) {
	i, ok := c.byID[id]
	if !ok {
		return models.Story{}, errs.NotFound("catalog.story", "story %q", id)
	}
	return c.Stories[i], nil
}

// Filter applies the category filter first and narrows by grade. An empty
// argument disables that filter. Results keep catalog order.
func (c *Catalog) Filter(categoryID string, grade models.GradeLevel) []models.Story {
	var idx []int
	switch {
	case categoryID != "":
		idx = c.byCategory[categoryID]
	case grade != "":
		idx = c.byGrade[grade]
	default:
		return append([]models.Story{}, c.Stories...)
	}

	out := make([]models.Story, 0, len(idx))
	for _, i := range idx {
		if categoryID != "" && grade != "" && c.Stories[i].GradeLevel != grade {
			continue
		}
		out = append(out, c.Stories[i])
	}
	return out
}

// Category returns the first row for id, optionally scoped to a grade.
func (c *Catalog) Category(id string, grade models.GradeLevel) (models.Category, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id && (grade == "" || cat.GradeLevel == grade) {
			return cat, true
		}
	}
	return models.Category{}, false
}

func readCatalog(ctx context.Context, fsys fs.FS, source Source, logger *zap.Logger) (*Catalog, error) {
	dir, ok := findDataDir(fsys)
	if !ok {
		return nil, errs.NotFound("catalog.load", "%s not found", categoriesFileName)
	}

	var cf categoriesFile
	if err := readJSON(fsys, path.Join(dir, categoriesFileName), &cf); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sf storiesFile
	if err := readJSON(fsys, path.Join(dir, storiesFileName), &sf); err != nil {
		return nil, err
	}

	cat := &Catalog{Source: source}
	for _, pc := range cf.Categories {
		if len(pc.GradeLevels) == 0 {
			logger.Warn("category has no grade levels", zap.String("category_id", pc.ID))
		}
		for _, grade := range pc.GradeLevels {
			cat.Categories = append(cat.Categories, models.Category{
				ID:          pc.ID,
				Name:        pc.Name,
				Description: pc.Description,
				Icon:        pc.Icon,
				Color:       pc.Color,
				GradeLevel:  grade,
				IsActive:    true,
			})
		}
	}

	seen := make(map[string]bool, len(sf.Stories))
	for _, ps := range sf.Stories {
		story := ps.story
		switch {
		case story.ID == "":
			logger.Warn("skipping story without id", zap.String("title", story.Title))
			continue
		case story.Duration <= 0:
			logger.Warn("skipping story with non-positive duration", zap.String("story_id", story.ID))
			continue
		case seen[story.ID]:
			logger.Warn("skipping duplicate story id", zap.String("story_id", story.ID))
			continue
		}
		seen[story.ID] = true
		cat.Stories = append(cat.Stories, story)
	}

	if len(cat.Categories) == 0 || len(cat.Stories) == 0 {
		return nil, errs.NotFound("catalog.load", "catalog in %q has no categories or stories", dir)
	}

	var meta packagedMetadata
	if err := readJSON(fsys, path.Join(dir, metadataFileName), &meta); err == nil {
		cat.Metadata = meta.toModel()
	} else if !errors.Is(err, errs.ErrNotFound) {
		logger.Warn("ignoring unreadable catalog metadata", zap.Error(err))
	}

	cat.buildIndices()
	return cat, nil
}

// buildIndices rebuilds lookup tables and per-(category, grade) story counts.
func (c *Catalog) buildIndices() {
	c.byID = make(map[string]int, len(c.Stories))
	c.byCategory = make(map[string][]int)
	c.byGrade = make(map[models.GradeLevel][]int)

	counts := make(map[string]int)
	for i, s := range c.Stories {
		c.byID[s.ID] = i
		c.byCategory[s.Category] = append(c.byCategory[s.Category], i)
		c.byGrade[s.GradeLevel] = append(c.byGrade[s.GradeLevel], i)
		counts[s.Category+"|"+string(s.GradeLevel)]++
	}
	for i := range c.Categories {
		c.Categories[i].StoryCount = counts[c.Categories[i].ID+"|"+string(c.Categories[i].GradeLevel)]
	}
}

func findDataDir(fsys fs.FS) (string, bool) {
	for _, dir := range searchDirs {
		if _, err := fs.Stat(fsys, path.Join(dir, categoriesFileName)); err == nil {
			return dir, true
		}
	}
	return "", false
}

func readJSON(fsys fs.FS, name string, v any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.NotFound("catalog.load", "%s not found", path.Base(name))
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Malformed("catalog.load", fmt.Errorf("%s: %w", path.Base(name), err))
	}
	return nil
}
