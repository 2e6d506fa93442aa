package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storysage/internal/catalog"
	"storysage/internal/logging"
	"storysage/internal/models"
)

// RemoteCatalog serves the catalog from the remote API and falls back to the
// local provider on any failure.
type RemoteCatalog struct {
	remote   catalog.Provider
	fallback catalog.Provider
	logger   *zap.Logger

	mu       sync.RWMutex
	onResult func(op string, err error)
}

// NewRemoteCatalog creates a catalog provider backed by remote with local as
// the fallback.
func NewRemoteCatalog(remote, local catalog.Provider, logger *zap.Logger) *RemoteCatalog {
	return &RemoteCatalog{remote: remote, fallback: local, logger: logging.OrNop(logger)}
}

// OnResult registers a hook called after every remote call.
func (c *RemoteCatalog) OnResult(fn func(op string, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResult = fn
}

func (c *RemoteCatalog) Categories(ctx context.Context) ([]models.Category, error) {
	categories, err := c.remote.Categories(ctx)
	if c.failed("categories", err) {
		return c.fallback.Categories(ctx)
	}
	return categories, nil
}

func (c *RemoteCatalog) Stories(ctx context.Context, categoryID string, grade models.GradeLevel) ([]models.Story, error) {
	stories, err := c.remote.Stories(ctx, categoryID, grade)
	if c.failed("stories", err) {
		return c.fallback.Stories(ctx, categoryID, grade)
	}
	return stories, nil
}

func (c *RemoteCatalog) Story(ctx context.Context, id string) (models.Story, error) {
	story, err := c.remote.Story(ctx, id)
	if c.failed("story", err) {
		return c.fallback.Story(ctx, id)
	}
	return story, nil
}

func (c *RemoteCatalog) failed(op string, err error) bool {
	c.mu.RLock()
	fn := c.onResult
	c.mu.RUnlock()
	if fn != nil {
		fn(op, err)
	}
	if err == nil {
		return false
	}
	c.logger.Warn("remote catalog unavailable, using local content", zap.String("op", op), zap.Error(err))
	return true
}
