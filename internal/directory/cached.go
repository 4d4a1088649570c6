package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"medibook-server/internal/models"
)

// Finder looks up a single user.
type Finder interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
}

// Cached fronts a Finder with a bounded, expiring LRU. Misses and errors are
// never cached.
type Cached struct {
	next   Finder
	cache  *expirable.LRU[string, models.User]
	logger zerolog.Logger
}

// NewCached wraps next. A non-positive size disables caching.
func NewCached(next Finder, size int, ttl time.Duration, logger zerolog.Logger) *Cached {
	c := &Cached{
		next:   next,
		logger: logger.With().Str("component", "directory_cache").Logger(),
	}
	if size > 0 {
		c.cache = expirable.NewLRU[string, models.User](size, nil, ttl)
	} else {
		c.logger.Info().Msg("directory cache disabled")
	}
	return c
}

func (c *Cached) FindUser(ctx context.Context, id string) (*models.User, error) {
	if c.cache != nil {
		if user, ok := c.cache.Get(id); ok {
			c.logger.Debug().Str("user_id", id).Msg("cache hit")
			return &user, nil
		}
	}

	user, err := c.next.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(id, *user)
	}
	return user, nil
}

// Invalidate drops a cached user, e.g. after a profile change.
func (c *Cached) Invalidate(id string) {
	if c.cache != nil {
		c.cache.Remove(id)
	}
}

// Len returns the number of cached users.
func (c *Cached) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
