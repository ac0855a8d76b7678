// Package cache provides a short-TTL Redis cache for scraper results so
// repeat searches for the same query do not hammer the platforms.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/dealscout/internal/product"
	"github.com/kalambet/dealscout/internal/scraper"
)

const keyPrefix = "dealscout:results:"

// ResultCache stores candidate lists keyed by platform and query key.
// A nil *ResultCache is valid and disables caching.
type ResultCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects a result cache to Redis. TTL <= 0 defaults to 5 minutes.
func New(rdb *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{rdb: rdb, ttl: ttl, logger: slog.Default()}
}

// Wrap decorates a scraper with read-through caching. With a nil cache the
// scraper is returned unwrapped.
func (c *ResultCache) Wrap(s scraper.Scraper) scraper.Scraper {
	if c == nil {
		return s
	}
	return &cachedScraper{inner: s, cache: c}
}

func (c *ResultCache) key(platform string, q product.Query) string {
	return keyPrefix + platform + ":" + q.Key()
}

func (c *ResultCache) get(ctx context.Context, key string) ([]product.Candidate, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("result cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var out []product.Candidate
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("result cache entry corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}
	return out, true
}

func (c *ResultCache) set(ctx context.Context, key string, candidates []product.Candidate) {
	raw, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("result cache write failed", "key", key, "error", err)
	}
}

// cachedScraper serves cached candidate lists and falls through to the
// wrapped scraper on miss. Scraper errors are never cached.
type cachedScraper struct {
	inner scraper.Scraper
	cache *ResultCache
}

func (s *cachedScraper) Platform() string { return s.inner.Platform() }

func (s *cachedScraper) Search(ctx context.Context, q product.Query) ([]product.Candidate, error) {
	key := s.cache.key(s.inner.Platform(), q)
	if hit, ok := s.cache.get(ctx, key); ok {
		return hit, nil
	}
	found, err := s.inner.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", s.inner.Platform(), err)
	}
	s.cache.set(ctx, key, found)
	return found, nil
}
