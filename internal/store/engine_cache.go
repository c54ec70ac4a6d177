package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/chess/uci"
)

// EngineCache shares fixed-time search results across engine sessions and
// processes. Redis errors degrade to cache misses.
type EngineCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewEngineCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *EngineCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EngineCache{rdb: rdb, ttl: ttl, log: log}
}

func engineKey(fen string, movetime time.Duration) string {
	return "chess:engine:" + uci.CacheKey(fen, movetime)
}

func (c *EngineCache) Get(ctx context.Context, fen string, movetime time.Duration) (string, bool) {
	mv, err := c.rdb.Get(ctx, engineKey(fen, movetime)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("engine_cache_get_failed", zap.Error(err))
		}
		return "", false
	}
	return mv, true
}

func (c *EngineCache) Put(ctx context.Context, fen string, movetime time.Duration, move string) {
	if err := c.rdb.Set(ctx, engineKey(fen, movetime), move, c.ttl).Err(); err != nil {
		c.log.Warn("engine_cache_put_failed", zap.Error(err))
	}
}

var _ uci.Cache = (*EngineCache)(nil)
