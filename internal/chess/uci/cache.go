package uci

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache remembers fixed-time search results keyed by position and movetime.
type Cache interface {
	Get(ctx context.Context, fen string, movetime time.Duration) (string, bool)
	Put(ctx context.Context, fen string, movetime time.Duration, move string)
}

// CacheKey is the canonical key for a (fen, movetime) pair.
func CacheKey(fen string, movetime time.Duration) string {
	return fmt.Sprintf("%s|%d", fen, movetime.Milliseconds())
}

// MemoryCache is an in-process Cache. When full, the oldest entry is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]string
	order   []string
}

func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = 1024
	}
	return &MemoryCache{max: max, entries: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, fen string, movetime time.Duration) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mv, ok := c.entries[CacheKey(fen, movetime)]
	return mv, ok
}

func (c *MemoryCache) Put(_ context.Context, fen string, movetime time.Duration, move string) {
	key := CacheKey(fen, movetime)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.max {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = move
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
	c.order = nil
}
