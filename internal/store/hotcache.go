package store

import (
	"sync"
	"time"

	"github.com/taskmesh/dagcore/internal/dag"
)

// hotCache is an in-memory LRU-with-TTL cache in front of the bbolt store,
// keyed directly by dag.TaskID since the metadata store's cache key is
// already the content-independent identifier.
type hotCache struct {
	mu      sync.Mutex
	entries map[dag.TaskID]*hotEntry
	maxSize int
	ttl     time.Duration
}

type hotEntry struct {
	value     any
	expiresAt time.Time
	lastUsed  time.Time
}

func newHotCache(maxSize int, ttl time.Duration) *hotCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &hotCache{
		entries: make(map[dag.TaskID]*hotEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *hotCache) get(id dag.TaskID) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	e.lastUsed = time.Now()
	return e.value, true
}

func (c *hotCache) put(id dag.TaskID, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	now := time.Now()
	c.entries[id] = &hotEntry{value: value, expiresAt: now.Add(c.ttl), lastUsed: now}
}

func (c *hotCache) evictOldest() {
	var oldest dag.TaskID
	var oldestTime time.Time
	first := true
	for id, e := range c.entries {
		if first || e.lastUsed.Before(oldestTime) {
			oldest, oldestTime, first = id, e.lastUsed, false
		}
	}
	if !first {
		delete(c.entries, oldest)
	}
}

func (c *hotCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[dag.TaskID]*hotEntry)
}
