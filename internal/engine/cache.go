package engine

import (
	"strings"
	"sync"
)

// ExactCache maps a verbatim question to the SQL that answered it. Entries
// are only admitted once the SQL is fully concrete, so a cache hit can be
// returned without any further processing.
type ExactCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewExactCache() *ExactCache {
	return &ExactCache{entries: map[string]string{}}
}

func (c *ExactCache) Get(question string) (string, bool) {
	key := cacheKey(question)
	c.mu.RLock()
	defer c.mu.RUnlock()
	sql, ok := c.entries[key]
	return sql, ok
}

func (c *ExactCache) Put(question, sql string) {
	key := cacheKey(question)
	if key == "" || sql == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = sql
}

// Clear drops every entry and returns how many were removed.
func (c *ExactCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := len(c.entries)
	c.entries = map[string]string{}
	return removed
}

func (c *ExactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cache contents for persistence.
func (c *ExactCache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]string, len(c.entries))
	for question, sql := range c.entries {
		snapshot[question] = sql
	}
	return snapshot
}

func (c *ExactCache) Restore(entries map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string, len(entries))
	for question, sql := range entries {
		c.entries[question] = sql
	}
}

func cacheKey(question string) string {
	return strings.TrimSpace(question)
}
