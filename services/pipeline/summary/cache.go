// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package summary

import (
	"fmt"
	"sync"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/section"
)

// CacheKey derives the cache key for a section's content. Changing the
// content changes the key, so stale entries are never served.
func CacheKey(sectionID, content string) string {
	return fmt.Sprintf("%s:%s", sectionID, section.ContentHash(content))
}

// CacheStats reports cache effectiveness for a run.
type CacheStats struct {
	Entries int
	Hits    int
	Misses  int
}

// HitRate returns the fraction of lookups served from cache.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache holds successful summaries keyed by section id plus content
// hash. Failed summarizations are never stored, so a failure is always
// retried on the next run.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]SectionSummary
	hits    int
	misses  int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]SectionSummary),
	}
}

// Get returns a copy of the cached summary for the key. The copy has
// Cached set to true.
func (c *Cache) Get(key string) (SectionSummary, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		return SectionSummary{}, false
	}
	out := entry.Clone()
	out.Cached = true
	return out, true
}

// Set stores a successful summary. The stored copy always has Cached
// false so the flag reflects each caller's own lookup path.
func (c *Cache) Set(key string, s SectionSummary) {
	stored := s.Clone()
	stored.Cached = false

	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()
}

// Has reports whether the key is present without counting a lookup.
func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	_, ok := c.entries[key]
	c.mu.RUnlock()
	return ok
}

// Count returns the number of cached summaries.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
