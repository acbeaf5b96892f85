// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hashing

import (
	"os"
	"sync"
)

// ContentCache caches file contents between publishes in watch mode, keyed
// by absolute path. An entry is reused only when both mtime and size are
// unchanged; entries for paths outside the current file set are evicted
// after each digest so the cache tracks the live pack list.
type ContentCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	mtimeMs int64
	size    int64
	content []byte
}

// NewContentCache returns an empty cache.
func NewContentCache() *ContentCache {
	return &ContentCache{entries: make(map[string]cacheEntry)}
}

// Get returns the file's contents, from cache when still valid.
func (c *ContentCache) Get(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	mtimeMs := info.ModTime().UnixMilli()
	size := info.Size()

	c.mu.Lock()
	if e, ok := c.entries[path]; ok && e.mtimeMs == mtimeMs && e.size == size {
		content := e.content
		c.mu.Unlock()
		return content, nil
	}
	c.mu.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[path] = cacheEntry{mtimeMs: mtimeMs, size: size, content: content}
	c.mu.Unlock()
	return content, nil
}

// EvictExcept drops every cached path not in keep.
func (c *ContentCache) EvictExcept(keep []string) {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.entries {
		if !keepSet[p] {
			delete(c.entries, p)
		}
	}
}

// Len reports the number of cached entries.
func (c *ContentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
