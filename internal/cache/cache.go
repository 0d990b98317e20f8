// Package cache provides an LRU, TTL-bounded memoization layer for
// extraction results, so a rule that scrapeSchemas the same page state
// twice within a run (e.g. after a soft-failed action retried the same
// selector) doesn't re-run the in-page evaluate pass. scrapeList results
// are not cached.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache stores extraction result rows keyed by a fingerprint of
// (page URL, action, selector/schema).
type Cache interface {
	Get(key string) ([]map[string]any, bool)
	Set(key string, rows []map[string]any, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Close()
}

type cacheEntry struct {
	Rows      []map[string]any
	ExpiresAt time.Time
	Key       string
}

// MemoryCache is an in-memory, size-bounded cache with LRU eviction and a
// background sweep for expired entries.
type MemoryCache struct {
	store   map[string]*list.Element
	lruList *list.List
	mu      sync.RWMutex
	maxSize int64
	size    int64
	ctx     context.Context
	cancel  context.CancelFunc
	hits    uint64
	misses  uint64
}

// NewMemoryCache creates a cache bounded to maxSizeBytes (default 100MB).
func NewMemoryCache(maxSizeBytes int64) *MemoryCache {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 100 * 1024 * 1024
	}

	ctx, cancel := context.WithCancel(context.Background())
	mc := &MemoryCache{
		store:   make(map[string]*list.Element),
		lruList: list.New(),
		maxSize: maxSizeBytes,
		ctx:     ctx,
		cancel:  cancel,
	}

	go mc.cleanupExpired()
	return mc
}

func rowsSize(rows []map[string]any) int64 {
	b, err := json.Marshal(rows)
	if err != nil {
		return 1024
	}
	return int64(len(b)) + 256
}

// Get retrieves cached rows, moving the entry to the front of the LRU list.
func (mc *MemoryCache) Get(key string) ([]map[string]any, bool) {
	mc.mu.Lock()
	element, exists := mc.store[key]
	if !exists {
		mc.misses++
		mc.mu.Unlock()
		return nil, false
	}

	entry := element.Value.(*cacheEntry)
	if time.Now().After(entry.ExpiresAt) {
		mc.misses++
		mc.mu.Unlock()
		go mc.Delete(key)
		return nil, false
	}

	mc.lruList.MoveToFront(element)
	mc.hits++
	mc.mu.Unlock()

	log.Debug().Str("key", key).Msg("extraction cache hit")
	return entry.Rows, true
}

// Set stores rows under key with the given TTL (default 5 minutes).
func (mc *MemoryCache) Set(key string, rows []map[string]any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	size := rowsSize(rows)

	if element, exists := mc.store[key]; exists {
		old := element.Value.(*cacheEntry)
		mc.size -= rowsSize(old.Rows)

		element.Value = &cacheEntry{Rows: rows, ExpiresAt: time.Now().Add(ttl), Key: key}
		mc.lruList.MoveToFront(element)
		mc.size += size
		return nil
	}

	for mc.size+size > mc.maxSize && mc.lruList.Len() > 0 {
		mc.evictLRU()
	}

	entry := &cacheEntry{Rows: rows, ExpiresAt: time.Now().Add(ttl), Key: key}
	element := mc.lruList.PushFront(entry)
	mc.store[key] = element
	mc.size += size
	return nil
}

// Delete removes a cached entry, no-op if absent.
func (mc *MemoryCache) Delete(key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if element, exists := mc.store[key]; exists {
		entry := element.Value.(*cacheEntry)
		mc.lruList.Remove(element)
		delete(mc.store, key)
		mc.size -= rowsSize(entry.Rows)
	}
	return nil
}

// Clear empties the cache and resets its hit/miss counters.
func (mc *MemoryCache) Clear() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.store = make(map[string]*list.Element)
	mc.lruList = list.New()
	mc.size = 0
	mc.hits = 0
	mc.misses = 0
	return nil
}

// Close stops the background expiry sweep.
func (mc *MemoryCache) Close() {
	mc.cancel()
}

func (mc *MemoryCache) evictLRU() {
	element := mc.lruList.Back()
	if element == nil {
		return
	}
	entry := element.Value.(*cacheEntry)
	mc.lruList.Remove(element)
	delete(mc.store, entry.Key)
	mc.size -= rowsSize(entry.Rows)
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			now := time.Now()
			var next *list.Element
			for element := mc.lruList.Front(); element != nil; element = next {
				next = element.Next()
				entry := element.Value.(*cacheEntry)
				if now.After(entry.ExpiresAt) {
					mc.lruList.Remove(element)
					delete(mc.store, entry.Key)
					mc.size -= rowsSize(entry.Rows)
				}
			}
			mc.mu.Unlock()
		case <-mc.ctx.Done():
			return
		}
	}
}

// Stats reports hit-rate and occupancy, for debug logging.
func (mc *MemoryCache) Stats() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	hitRate := 0.0
	total := mc.hits + mc.misses
	if total > 0 {
		hitRate = float64(mc.hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"entries":     mc.lruList.Len(),
		"size_bytes":  mc.size,
		"max_size":    mc.maxSize,
		"utilization": float64(mc.size) / float64(mc.maxSize) * 100,
		"hits":        mc.hits,
		"misses":      mc.misses,
		"hit_rate":    hitRate,
	}
}

// KeyFor builds a cache key from the page URL and the action's identifying
// selector (listSelector, scrapeSchema's field set, etc).
func KeyFor(url, action, selector string) string {
	if selector == "" {
		return fmt.Sprintf("%s::%s", action, url)
	}
	return fmt.Sprintf("%s::%s::%s", action, url, selector)
}
