// Package cache provides the in-memory cache behind derived read
// projections and the reasoning gateway's response cache, plus the
// concept-keyed invalidator the saga coordinator calls after every
// committed mutation.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryCache is a thread-safe in-memory cache with LRU eviction and
// per-item TTL. Suitable for single-instance deployments.
type MemoryCache struct {
	mu          sync.Mutex
	items       map[string]*cacheItem
	lruList     *list.List
	maxItems    int
	maxMemory   int64
	currentSize int64

	hits      int64
	misses    int64
	evictions int64

	logger *zap.Logger
}

type cacheItem struct {
	key        string
	value      []byte
	size       int64
	expiry     time.Time
	lruElement *list.Element
}

// NewMemoryCache creates a cache bounded by item count and total bytes.
func NewMemoryCache(maxItems int, maxMemory int64, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryCache{
		items:     make(map[string]*cacheItem),
		lruList:   list.New(),
		maxItems:  maxItems,
		maxMemory: maxMemory,
		logger:    logger,
	}
}

// Get retrieves a value. The second return reports whether the key was
// present and unexpired.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}
	if time.Now().After(item.expiry) {
		c.removeItem(item)
		c.misses++
		return nil, false
	}

	c.lruList.MoveToFront(item.lruElement)
	c.hits++

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true
}

// Set stores a value with the given TTL, evicting LRU entries as needed.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	itemSize := int64(len(key) + len(value))
	if itemSize > c.maxMemory {
		c.logger.Warn("item too large for cache, skipping",
			zap.String("key", key),
			zap.Int64("size", itemSize),
		)
		return
	}

	if existing, exists := c.items[key]; exists {
		c.removeItem(existing)
	}

	for (c.currentSize+itemSize > c.maxMemory || len(c.items) >= c.maxItems) && c.lruList.Len() > 0 {
		oldest := c.lruList.Back()
		if oldest == nil {
			break
		}
		c.removeItem(oldest.Value.(*cacheItem))
		c.evictions++
	}

	item := &cacheItem{
		key:    key,
		value:  append([]byte(nil), value...),
		size:   itemSize,
		expiry: time.Now().Add(ttl),
	}
	item.lruElement = c.lruList.PushFront(item)
	c.items[key] = item
	c.currentSize += itemSize
}

// Delete removes a single key.
func (c *MemoryCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		c.removeItem(item)
	}
}

// DeleteByPrefix removes every key with the given prefix and returns how
// many entries were dropped. Derived projections share a per-concept key
// prefix, so invalidation is a single prefix sweep.
func (c *MemoryCache) DeleteByPrefix(ctx context.Context, prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	toDelete := make([]*cacheItem, 0)
	for key, item := range c.items {
		if strings.HasPrefix(key, prefix) {
			toDelete = append(toDelete, item)
		}
	}
	for _, item := range toDelete {
		c.removeItem(item)
	}
	return len(toDelete)
}

// removeItem removes an item. Caller must hold the lock.
func (c *MemoryCache) removeItem(item *cacheItem) {
	if item.lruElement != nil {
		c.lruList.Remove(item.lruElement)
	}
	delete(c.items, item.key)
	c.currentSize -= item.size
}

// Stats holds cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Items     int
	Size      int64
}

// GetStats returns a snapshot of cache statistics.
func (c *MemoryCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Items:     len(c.items),
		Size:      c.currentSize,
	}
}

// StartCleanup starts a background goroutine that drops expired items. The
// returned stop function terminates it.
func (c *MemoryCache) StartCleanup(interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.cleanupExpired()
			}
		}
	}()
	return func() { close(stop) }
}

func (c *MemoryCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	toRemove := make([]*cacheItem, 0)
	for _, item := range c.items {
		if now.After(item.expiry) {
			toRemove = append(toRemove, item)
		}
	}
	for _, item := range toRemove {
		c.removeItem(item)
	}
	if len(toRemove) > 0 {
		c.logger.Debug("cleaned up expired cache items", zap.Int("count", len(toRemove)))
	}
}
