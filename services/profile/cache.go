package profile

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
)

type cacheEntry struct {
	userID     uuid.UUID
	profile    models.Profile
	insertedAt time.Time
	element    *list.Element
}

func (e *cacheEntry) isExpired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.insertedAt) > ttl
}

// Cache is an in-memory LRU cache with TTL for profiles. It stores copies,
// so callers may mutate what they get back.
type Cache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewCache creates a cache holding at most maxSize profiles for ttl each.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached profile, or nil if absent or expired.
func (c *Cache) Get(userID uuid.UUID) *models.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[userID]
	if !exists || entry.isExpired(c.ttl, c.now()) {
		c.misses++
		if exists {
			c.removeEntry(userID)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++

	return copyProfile(&entry.profile)
}

// Set stores a copy of p.
func (c *Cache) Set(p *models.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[p.UserID]; exists {
		entry.profile = *copyProfile(p)
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		userID:     p.UserID,
		profile:    *copyProfile(p),
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(p.UserID)
	c.entries[p.UserID] = entry
}

// Invalidate removes the entry for userID.
func (c *Cache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(userID)
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uuid.UUID]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CleanupExpired removes all expired entries and returns how many it removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for userID, entry := range c.entries {
		if entry.isExpired(c.ttl, now) {
			c.removeEntry(userID)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically drops expired entries until stopCh closes.
func (c *Cache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// removeEntry must be called with the lock held.
func (c *Cache) removeEntry(userID uuid.UUID) {
	if entry, exists := c.entries[userID]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, userID)
	}
}

// evictLRU must be called with the lock held.
func (c *Cache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	userID := back.Value.(uuid.UUID)
	c.lruList.Remove(back)
	delete(c.entries, userID)
}

func copyProfile(p *models.Profile) *models.Profile {
	out := *p
	if p.PropertyID != nil {
		id := *p.PropertyID
		out.PropertyID = &id
	}
	return &out
}
