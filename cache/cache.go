// Package cache keeps recently assembled listing records so that a URL
// repeated within a run, or re-submitted shortly after, is not visited twice.
package cache

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/appraise/models"
)

// entry holds a cached record with its creation timestamp.
type entry struct {
	record    *models.ListingRecord
	createdAt time.Time
}

// Cache is a simple in-memory cache for listing records.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries records for at most
// maxAge. A zero maxAge or maxEntries disables caching.
func New(maxEntries int, maxAge time.Duration) *Cache {
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Key canonicalizes a listing URL: the host is lower-cased, and the query,
// fragment and trailing slash are dropped.
func Key(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.SplitN(raw, "?", 2)[0], "/")
	}
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// Get returns the record cached under key if it is younger than maxAge.
func (c *Cache) Get(key string) (*models.ListingRecord, bool) {
	if c == nil || c.maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > c.maxAge {
		return nil, false
	}
	return e.record, true
}

// Set stores a record. Expired entries are pruned first; if the cache is
// still at capacity the oldest entry is evicted.
func (c *Cache) Set(key string, rec *models.ListingRecord) {
	if c == nil || c.maxAge <= 0 || c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.store {
		if now.Sub(e.createdAt) > c.maxAge {
			delete(c.store, k)
		}
	}

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldest string
		var oldestAt time.Time
		for k, e := range c.store {
			if oldest == "" || e.createdAt.Before(oldestAt) {
				oldest, oldestAt = k, e.createdAt
			}
		}
		delete(c.store, oldest)
	}

	c.store[key] = &entry{record: rec, createdAt: now}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
