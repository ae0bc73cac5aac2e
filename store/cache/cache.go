// Package cache keeps recent platform lookups in memory so the request gate
// does not hit the credential store for every request of an active platform.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/store"
)

type entry struct {
	platforms []*store.Platform
	expiresAt time.Time
}

// CachedStore wraps a store.Store and caches GetPlatformsByCode. Only codes
// that resolved to at least one platform are cached. Every other method goes
// straight to the wrapped store.
type CachedStore struct {
	store.Store

	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewCachedStore caches up to maxSize auth codes for ttl each
func NewCachedStore(s store.Store, ttl time.Duration, maxSize int) *CachedStore {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &CachedStore{
		Store:   s,
		entries: make(map[string]*entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *CachedStore) GetPlatformsByCode(ctx context.Context, code string) ([]*store.Platform, error) {
	c.mu.RLock()
	e, ok := c.entries[code]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		metrics.PlatformCacheLookups.WithLabelValues("hit").Inc()
		return e.platforms, nil
	}
	metrics.PlatformCacheLookups.WithLabelValues("miss").Inc()

	platforms, err := c.Store.GetPlatformsByCode(ctx, code)
	if err != nil || len(platforms) == 0 {
		return platforms, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[code]; !exists && len(c.entries) >= c.maxSize {
		c.evictOne()
	}
	c.entries[code] = &entry{platforms: platforms, expiresAt: c.now().Add(c.ttl)}
	return platforms, nil
}

// CreatePlatform registers p and drops any cached lookup of its code
func (c *CachedStore) CreatePlatform(ctx context.Context, p *store.Platform) error {
	if err := c.Store.CreatePlatform(ctx, p); err != nil {
		return err
	}
	c.Invalidate(p.Code)
	return nil
}

// Invalidate removes the cached lookup of code
func (c *CachedStore) Invalidate(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
}

// Cleanup removes expired entries and returns how many were removed
func (c *CachedStore) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for code, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, code)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every ttl until stop is closed
func (c *CachedStore) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// evictOne drops an expired entry, or the entry closest to expiry when none
// has expired. Caller must hold the write lock.
func (c *CachedStore) evictOne() {
	var (
		victim string
		oldest time.Time
	)
	for code, e := range c.entries {
		if victim == "" || e.expiresAt.Before(oldest) {
			victim, oldest = code, e.expiresAt
		}
	}
	delete(c.entries, victim)
}
