package cache

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

type entry struct {
	payload  []byte
	deadline time.Time
}

// MemoryCache holds serialized generation responses in process memory with a
// per-entry TTL. It is safe for concurrent use; a janitor goroutine sweeps
// expired entries so a long-lived gateway does not accumulate stale payloads.
//
// Suited to a single-instance gateway or local development. Multi-replica
// deployments should use ExactCache so all replicas share hits.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry

	done chan struct{}
}

// NewMemoryCache builds the cache and starts the janitor. The janitor stops
// when ctx is cancelled or Close is called.
func NewMemoryCache(ctx context.Context) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.janitor(ctx)
	return c
}

// Get returns the payload stored under key, or (nil, false) on a miss. An
// entry past its deadline counts as a miss and is removed on access.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.deadline) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

// Set stores value under key for the duration of ttl. A zero or negative ttl
// defaults to one hour.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.mu.Lock()
	c.entries[key] = entry{payload: value, deadline: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes key. Removing an absent key is not an error.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len reports the current entry count, expired-but-unswept entries included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the janitor goroutine.
func (c *MemoryCache) Close() {
	close(c.done)
}

func (c *MemoryCache) janitor(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) sweep() {
	now := time.Now()

	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.deadline) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
