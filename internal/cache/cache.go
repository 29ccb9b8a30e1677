// Package cache provides optional response caching for generation requests.
//
// Two backends are available:
//   - ExactCache  — Redis-backed, for multi-replica deployments.
//   - MemoryCache — in-process TTL cache, zero external dependencies.
//
// Both implement the Cache interface. Caching defaults to off; identical
// prompts to a generative model are not always expected to return identical
// answers, so operators opt in per deployment.
package cache

import (
	"context"
	"time"
)

// Cache is the byte-level contract implemented by every backend.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
