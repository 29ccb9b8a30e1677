package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/freegin/freegin-ai/internal/metrics"
	"github.com/freegin/freegin-ai/internal/providers"
)

// ResponseCache caches whole generation responses keyed by the request's
// routing-relevant fields. A nil *ResponseCache disables caching; all
// methods are nil-safe.
type ResponseCache struct {
	backend   Cache
	ttl       time.Duration
	exclusion *ExclusionList
	metrics   *metrics.Registry
}

// NewResponseCache wraps a backend. A zero ttl defaults to one hour; a nil
// metrics registry disables the set counters.
func NewResponseCache(backend Cache, ttl time.Duration, exclusion *ExclusionList, m *metrics.Registry) *ResponseCache {
	if backend == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResponseCache{backend: backend, ttl: ttl, exclusion: exclusion, metrics: m}
}

// Key derives a stable cache key from the fields that determine a response:
// model, composed prompt, response format, and the provider preference.
// Tags and metadata are deliberately excluded; they do not change upstream
// output.
func Key(req *providers.Request) string {
	h := sha256.New()
	for _, part := range []string{
		req.Model,
		req.EffectivePrompt(),
		string(req.Hints.Format),
		strings.ToLower(req.Hints.Provider),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "gen:" + hex.EncodeToString(h.Sum(nil))
}

// Lookup returns a cached response for req, or (nil, false).
func (c *ResponseCache) Lookup(ctx context.Context, req *providers.Request) (*providers.Response, bool) {
	if c == nil || c.exclusion.Matches(req.Model) {
		return nil, false
	}
	data, ok := c.backend.Get(ctx, Key(req))
	if !ok {
		return nil, false
	}
	var resp providers.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// Store records resp for req. Failures are swallowed; the cache never
// breaks a successful generation.
func (c *ResponseCache) Store(ctx context.Context, req *providers.Request, resp *providers.Response) {
	if c == nil || c.exclusion.Matches(req.Model) {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, Key(req), data, c.ttl); err != nil {
		if c.metrics != nil {
			c.metrics.CacheSetError()
		}
		return
	}
	if c.metrics != nil {
		c.metrics.CacheSetOK()
	}
}
