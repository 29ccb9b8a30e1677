package cache

import (
	"context"
	"testing"
	"time"

	"github.com/freegin/freegin-ai/internal/metrics"
	"github.com/freegin/freegin-ai/internal/providers"
)

func TestResponseCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache(ctx)
	defer mem.Close()

	rc := NewResponseCache(mem, time.Hour, nil, nil)
	req := &providers.Request{Model: "gemini-2.0-flash", Prompt: "hello"}

	if _, ok := rc.Lookup(ctx, req); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	want := &providers.Response{Content: "hi there", Provider: providers.Google}
	rc.Store(ctx, req, want)

	got, ok := rc.Lookup(ctx, req)
	if !ok {
		t.Fatal("expected hit after store")
	}
	if got.Content != want.Content || got.Provider != want.Provider {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResponseCacheKeyDiscriminates(t *testing.T) {
	base := &providers.Request{Model: "m", Prompt: "p"}
	variants := []*providers.Request{
		{Model: "m2", Prompt: "p"},
		{Model: "m", Prompt: "p2"},
		{Model: "m", Prompt: "p", Context: []string{"extra"}},
		{Model: "m", Prompt: "p", Hints: providers.Hints{Format: providers.FormatJSON}},
		{Model: "m", Prompt: "p", Hints: providers.Hints{Provider: "groq"}},
	}
	baseKey := Key(base)
	for i, v := range variants {
		if Key(v) == baseKey {
			t.Errorf("variant %d collides with base key", i)
		}
	}

	// tags and metadata do not affect the key
	tagged := &providers.Request{Model: "m", Prompt: "p", Tags: []string{"batch"}, Metadata: map[string]string{"k": "v"}}
	if Key(tagged) != baseKey {
		t.Error("tags/metadata changed the cache key")
	}
}

func TestResponseCacheExclusions(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache(ctx)
	defer mem.Close()

	el, err := NewExclusionList([]string{"no-cache-model"}, []string{`preview$`})
	if err != nil {
		t.Fatal(err)
	}
	rc := NewResponseCache(mem, time.Hour, el, nil)

	for _, model := range []string{"no-cache-model", "gemini-2.5-pro-preview"} {
		req := &providers.Request{Model: model, Prompt: "p"}
		rc.Store(ctx, req, &providers.Response{Content: "x", Provider: providers.OpenAI})
		if _, ok := rc.Lookup(ctx, req); ok {
			t.Errorf("excluded model %q was cached", model)
		}
	}
}

func TestResponseCacheStoreCountsSets(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache(ctx)
	defer mem.Close()

	m := metrics.New()
	rc := NewResponseCache(mem, time.Hour, nil, m)

	req := &providers.Request{Model: "llama-3.3-70b-versatile", Prompt: "p"}
	rc.Store(ctx, req, &providers.Response{Content: "x", Provider: providers.Groq})
	rc.Store(ctx, req, &providers.Response{Content: "x", Provider: providers.Groq})

	got := counterValue(t, m, "ai_cache_operations_total",
		map[string]string{"op": "set", "result": "ok"})
	if got != 2 {
		t.Errorf("set counter = %v, want 2", got)
	}
}

func TestNilResponseCacheIsSafe(t *testing.T) {
	var rc *ResponseCache
	req := &providers.Request{Model: "m", Prompt: "p"}
	if _, ok := rc.Lookup(context.Background(), req); ok {
		t.Fatal("nil cache returned a hit")
	}
	rc.Store(context.Background(), req, &providers.Response{})
}
