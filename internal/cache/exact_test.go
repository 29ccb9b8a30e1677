package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/freegin/freegin-ai/internal/providers"
)

var (
	_ Cache = (*ExactCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)

func newExactCache(t *testing.T) (*ExactCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewExactCacheFromURL(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewExactCacheFromURL: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestExactCacheMissThenHit(t *testing.T) {
	c, _ := newExactCache(t)
	ctx := context.Background()

	key := Key(&providers.Request{Model: "llama-3.3-70b-versatile", Prompt: "Summarize the release notes."})
	if data, ok := c.Get(ctx, key); ok || data != nil {
		t.Fatalf("expected miss on empty cache, got %q", data)
	}

	payload := []byte(`{"content":"Three bullet points.","provider":"groq"}`)
	if err := c.Set(ctx, key, payload, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after store")
	}
	if string(got) != string(payload) {
		t.Fatalf("Get returned %q, want %q", got, payload)
	}
}

func TestExactCacheHonorsTTL(t *testing.T) {
	c, mr := newExactCache(t)
	ctx := context.Background()

	key := Key(&providers.Request{Model: "gemini-2.0-flash", Prompt: "Classify this ticket."})
	ttl := 10 * time.Second
	if err := c.Set(ctx, key, []byte("support"), ttl); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := c.Get(ctx, key); !ok {
		t.Fatal("entry should live until the TTL elapses")
	}

	mr.FastForward(ttl + time.Second)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("entry should expire once the TTL elapses")
	}
}

func TestExactCacheDelete(t *testing.T) {
	c, _ := newExactCache(t)
	ctx := context.Background()

	key := Key(&providers.Request{Model: "mistral-small-latest", Prompt: "Extract the dates."})
	if err := c.Set(ctx, key, []byte("2026-08-26"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("entry should be gone after Delete")
	}

	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "gen:absent"); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}
}

func TestExactCacheSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewExactCacheFromURL(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewExactCacheFromURL: %v", err)
	}
	defer func() { _ = c.Close() }()

	mr.Close()

	key := Key(&providers.Request{Model: "llama-4-maverick", Prompt: "Draft a reply."})
	if data, ok := c.Get(context.Background(), key); ok || data != nil {
		t.Fatal("Get must degrade to a miss when Redis is down")
	}
	if err := c.Set(context.Background(), key, []byte("x"), time.Hour); err != nil {
		t.Fatalf("Set must swallow Redis errors, got: %v", err)
	}
}

func TestNewExactCacheInvalidURL(t *testing.T) {
	_, err := NewExactCacheFromURL(context.Background(), "not-a-valid-url")
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}
