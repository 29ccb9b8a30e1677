package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(providers.Groq, "")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
	if !apperr.IsKind(err, apperr.KindConfig) {
		t.Errorf("error kind = %v, want config error", err)
	}
}

func TestNewCloudflareRequiresBaseURL(t *testing.T) {
	_, err := New(providers.Cloudflare, "key")
	if err == nil {
		t.Fatal("expected error: cloudflare has no built-in endpoint")
	}
	if !apperr.IsKind(err, apperr.KindConfig) {
		t.Errorf("error kind = %v, want config error", err)
	}

	if _, err := New(providers.Cloudflare, "key", WithBaseURL("https://example.com/v1")); err != nil {
		t.Errorf("with base URL: %v", err)
	}
}

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello from groq"}}]}`))
	}))
	defer srv.Close()

	c, err := New(providers.Groq, "sk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	resp, err := c.Generate(context.Background(), &providers.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "hello from groq" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Provider != providers.Groq {
		t.Errorf("provider = %q", resp.Provider)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody.Model != "llama-3.3-70b-versatile" {
		t.Errorf("default model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}

func TestGenerateExplicitModelAndContext(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := New(providers.DeepSeek, "k", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(context.Background(), &providers.Request{
		Model:   "deepseek-reasoner",
		Prompt:  "solve it",
		Context: []string{"background info"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotBody.Model != "deepseek-reasoner" {
		t.Errorf("model = %q", gotBody.Model)
	}
	prompt := gotBody.Messages[0].Content
	if !strings.Contains(prompt, "Context 1:\nbackground info") || !strings.HasSuffix(prompt, "solve it") {
		t.Errorf("composed prompt = %q", prompt)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	c, err := New(providers.Groq, "k", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(context.Background(), &providers.Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !apperr.IsKind(err, apperr.KindAPI) {
		t.Errorf("error kind = %v, want API error", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "429") || !strings.Contains(msg, "rate limit exceeded") {
		t.Errorf("error should carry status and body, got %q", msg)
	}
	if !strings.Contains(msg, "Groq") {
		t.Errorf("error should name the provider, got %q", msg)
	}
}

func TestGenerateNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c, err := New(providers.Together, "k", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(context.Background(), &providers.Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected network error")
	}
	if !apperr.IsKind(err, apperr.KindNetwork) {
		t.Errorf("error kind = %v, want network error", err)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := New(providers.Cerebras, "k", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Generate(context.Background(), &providers.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "" {
		t.Errorf("content = %q, want empty", resp.Content)
	}
}
