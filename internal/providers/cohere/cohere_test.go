package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
	if !apperr.IsKind(err, apperr.KindConfig) {
		t.Errorf("error kind = %v, want config error", err)
	}
}

func TestGenerate(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"text": "a reply"}`))
	}))
	defer srv.Close()

	c, err := New("co-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Generate(context.Background(), &providers.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "a reply" || resp.Provider != providers.Cohere {
		t.Errorf("response = %+v", resp)
	}
	if gotBody.Model != defaultModel {
		t.Errorf("model = %q, want default %q", gotBody.Model, defaultModel)
	}
	if gotBody.Message != "hi" {
		t.Errorf("message = %q", gotBody.Message)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api token"}`))
	}))
	defer srv.Close()

	c, err := New("bad", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(context.Background(), &providers.Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !apperr.IsKind(err, apperr.KindAPI) {
		t.Errorf("error kind = %v, want API error", err)
	}
}
