package openai

import (
	"testing"

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

func TestNewWithBaseURL(t *testing.T) {
	c, err := New("sk-test", WithBaseURL("http://127.0.0.1:1/v1"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c == nil {
		t.Fatal("nil client")
	}
}
