package cache

import (
	"testing"

	"github.com/freegin/freegin-ai/pkg/apperr"
)

func TestExclusionListNilSafe(t *testing.T) {
	var el *ExclusionList
	if el.Matches("llama-3.3-70b-versatile") {
		t.Fatal("nil ExclusionList must never match")
	}
	if el.Len() != 0 {
		t.Fatalf("nil ExclusionList Len = %d, want 0", el.Len())
	}
}

func TestExclusionListExactNames(t *testing.T) {
	el, err := NewExclusionList([]string{"llama-3.3-70b-versatile", "gemini-2.0-flash"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		model string
		want  bool
	}{
		{"llama-3.3-70b-versatile", true},
		{"gemini-2.0-flash", true},
		{"gemini-2.0-flash-lite", false}, // name rules never match prefixes
		{"GEMINI-2.0-FLASH", false},      // case sensitive
		{"mistral-small-latest", false},
	}
	for _, tt := range tests {
		if got := el.Matches(tt.model); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestExclusionListPatterns(t *testing.T) {
	el, err := NewExclusionList(nil, []string{`^llama-4-`, `preview$`})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		model string
		want  bool
	}{
		{"llama-4-maverick", true},
		{"llama-4-scout", true},
		{"gemini-2.5-pro-preview", true},
		{"llama-3.3-70b-versatile", false},
		{"preview-model-x", false},
	}
	for _, tt := range tests {
		if got := el.Matches(tt.model); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestExclusionListMixedRules(t *testing.T) {
	el, err := NewExclusionList([]string{"mistral-large-latest"}, []string{`^deepseek-`})
	if err != nil {
		t.Fatal(err)
	}

	if !el.Matches("mistral-large-latest") {
		t.Error("name rule missed")
	}
	if !el.Matches("deepseek-chat") {
		t.Error("pattern rule missed")
	}
	if el.Matches("mistral-small-latest") {
		t.Error("unrelated model matched")
	}
	if el.Len() != 2 {
		t.Errorf("Len = %d, want 2", el.Len())
	}
}

func TestExclusionListInvalidPattern(t *testing.T) {
	_, err := NewExclusionList(nil, []string{`[broken(`})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if !apperr.IsKind(err, apperr.KindConfig) {
		t.Errorf("expected a config error, got %v", err)
	}
}

func TestExclusionListBlankRulesDropped(t *testing.T) {
	el, err := NewExclusionList([]string{"", "gemini-2.0-flash", ""}, []string{"", `^llama-4-`})
	if err != nil {
		t.Fatal(err)
	}
	if el.Len() != 2 {
		t.Errorf("Len = %d, want 2", el.Len())
	}
	if !el.Matches("gemini-2.0-flash") || !el.Matches("llama-4-maverick") {
		t.Error("surviving rules should still match")
	}
}
