package catalog

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

// refreshContext is serialized into the discovery prompt so the model sees
// the current roster and how it has been performing.
type refreshContext struct {
	Provider      string             `json:"provider"`
	Workload      string             `json:"workload"`
	CurrentModels []refreshModelInfo `json:"current_models"`
	UsageStats    refreshStatsInfo   `json:"usage_stats"`
}

type refreshModelInfo struct {
	Model     string  `json:"model"`
	Priority  int64   `json:"priority"`
	Rationale *string `json:"rationale"`
}

type refreshStatsInfo struct {
	TotalCalls   int64   `json:"total_calls"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type suggestionSet struct {
	Suggestions []suggestionItem `json:"suggestions"`
}

type suggestionItem struct {
	Model           string          `json:"model"`
	Workload        string          `json:"workload"`
	Rationale       *string         `json:"rationale"`
	ProductionReady *bool           `json:"production_ready"`
	Notes           *string         `json:"notes"`
	Metadata        json.RawMessage `json:"metadata"`
}

// RefreshResult reports what a refresh produced. In dry-run mode Inserted
// is zero and Proposed holds the parsed candidates without side effects.
type RefreshResult struct {
	Provider providers.Provider `json:"provider"`
	Workload providers.Workload `json:"workload"`
	Inserted int                `json:"inserted"`
	Proposed []ProposedModel    `json:"proposed"`
}

// ProposedModel is one candidate from a refresh run.
type ProposedModel struct {
	Model           string  `json:"model"`
	Workload        string  `json:"workload"`
	Rationale       *string `json:"rationale,omitempty"`
	ProductionReady bool    `json:"production_ready"`
	Notes           *string `json:"notes,omitempty"`
}

func workloadDisplay(w providers.Workload) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(string(w[:1])) + string(w[1:])
}

const refreshPromptHeader = "You are a model selection assistant. Analyze the following context and suggest 3-5 candidate models for the given provider and workload."

const refreshPromptRequirements = `Requirements:
- Respond with ONLY valid JSON matching this schema:
{
  "suggestions": [
    {
      "model": "provider/model-name",
      "workload": "Chat|Code|Summarization|Extraction|Creative|Classification",
      "rationale": "Brief explanation (max 40 words)",
      "production_ready": true|false,
      "notes": "Optional additional notes",
      "metadata": {"est_cost_per_1k_tokens": 0.15}
    }
  ]
}

- Consider current models and usage statistics
- Prioritize models with good cost/performance balance
- Include newer models that might outperform current roster
- Ensure model names are valid for the provider

Output only the JSON, no other text.`

// Refresh asks a generation backend for model candidates and records them
// as pending suggestions. The backend sees the current roster and usage
// statistics for context and must answer with a strict JSON schema; a
// non-conforming answer fails the whole run and inserts nothing. With
// dryRun the parsed candidates are returned but not persisted.
func (s *Store) Refresh(ctx context.Context, gen providers.Adapter, provider providers.Provider, workload providers.Workload, dryRun bool) (*RefreshResult, error) {
	current, err := s.ActiveModels(provider, workload)
	if err != nil {
		return nil, err
	}
	stats, err := s.UsageStats(provider, workload)
	if err != nil {
		stats = UsageStats{}
	}

	rc := refreshContext{
		Provider:      provider.String(),
		Workload:      workloadDisplay(workload),
		CurrentModels: make([]refreshModelInfo, 0, len(current)),
		UsageStats: refreshStatsInfo{
			TotalCalls:   stats.TotalCalls,
			SuccessRate:  stats.SuccessRate,
			AvgLatencyMs: stats.AvgLatencyMs,
		},
	}
	for _, m := range current {
		rc.CurrentModels = append(rc.CurrentModels, refreshModelInfo{
			Model:     m.Model,
			Priority:  m.Priority,
			Rationale: m.Rationale,
		})
	}

	contextJSON, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return nil, apperr.API("Failed to serialize context: %v", err)
	}

	req := &providers.Request{
		Prompt: refreshPromptHeader + "\n\nContext:\n" + string(contextJSON) + "\n\n" + refreshPromptRequirements,
		Tags:   []string{"model-refresh"},
		Hints: providers.Hints{
			Complexity: providers.ComplexityMed,
			Quality:    providers.QualityPremium,
			Speed:      providers.SpeedNormal,
			Guardrail:  providers.GuardrailStrict,
			Format:     providers.FormatJSON,
		},
	}

	resp, err := gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var parsed suggestionSet
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, apperr.API("Failed to parse LLM response as JSON: %v. Response was: %s", err, resp.Content)
	}

	result := &RefreshResult{Provider: provider, Workload: workload}
	for _, item := range parsed.Suggestions {
		result.Proposed = append(result.Proposed, ProposedModel{
			Model:           item.Model,
			Workload:        item.Workload,
			Rationale:       item.Rationale,
			ProductionReady: item.ProductionReady != nil && *item.ProductionReady,
			Notes:           item.Notes,
		})
	}
	if dryRun {
		return result, nil
	}

	for _, item := range parsed.Suggestions {
		w, err := providers.ParseWorkload(item.Workload)
		if err != nil {
			continue
		}
		var metadata *string
		if len(item.Metadata) > 0 && string(item.Metadata) != "null" {
			raw := string(item.Metadata)
			metadata = &raw
		}
		if err := s.UpsertSuggestion(provider, w, item.Model, item.Rationale, metadata, SuggestionPending); err != nil {
			return nil, err
		}
		result.Inserted++
	}
	return result, nil
}
