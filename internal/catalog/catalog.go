// Package catalog manages the model roster: which model each provider uses
// for each workload, plus a review queue of suggested replacements.
package catalog

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

// Model lifecycle states in provider_models.
const (
	ModelActive  = "active"
	ModelRetired = "retired"
)

// Suggestion lifecycle states in provider_model_suggestions.
const (
	SuggestionPending = "pending"
	SuggestionTrial   = "trial"
	SuggestionAdopted = "adopted"
)

// ModelEntry is one row of the active/retired model roster.
type ModelEntry struct {
	Provider  providers.Provider `json:"provider" db:"provider"`
	Workload  providers.Workload `json:"workload" db:"workload"`
	Model     string             `json:"model" db:"model"`
	Status    string             `json:"status" db:"status"`
	Priority  int64              `json:"priority" db:"priority"`
	Rationale *string            `json:"rationale,omitempty" db:"rationale"`
	Metadata  *string            `json:"metadata,omitempty" db:"metadata"`
	CreatedAt string             `json:"created_at" db:"created_at"`
	UpdatedAt string             `json:"updated_at" db:"updated_at"`
}

// SuggestionEntry is a candidate model awaiting adoption.
type SuggestionEntry struct {
	ID        int64              `json:"id" db:"id"`
	Provider  providers.Provider `json:"provider" db:"provider"`
	Workload  providers.Workload `json:"workload" db:"workload"`
	Model     string             `json:"model" db:"model"`
	Status    string             `json:"status" db:"status"`
	Rationale *string            `json:"rationale,omitempty" db:"rationale"`
	Metadata  *string            `json:"metadata,omitempty" db:"metadata"`
	CreatedAt string             `json:"created_at" db:"created_at"`
	UpdatedAt string             `json:"updated_at" db:"updated_at"`
}

// UsageStats aggregates provider_usage rows for one provider, optionally
// restricted to the models cataloged for one workload.
type UsageStats struct {
	TotalCalls      int64   `json:"total_calls"`
	SuccessfulCalls int64   `json:"successful_calls"`
	SuccessRate     float64 `json:"success_rate"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	MaxLatencyMs    int64   `json:"max_latency_ms"`
}

// Filter narrows catalog listings. Zero values mean no filtering.
type Filter struct {
	Provider providers.Provider
	Workload providers.Workload
}

// Store reads and writes the model catalog tables.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore creates a catalog store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock overrides the wall clock (tests only).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// ListModels returns roster rows matching the filter, ordered by provider,
// workload, then ascending priority (lower number wins ties first).
func (s *Store) ListModels(f Filter) ([]ModelEntry, error) {
	query := `SELECT provider, workload, model, status, priority, rationale, metadata, created_at, updated_at
	          FROM provider_models`
	var clauses []string
	var args []any
	if f.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, f.Provider.String())
	}
	if f.Workload != "" {
		clauses = append(clauses, "workload = ?")
		args = append(args, string(f.Workload))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY provider, workload, priority ASC, updated_at DESC"

	var out []ModelEntry
	if err := s.db.Select(&out, query, args...); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// ActiveModels returns the active roster for a provider, highest priority
// first. Workload may be empty to cover all workloads.
func (s *Store) ActiveModels(provider providers.Provider, workload providers.Workload) ([]ModelEntry, error) {
	query := `SELECT provider, workload, model, status, priority, rationale, metadata, created_at, updated_at
	          FROM provider_models WHERE status = 'active' AND provider = ?`
	args := []any{provider.String()}
	if workload != "" {
		query += " AND workload = ?"
		args = append(args, string(workload))
	}
	query += " ORDER BY priority ASC, updated_at DESC"

	var out []ModelEntry
	if err := s.db.Select(&out, query, args...); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// PreferredModel returns the top active model for a provider/workload, or
// ("", false) when the roster has no entry.
func (s *Store) PreferredModel(provider providers.Provider, workload providers.Workload) (string, bool, error) {
	entries, err := s.ActiveModels(provider, workload)
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Model, true, nil
}

// ListSuggestions returns suggestion rows matching the filter, pending
// first, newest first within a status.
func (s *Store) ListSuggestions(f Filter) ([]SuggestionEntry, error) {
	query := `SELECT id, provider, workload, model, status, rationale, metadata, created_at, updated_at
	          FROM provider_model_suggestions`
	var clauses []string
	var args []any
	if f.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, f.Provider.String())
	}
	if f.Workload != "" {
		clauses = append(clauses, "workload = ?")
		args = append(args, string(f.Workload))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY status ASC, created_at DESC"

	var out []SuggestionEntry
	if err := s.db.Select(&out, query, args...); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// UpsertSuggestion records a candidate model, replacing the status,
// rationale, and metadata of an existing row for the same key.
func (s *Store) UpsertSuggestion(provider providers.Provider, workload providers.Workload, model string, rationale, metadata *string, status string) error {
	now := s.timestamp()
	_, err := s.db.Exec(
		`INSERT INTO provider_model_suggestions
		     (provider, workload, model, status, rationale, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider, workload, model) DO UPDATE SET
		     status = excluded.status,
		     rationale = excluded.rationale,
		     metadata = excluded.metadata,
		     updated_at = excluded.updated_at`,
		provider.String(), string(workload), model, status, rationale, metadata, now, now,
	)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// AdoptModel promotes a model into the active roster and marks any matching
// suggestion as adopted. Re-adopting a retired model reactivates it.
func (s *Store) AdoptModel(provider providers.Provider, workload providers.Workload, model string, rationale, metadata *string, priority int64) error {
	now := s.timestamp()
	_, err := s.db.Exec(
		`INSERT INTO provider_models
		     (provider, workload, model, status, priority, rationale, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, 'active', ?, ?, ?, ?, ?)
		 ON CONFLICT(provider, workload, model) DO UPDATE SET
		     status = 'active',
		     priority = excluded.priority,
		     rationale = excluded.rationale,
		     metadata = excluded.metadata,
		     updated_at = excluded.updated_at`,
		provider.String(), string(workload), model, priority, rationale, metadata, now, now,
	)
	if err != nil {
		return apperr.Database(err)
	}

	_, err = s.db.Exec(
		`UPDATE provider_model_suggestions
		 SET status = 'adopted', updated_at = ?
		 WHERE provider = ? AND workload = ? AND model = ?`,
		now, provider.String(), string(workload), model,
	)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// RetireModel removes a model from active rotation. Returns false when no
// matching roster row exists.
func (s *Store) RetireModel(provider providers.Provider, workload providers.Workload, model string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE provider_models
		 SET status = 'retired', updated_at = ?
		 WHERE provider = ? AND workload = ? AND model = ?`,
		s.timestamp(), provider.String(), string(workload), model,
	)
	if err != nil {
		return false, apperr.Database(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Database(err)
	}
	return n > 0, nil
}

// UsageStats aggregates call counts and latency for a provider. With a
// workload, only calls whose model is cataloged for that workload count;
// rows from never-cataloged models are excluded, while rows from retired
// models still count because the subquery does not filter on status.
func (s *Store) UsageStats(provider providers.Provider, workload providers.Workload) (UsageStats, error) {
	query := `SELECT
	              COUNT(*) AS total_calls,
	              SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) AS successful_calls,
	              AVG(latency_ms) AS avg_latency,
	              MAX(latency_ms) AS max_latency
	          FROM provider_usage
	          WHERE provider = ?`
	args := []any{provider.String()}
	if workload != "" {
		query += " AND model IN (SELECT model FROM provider_models WHERE provider = ? AND workload = ?)"
		args = append(args, provider.String(), string(workload))
	}

	var row struct {
		TotalCalls      int64           `db:"total_calls"`
		SuccessfulCalls sql.NullInt64   `db:"successful_calls"`
		AvgLatency      sql.NullFloat64 `db:"avg_latency"`
		MaxLatency      sql.NullInt64   `db:"max_latency"`
	}
	if err := s.db.Get(&row, query, args...); err != nil {
		return UsageStats{}, apperr.Database(err)
	}

	stats := UsageStats{
		TotalCalls:      row.TotalCalls,
		SuccessfulCalls: row.SuccessfulCalls.Int64,
		AvgLatencyMs:    row.AvgLatency.Float64,
		MaxLatencyMs:    row.MaxLatency.Int64,
	}
	if stats.TotalCalls > 0 {
		stats.SuccessRate = float64(stats.SuccessfulCalls) / float64(stats.TotalCalls) * 100.0
	}
	return stats, nil
}

type seedEntry struct {
	provider  providers.Provider
	workload  providers.Workload
	model     string
	priority  int64
	rationale string
}

var seedDefaults = []seedEntry{
	{providers.Groq, providers.WorkloadChat, "llama-3.3-70b-versatile", 10, "Fast, versatile Llama model"},
	{providers.Groq, providers.WorkloadCode, "llama-3.3-70b-versatile", 10, "Versatile model suitable for code"},
	{providers.Groq, providers.WorkloadSummarization, "llama-3.3-70b-versatile", 20, "Fast summarization"},
	{providers.Groq, providers.WorkloadCreative, "llama-3.3-70b-versatile", 15, "Creative and versatile"},
	{providers.DeepSeek, providers.WorkloadChat, "deepseek-chat", 20, "Powerful reasoning and chat"},
	{providers.DeepSeek, providers.WorkloadCode, "deepseek-chat", 15, "Strong coding capabilities"},
	{providers.DeepSeek, providers.WorkloadSummarization, "deepseek-chat", 25, "Effective summarization"},
	{providers.DeepSeek, providers.WorkloadExtraction, "deepseek-chat", 20, "Information extraction"},
	{providers.DeepSeek, providers.WorkloadCreative, "deepseek-chat", 25, "Creative writing"},
	{providers.DeepSeek, providers.WorkloadClassification, "deepseek-chat", 25, "Text classification"},
	{providers.Together, providers.WorkloadChat, "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free", 30, "Free Llama model"},
	{providers.Together, providers.WorkloadCode, "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free", 25, "Code-capable free model"},
	{providers.Google, providers.WorkloadChat, "gemini-2.0-flash", 40, "Fast multimodal Gemini"},
	{providers.Google, providers.WorkloadCode, "gemini-2.0-flash", 35, "Gemini with code capabilities"},
	{providers.Google, providers.WorkloadSummarization, "gemini-2.0-flash", 40, "Fast summarization"},
	{providers.Cloudflare, providers.WorkloadChat, "@cf/meta/llama-3.3-70b-instruct", 18, "Serverless Llama 3.3 70B"},
	{providers.Cloudflare, providers.WorkloadCode, "@cf/meta/llama-3.3-70b-instruct", 18, "Serverless code-capable model"},
	{providers.Cloudflare, providers.WorkloadCreative, "@cf/openai/gpt-oss-120b", 20, "OpenAI open-source 120B model"},
	{providers.Cerebras, providers.WorkloadChat, "llama-3.1-70b", 12, "Ultra-fast Llama 3.1 70B"},
	{providers.Cerebras, providers.WorkloadCode, "llama-3.1-70b", 12, "Fast code-capable model"},
	{providers.Cerebras, providers.WorkloadSummarization, "llama-3.1-8b", 15, "Fast summarization with 8B model"},
	{providers.Mistral, providers.WorkloadChat, "mistral-small-latest", 22, "Mistral Small for chat"},
	{providers.Mistral, providers.WorkloadCode, "mistral-small-latest", 22, "Mistral Small for code"},
	{providers.Mistral, providers.WorkloadSummarization, "mistral-small-latest", 25, "Mistral Small for summarization"},
	{providers.Clarifai, providers.WorkloadChat, "gpt-4", 45, "GPT-4 via Clarifai"},
	{providers.Clarifai, providers.WorkloadCode, "gpt-4", 45, "GPT-4 code via Clarifai"},
	{providers.GitHubModels, providers.WorkloadChat, "gpt-4o", 35, "GPT-4o via GitHub"},
	{providers.GitHubModels, providers.WorkloadCode, "gpt-4o", 35, "GPT-4o code via GitHub"},
	{providers.OpenRouter, providers.WorkloadChat, "deepseek/deepseek-r1:free", 50, "DeepSeek R1 free via OpenRouter"},
	{providers.OpenRouter, providers.WorkloadCode, "deepseek/deepseek-r1:free", 50, "DeepSeek R1 code via OpenRouter"},
}

// SeedDefaults installs a baseline roster for each provider/workload pair
// that has no active model yet. Idempotent: pairs with an operator-managed
// roster, including all-retired ones, are left alone.
func (s *Store) SeedDefaults() error {
	for _, d := range seedDefaults {
		existing, err := s.ActiveModels(d.provider, d.workload)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		now := s.timestamp()
		_, err = s.db.Exec(
			`INSERT OR IGNORE INTO provider_models
			     (provider, workload, model, status, priority, rationale, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, 'active', ?, ?, NULL, ?, ?)`,
			d.provider.String(), string(d.workload), d.model, d.priority, d.rationale, now, now,
		)
		if err != nil {
			return apperr.Database(err)
		}
	}
	return nil
}
