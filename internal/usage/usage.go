// Package usage appends one telemetry row per upstream call: outcome,
// latency, and (when the adapter reports them) token counts and cost.
//
// The table is append-only. Writes on the routing hot path are best-effort:
// the router logs and swallows errors returned from Log.
package usage

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

// Record is one upstream call.
type Record struct {
	Provider     providers.Provider
	Model        string // empty when the adapter applied its own default
	Success      bool
	LatencyMs    int64
	ErrorMessage string

	// Optional token accounting; nil when the upstream did not report it.
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64

	// Optional cost accounting in micro-units of the billing currency.
	InputCostMicros  *int64
	OutputCostMicros *int64
	TotalCostMicros  *int64
}

// Logger persists usage records to the shared database.
type Logger struct {
	db *sqlx.DB
}

// NewLogger creates a usage logger backed by the shared pool.
func NewLogger(db *sqlx.DB) *Logger {
	return &Logger{db: db}
}

// DB exposes the underlying pool so sibling stores can share it.
func (l *Logger) DB() *sqlx.DB { return l.db }

// Log appends rec to provider_usage.
func (l *Logger) Log(rec Record) error {
	now := time.Now().UTC().Format(time.RFC3339)

	success := 0
	if rec.Success {
		success = 1
	}

	var model, errMsg any
	if rec.Model != "" {
		model = rec.Model
	}
	if rec.ErrorMessage != "" {
		errMsg = rec.ErrorMessage
	}

	_, err := l.db.Exec(
		`INSERT INTO provider_usage
		 (provider, model, success, latency_ms, error_message,
		  prompt_tokens, completion_tokens, total_tokens,
		  input_cost_micros, output_cost_micros, total_cost_micros, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Provider.String(), model, success, rec.LatencyMs, errMsg,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.InputCostMicros, rec.OutputCostMicros, rec.TotalCostMicros, now,
	)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}
