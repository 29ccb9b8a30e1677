package usage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/internal/storage"
)

func testLogger(t *testing.T) (*Logger, *sqlx.DB) {
	t.Helper()
	db, err := storage.Open("sqlite://" + filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLogger(db), db
}

type usageRow struct {
	Provider     string         `db:"provider"`
	Model        sql.NullString `db:"model"`
	Success      int64          `db:"success"`
	LatencyMs    int64          `db:"latency_ms"`
	ErrorMessage sql.NullString `db:"error_message"`
	TotalTokens  sql.NullInt64  `db:"total_tokens"`
	CreatedAt    string         `db:"created_at"`
}

func lastRow(t *testing.T, db *sqlx.DB) usageRow {
	t.Helper()
	var row usageRow
	err := db.Get(&row,
		`SELECT provider, model, success, latency_ms, error_message, total_tokens, created_at
		 FROM provider_usage ORDER BY id DESC LIMIT 1`)
	if err != nil {
		t.Fatalf("read usage row: %v", err)
	}
	return row
}

func TestLogSuccess(t *testing.T) {
	l, db := testLogger(t)

	err := l.Log(Record{
		Provider:  providers.Groq,
		Model:     "llama-3.3-70b-versatile",
		Success:   true,
		LatencyMs: 321,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	row := lastRow(t, db)
	if row.Provider != "groq" {
		t.Errorf("provider: got %q", row.Provider)
	}
	if !row.Model.Valid || row.Model.String != "llama-3.3-70b-versatile" {
		t.Errorf("model: got %+v", row.Model)
	}
	if row.Success != 1 || row.LatencyMs != 321 {
		t.Errorf("success/latency: got %d/%d", row.Success, row.LatencyMs)
	}
	if row.ErrorMessage.Valid {
		t.Errorf("error_message should be NULL on success, got %q", row.ErrorMessage.String)
	}
	if row.CreatedAt == "" {
		t.Error("created_at must be set")
	}
}

func TestLogFailureKeepsErrorMessage(t *testing.T) {
	l, db := testLogger(t)

	err := l.Log(Record{
		Provider:     providers.Google,
		Success:      false,
		LatencyMs:    17,
		ErrorMessage: "rate limit exceeded",
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	row := lastRow(t, db)
	if row.Success != 0 {
		t.Errorf("expected failure row, got success=%d", row.Success)
	}
	if !row.ErrorMessage.Valid || row.ErrorMessage.String != "rate limit exceeded" {
		t.Errorf("error_message: got %+v", row.ErrorMessage)
	}
	// Empty model stays NULL so catalog scoping can tell "default model"
	// apart from a named one.
	if row.Model.Valid {
		t.Errorf("model should be NULL, got %q", row.Model.String)
	}
}

func TestLogOptionalTokenAccounting(t *testing.T) {
	l, db := testLogger(t)

	total := int64(1536)
	err := l.Log(Record{
		Provider:    providers.OpenAI,
		Model:       "gpt-4o-mini",
		Success:     true,
		LatencyMs:   800,
		TotalTokens: &total,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	row := lastRow(t, db)
	if !row.TotalTokens.Valid || row.TotalTokens.Int64 != 1536 {
		t.Errorf("total_tokens: got %+v", row.TotalTokens)
	}
}

func TestLogAppendsRows(t *testing.T) {
	l, db := testLogger(t)

	for i := 0; i < 5; i++ {
		if err := l.Log(Record{Provider: providers.Groq, Success: true, LatencyMs: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}

	var count int64
	if err := db.Get(&count, `SELECT COUNT(*) FROM provider_usage`); err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("expected 5 rows, got %d", count)
	}
}
