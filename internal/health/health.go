// Package health tracks per-provider availability.
//
// Failed calls are classified from the error text and translate into a
// status plus a retry-after deadline; the availability gate skips providers
// still inside their backoff window. Counters are best-effort under
// concurrency: two racing failures may record the same consecutive-failure
// count, but retry_after is overwritten from the wall clock each time, so
// the backoff policy still converges.
package health

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

// Status of a provider.
type Status string

const (
	// StatusAvailable — provider is usable.
	StatusAvailable Status = "available"
	// StatusDegraded — provider is experiencing issues (rate limit,
	// temporary error); retried after a short backoff.
	StatusDegraded Status = "degraded"
	// StatusUnavailable — provider is out of action (credits exhausted,
	// auth failure); retried after a long backoff.
	StatusUnavailable Status = "unavailable"
)

func statusFromString(s string) Status {
	switch s {
	case "degraded":
		return StatusDegraded
	case "unavailable":
		return StatusUnavailable
	default:
		return StatusAvailable
	}
}

// ProviderHealth is the persisted health record for one provider.
type ProviderHealth struct {
	Provider            providers.Provider `json:"provider"`
	Status              Status             `json:"status"`
	LastError           string             `json:"last_error,omitempty"`
	LastErrorAt         *time.Time         `json:"last_error_at,omitempty"`
	RetryAfter          *time.Time         `json:"retry_after,omitempty"`
	ConsecutiveFailures int64              `json:"consecutive_failures"`
	LastSuccessAt       *time.Time         `json:"last_success_at,omitempty"`
}

// Tracker manages provider health records in the shared database.
type Tracker struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewTracker creates a health tracker.
func NewTracker(db *sqlx.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

// SetClock overrides the wall clock (tests only).
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// RecordSuccess marks provider available and resets its failure counter.
// last_error is left untouched as a historical field.
func (t *Tracker) RecordSuccess(provider providers.Provider) error {
	now := t.now().UTC().Format(time.RFC3339)
	_, err := t.db.Exec(
		`INSERT INTO provider_health (provider, status, consecutive_failures, last_success_at, updated_at)
		 VALUES (?, 'available', 0, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
		     status = 'available',
		     consecutive_failures = 0,
		     last_success_at = excluded.last_success_at,
		     updated_at = excluded.updated_at`,
		provider.String(), now, now,
	)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// RecordFailure classifies msg, computes the backoff deadline, and upserts
// the provider's health row, incrementing consecutive_failures.
//
// Rate-limit backoff is exponential on the failure count after this
// increment, saturating at 60 minutes.
func (t *Tracker) RecordFailure(provider providers.Provider, msg string) error {
	now := t.now().UTC()

	current, err := t.GetHealth(provider)
	if err != nil {
		return err
	}
	updatedFailures := current.ConsecutiveFailures + 1

	var status Status
	var retryAfter time.Time
	switch Classify(msg) {
	case ErrorRateLimit:
		status = StatusDegraded
		retryAfter = now.Add(time.Duration(backoffMinutes(updatedFailures)) * time.Minute)
	case ErrorOutOfCredits, ErrorAuthFailure:
		status = StatusUnavailable
		retryAfter = now.Add(24 * time.Hour)
	case ErrorServiceUnavailable:
		status = StatusDegraded
		retryAfter = now.Add(5 * time.Minute)
	default:
		status = StatusDegraded
		retryAfter = now.Add(30 * time.Second)
	}

	nowStr := now.Format(time.RFC3339)
	_, err = t.db.Exec(
		`INSERT INTO provider_health (provider, status, last_error, last_error_at, retry_after, consecutive_failures, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT(provider) DO UPDATE SET
		     status = excluded.status,
		     last_error = excluded.last_error,
		     last_error_at = excluded.last_error_at,
		     retry_after = excluded.retry_after,
		     consecutive_failures = provider_health.consecutive_failures + 1,
		     updated_at = excluded.updated_at`,
		provider.String(), string(status), msg, nowStr,
		retryAfter.Format(time.RFC3339), nowStr,
	)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// IsAvailable reports whether provider may receive the next request: true
// when no record exists, the status is available, or the retry_after
// deadline has elapsed. A degraded provider without a deadline counts as
// available.
func (t *Tracker) IsAvailable(provider providers.Provider) (bool, error) {
	h, err := t.GetHealth(provider)
	if err != nil {
		return false, err
	}

	if h.Status == StatusAvailable {
		return true, nil
	}
	if h.RetryAfter != nil {
		return !t.now().Before(*h.RetryAfter), nil
	}
	return h.Status == StatusDegraded, nil
}

// GetHealth returns the persisted record for provider, or a synthetic
// available record when the provider has never been used.
func (t *Tracker) GetHealth(provider providers.Provider) (ProviderHealth, error) {
	var row struct {
		Status              string         `db:"status"`
		LastError           sql.NullString `db:"last_error"`
		LastErrorAt         sql.NullString `db:"last_error_at"`
		RetryAfter          sql.NullString `db:"retry_after"`
		ConsecutiveFailures int64          `db:"consecutive_failures"`
		LastSuccessAt       sql.NullString `db:"last_success_at"`
	}
	err := t.db.Get(&row,
		`SELECT status, last_error, last_error_at, retry_after, consecutive_failures, last_success_at
		 FROM provider_health WHERE provider = ?`,
		provider.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ProviderHealth{Provider: provider, Status: StatusAvailable}, nil
	}
	if err != nil {
		return ProviderHealth{}, apperr.Database(err)
	}

	return ProviderHealth{
		Provider:            provider,
		Status:              statusFromString(row.Status),
		LastError:           row.LastError.String,
		LastErrorAt:         parseTime(row.LastErrorAt),
		RetryAfter:          parseTime(row.RetryAfter),
		ConsecutiveFailures: row.ConsecutiveFailures,
		LastSuccessAt:       parseTime(row.LastSuccessAt),
	}, nil
}

// GetAllHealth returns a record for every known provider.
func (t *Tracker) GetAllHealth() ([]ProviderHealth, error) {
	out := make([]ProviderHealth, 0, len(providers.All))
	for _, p := range providers.All {
		h, err := t.GetHealth(p)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &ts
}

// ErrorClass buckets a failure for the backoff policy.
type ErrorClass int

const (
	// ErrorTransient — unrecognized errors; quick retry.
	ErrorTransient ErrorClass = iota
	// ErrorRateLimit — upstream throttling.
	ErrorRateLimit
	// ErrorOutOfCredits — quota or billing exhaustion.
	ErrorOutOfCredits
	// ErrorAuthFailure — rejected credentials.
	ErrorAuthFailure
	// ErrorServiceUnavailable — upstream 5xx or gateway failure.
	ErrorServiceUnavailable
)

// Classify buckets an error message by case-insensitive substring match.
// Patterns are checked in order; first match wins.
func Classify(msg string) ErrorClass {
	lower := strings.ToLower(msg)

	for _, pat := range []string{"rate limit", "too many requests", "429"} {
		if strings.Contains(lower, pat) {
			return ErrorRateLimit
		}
	}
	for _, pat := range []string{"insufficient credits", "quota exceeded", "out of credits", "billing", "payment required", "402"} {
		if strings.Contains(lower, pat) {
			return ErrorOutOfCredits
		}
	}
	for _, pat := range []string{"unauthorized", "forbidden", "invalid api key", "invalid token", "authentication failed", "401", "403"} {
		if strings.Contains(lower, pat) {
			return ErrorAuthFailure
		}
	}
	for _, pat := range []string{"service unavailable", "502", "503", "504", "gateway"} {
		if strings.Contains(lower, pat) {
			return ErrorServiceUnavailable
		}
	}
	return ErrorTransient
}

func (c ErrorClass) String() string {
	switch c {
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorOutOfCredits:
		return "out_of_credits"
	case ErrorAuthFailure:
		return "auth_failure"
	case ErrorServiceUnavailable:
		return "service_unavailable"
	default:
		return "transient"
	}
}

// backoffMinutes returns 2^min(n,6) minutes, capped at 60.
func backoffMinutes(consecutiveFailures int64) int64 {
	n := consecutiveFailures
	if n > 6 {
		n = 6
	}
	backoff := int64(1) << uint(n)
	if backoff > 60 {
		backoff = 60
	}
	return backoff
}
