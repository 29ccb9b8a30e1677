// Package router selects an upstream provider for each generation request
// and walks the fallback chain until one succeeds.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/freegin/freegin-ai/internal/catalog"
	"github.com/freegin/freegin-ai/internal/config"
	"github.com/freegin/freegin-ai/internal/credentials"
	"github.com/freegin/freegin-ai/internal/health"
	"github.com/freegin/freegin-ai/internal/metrics"
	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/internal/providers/anthropic"
	"github.com/freegin/freegin-ai/internal/providers/cohere"
	"github.com/freegin/freegin-ai/internal/providers/google"
	"github.com/freegin/freegin-ai/internal/providers/huggingface"
	"github.com/freegin/freegin-ai/internal/providers/openai"
	"github.com/freegin/freegin-ai/internal/providers/openaicompat"
	"github.com/freegin/freegin-ai/internal/usage"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

// Router owns the constructed adapters and routes requests across them.
// Bookkeeping collaborators (usage, catalog, health) are optional; a nil
// handle disables that concern.
type Router struct {
	adapters      map[providers.Provider]providers.Adapter
	fallbackOrder []providers.Provider

	usage   *usage.Logger
	catalog *catalog.Store
	health  *health.Tracker
	metrics *metrics.Registry
	log     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithUsageLogger records one usage row per attempt.
func WithUsageLogger(l *usage.Logger) Option {
	return func(r *Router) { r.usage = l }
}

// WithCatalog enables model auto-fill from the active roster.
func WithCatalog(c *catalog.Store) Option {
	return func(r *Router) { r.catalog = c }
}

// WithHealthTracker enables the availability gate and failure bookkeeping.
func WithHealthTracker(t *health.Tracker) Option {
	return func(r *Router) { r.health = t }
}

// WithMetrics exports per-attempt counters and classified failure counts.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// FromAdapters builds a router over pre-constructed adapters in the given
// registration order. Fails with a config error when order is empty.
func FromAdapters(order []providers.Provider, adapters map[providers.Provider]providers.Adapter, opts ...Option) (*Router, error) {
	r := &Router{
		adapters:      make(map[providers.Provider]providers.Adapter, len(adapters)),
		fallbackOrder: make([]providers.Provider, 0, len(order)),
		log:           slog.Default(),
	}
	for _, p := range order {
		a, ok := adapters[p]
		if !ok || a == nil {
			continue
		}
		r.adapters[p] = a
		r.fallbackOrder = append(r.fallbackOrder, p)
	}
	for _, o := range opts {
		o(r)
	}
	if len(r.fallbackOrder) == 0 {
		return nil, apperr.Config("No AI providers are configured. Add an API key to the configuration or credential store.")
	}
	return r, nil
}

// FromConfig builds a router from static configuration and the credential
// store. For each supported provider a non-empty api_key in the config wins;
// otherwise the credential store is consulted. Providers without credentials
// are silently omitted; a provider whose adapter cannot be constructed is
// skipped with a warning. Fails only when no adapter at all was registered.
func FromConfig(ctx context.Context, cfg *config.Config, creds *credentials.Store, opts ...Option) (*Router, error) {
	r := &Router{
		adapters: make(map[providers.Provider]providers.Adapter),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}

	for _, p := range providers.All {
		pc := cfg.Provider(p)
		apiKey := pc.APIKey
		if apiKey == "" && creds != nil {
			stored, ok, err := creds.Get(p)
			if err != nil {
				r.log.Warn("credential lookup failed", "provider", p.String(), "error", err)
			} else if ok {
				apiKey = stored
			}
		}
		if apiKey == "" {
			continue
		}

		adapter, err := buildAdapter(ctx, p, apiKey, pc.APIBaseURL)
		if err != nil {
			r.log.Warn("provider adapter not constructed", "provider", p.String(), "error", err)
			continue
		}
		r.adapters[p] = adapter
		r.fallbackOrder = append(r.fallbackOrder, p)
	}

	if len(r.fallbackOrder) == 0 {
		return nil, apperr.Config("No AI providers are configured. Add an API key to the configuration or credential store.")
	}
	return r, nil
}

func buildAdapter(ctx context.Context, p providers.Provider, apiKey, baseURL string) (providers.Adapter, error) {
	switch p {
	case providers.OpenAI:
		var opts []openai.Option
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(apiKey, opts...)
	case providers.Google:
		var opts []google.Option
		if baseURL != "" {
			opts = append(opts, google.WithBaseURL(baseURL))
		}
		return google.New(ctx, apiKey, opts...)
	case providers.HuggingFace:
		var opts []huggingface.Option
		if baseURL != "" {
			opts = append(opts, huggingface.WithBaseURL(baseURL))
		}
		return huggingface.New(apiKey, opts...)
	case providers.Anthropic:
		var opts []anthropic.Option
		if baseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(baseURL))
		}
		return anthropic.New(apiKey, opts...)
	case providers.Cohere:
		var opts []cohere.Option
		if baseURL != "" {
			opts = append(opts, cohere.WithBaseURL(baseURL))
		}
		return cohere.New(apiKey, opts...)
	default:
		var opts []openaicompat.Option
		if baseURL != "" {
			opts = append(opts, openaicompat.WithBaseURL(baseURL))
		}
		return openaicompat.New(p, apiKey, opts...)
	}
}

// Providers returns the registration order.
func (r *Router) Providers() []providers.Provider {
	out := make([]providers.Provider, len(r.fallbackOrder))
	copy(out, r.fallbackOrder)
	return out
}

// Has reports whether a provider is registered.
func (r *Router) Has(p providers.Provider) bool {
	_, ok := r.adapters[p]
	return ok
}

// Generate walks the candidate providers in order and returns the first
// successful response. Bookkeeping failures never affect the outcome; when
// every candidate fails, the terminal error is ErrNoProviderAvailable.
func (r *Router) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	for _, p := range r.candidates(req) {
		if r.health != nil {
			available, err := r.health.IsAvailable(p)
			if err != nil {
				r.log.Warn("health probe failed", "provider", p.String(), "error", err)
			} else if !available {
				continue
			}
		}

		attempt := req.Clone()
		if attempt.Model == "" && r.catalog != nil {
			model, ok, err := r.catalog.PreferredModel(p, req.Hints.Workload)
			if err != nil {
				r.log.Warn("catalog lookup failed", "provider", p.String(), "error", err)
			} else if ok {
				attempt.Model = model
			}
		}

		start := time.Now()
		resp, err := r.adapters[p].Generate(ctx, attempt)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			r.log.Warn("provider attempt failed",
				"provider", p.String(), "model", attempt.Model,
				"latency_ms", latency, "error", err)
			r.recordFailure(p, attempt.Model, latency, err)
			continue
		}

		r.recordSuccess(p, attempt.Model, latency)
		return resp, nil
	}
	return nil, apperr.ErrNoProviderAvailable
}

func (r *Router) recordSuccess(p providers.Provider, model string, latency int64) {
	if r.metrics != nil {
		r.metrics.ObserveProviderAttempt(p.String(), "success")
	}
	if r.health != nil {
		if err := r.health.RecordSuccess(p); err != nil {
			r.log.Warn("health bookkeeping failed", "provider", p.String(), "error", err)
		}
	}
	if r.usage != nil {
		if err := r.usage.Log(usage.Record{
			Provider:  p,
			Model:     model,
			Success:   true,
			LatencyMs: latency,
		}); err != nil {
			r.log.Warn("usage bookkeeping failed", "provider", p.String(), "error", err)
		}
	}
}

func (r *Router) recordFailure(p providers.Provider, model string, latency int64, genErr error) {
	if r.metrics != nil {
		r.metrics.ObserveProviderAttempt(p.String(), "failure")
		r.metrics.RecordProviderError(p.String(), health.Classify(genErr.Error()).String())
	}
	if r.health != nil {
		if err := r.health.RecordFailure(p, genErr.Error()); err != nil {
			r.log.Warn("health bookkeeping failed", "provider", p.String(), "error", err)
		}
	}
	if r.usage != nil {
		if err := r.usage.Log(usage.Record{
			Provider:     p,
			Model:        model,
			Success:      false,
			LatencyMs:    latency,
			ErrorMessage: genErr.Error(),
		}); err != nil {
			r.log.Warn("usage bookkeeping failed", "provider", p.String(), "error", err)
		}
	}
}

// candidates builds the ordered, deduplicated provider list for a request:
// provider hint, then provider tags, then model-name heuristics, then
// hint-preferred providers, then the registration order.
func (r *Router) candidates(req *providers.Request) []providers.Provider {
	var out []providers.Provider
	seen := make(map[providers.Provider]bool, len(r.fallbackOrder))
	add := func(p providers.Provider) {
		if !seen[p] && r.Has(p) {
			seen[p] = true
			out = append(out, p)
		}
	}

	if req.Hints.Provider != "" {
		if p, ok := providers.FromAlias(req.Hints.Provider); ok {
			add(p)
		}
	}

	for _, tag := range req.Tags {
		alias, ok := strings.CutPrefix(tag, "provider:")
		if !ok {
			continue
		}
		if p, ok := providers.FromAlias(alias); ok && r.Has(p) {
			add(p)
			break
		}
	}

	if p, ok := inferFromModel(req.Model); ok {
		add(p)
	}

	if req.Hints.Quality == providers.QualityPremium || req.Hints.Complexity == providers.ComplexityHigh {
		add(providers.HuggingFace)
	}
	if req.Hints.Speed == providers.SpeedFast {
		add(providers.Google)
	}

	for _, p := range r.fallbackOrder {
		add(p)
	}
	return out
}

// inferFromModel guesses a provider from well-known model-name substrings.
// Vendor-prefixed identifiers (e.g. "meta-llama/...") deliberately match
// nothing; the fallback order covers them.
func inferFromModel(model string) (providers.Provider, bool) {
	m := strings.ToLower(model)
	switch {
	case m == "":
		return "", false
	case strings.Contains(m, "gemini"):
		return providers.Google, true
	case strings.Contains(m, "gpt"):
		return providers.OpenAI, true
	case strings.Contains(m, "claude"):
		return providers.Anthropic, true
	case strings.Contains(m, "cohere"):
		return providers.Cohere, true
	case strings.Contains(m, "deepseek"):
		return providers.DeepSeek, true
	case strings.Contains(m, "llama") && strings.Contains(m, "groq"):
		return providers.Groq, true
	}
	return "", false
}
