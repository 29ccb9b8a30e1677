// Package server exposes the HTTP surface: the generation endpoint plus the
// management API for provider health, the model catalog, credentials, and
// usage statistics.
//
// Handlers translate between JSON envelopes and the internal stores; all
// routing decisions stay in internal/router. The cache and metrics registry
// are optional and nil-safe.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	fhrouter "github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/freegin/freegin-ai/internal/cache"
	"github.com/freegin/freegin-ai/internal/catalog"
	"github.com/freegin/freegin-ai/internal/credentials"
	"github.com/freegin/freegin-ai/internal/health"
	"github.com/freegin/freegin-ai/internal/metrics"
	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/internal/router"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

// defaultAdoptPriority is used when an adopt request omits the priority.
// Seeded entries use 10/20/30, so operator adoptions sort after them unless
// an explicit priority is given.
const defaultAdoptPriority = 100

// Deps are the collaborators a Server dispatches to. Generator, Health,
// Catalog, and Credentials are required; Cache and Metrics may be nil.
type Deps struct {
	Generator   *router.Router
	Health      *health.Tracker
	Catalog     *catalog.Store
	Credentials *credentials.Store
	Cache       *cache.ResponseCache
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

// Server is the fasthttp front end.
type Server struct {
	gen     *router.Router
	health  *health.Tracker
	catalog *catalog.Store
	creds   *credentials.Store
	cache   *cache.ResponseCache
	metrics *metrics.Registry
	log     *slog.Logger

	handler fasthttp.RequestHandler
	srv     *fasthttp.Server
}

// New assembles the route table and middleware chain.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		gen:     deps.Generator,
		health:  deps.Health,
		catalog: deps.Catalog,
		creds:   deps.Credentials,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		log:     log,
	}

	r := fhrouter.New()

	r.POST("/api/v1/generate", s.handleGenerate)
	r.GET("/api/v1/health", s.handleHealth)
	r.GET("/api/v1/models", s.handleListModels)
	r.POST("/api/v1/models/adopt", s.handleAdoptModel)
	r.POST("/api/v1/models/retire", s.handleRetireModel)
	r.POST("/api/v1/models/refresh", s.handleRefreshModels)
	r.GET("/api/v1/credentials", s.handleListCredentials)
	r.PUT("/api/v1/credentials/{provider}", s.handleSetCredential)
	r.DELETE("/api/v1/credentials/{provider}", s.handleRemoveCredential)
	r.GET("/api/v1/usage/{provider}", s.handleUsage)

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	s.handler = applyMiddleware(r.Handler,
		s.recovery,
		requestID,
		s.httpMetrics,
	)

	s.srv = &fasthttp.Server{
		Handler:      s.handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped request handler (used by in-memory
// listeners in tests).
func (s *Server) Handler() fasthttp.RequestHandler { return s.handler }

// Start serves on addr (e.g. "127.0.0.1:8080") until Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

// ── Generation ────────────────────────────────────────────────────────────────

func (s *Server) handleGenerate(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	cacheLabel := "bypass"

	var req providers.Request
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest, "field 'prompt' is required")
		return
	}

	reqID, _ := ctx.UserValue("request_id").(string)
	s.log.Info("generate_request",
		slog.String("request_id", reqID),
		slog.String("model", req.Model),
		slog.String("workload", string(req.Hints.Workload)),
		slog.Int("context_blocks", len(req.Context)),
	)

	if s.cache != nil {
		if resp, ok := s.cache.Lookup(ctx, &req); ok {
			if s.metrics != nil {
				s.metrics.CacheGetHit()
				s.metrics.ObserveGenerate(string(resp.Provider), "ok", "hit", time.Since(start))
			}
			ctx.Response.Header.Set("X-Cache", "HIT")
			writeJSON(ctx, resp)
			return
		}
		cacheLabel = "miss"
		if s.metrics != nil {
			s.metrics.CacheGetMiss()
		}
	} else if s.metrics != nil {
		s.metrics.CacheGetBypass()
	}

	resp, err := s.gen.Generate(ctx, &req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveGenerate("none", "error", cacheLabel, time.Since(start))
		}
		s.log.Error("generate_failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		apperr.Write(ctx, err)
		return
	}

	if s.cache != nil {
		s.cache.Store(ctx, &req, resp)
	}
	if s.metrics != nil {
		s.metrics.ObserveGenerate(string(resp.Provider), "ok", cacheLabel, time.Since(start))
	}

	if cacheLabel == "miss" {
		ctx.Response.Header.Set("X-Cache", "MISS")
	}
	writeJSON(ctx, resp)
}

// ── Provider health ───────────────────────────────────────────────────────────

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	records, err := s.health.GetAllHealth()
	if err != nil {
		apperr.Write(ctx, err)
		return
	}
	if s.metrics != nil {
		for _, rec := range records {
			s.metrics.SetProviderHealth(string(rec.Provider), healthGauge(rec.Status))
		}
	}
	writeJSON(ctx, map[string]any{"providers": records})
}

func healthGauge(st health.Status) float64 {
	switch st {
	case health.StatusAvailable:
		return 1
	case health.StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// ── Model catalog ─────────────────────────────────────────────────────────────

func (s *Server) handleListModels(ctx *fasthttp.RequestCtx) {
	f, ok := filterFromQuery(ctx)
	if !ok {
		return
	}

	models, err := s.catalog.ListModels(f)
	if err != nil {
		apperr.Write(ctx, err)
		return
	}

	out := map[string]any{"models": models}
	if string(ctx.QueryArgs().Peek("include_suggestions")) == "1" {
		suggestions, err := s.catalog.ListSuggestions(f)
		if err != nil {
			apperr.Write(ctx, err)
			return
		}
		out["suggestions"] = suggestions
	}
	writeJSON(ctx, out)
}

type modelTarget struct {
	Provider string `json:"provider"`
	Workload string `json:"workload"`
	Model    string `json:"model"`
}

// resolve validates the common provider/workload/model triple of the catalog
// mutation endpoints. On failure it writes a 400 and returns ok=false.
func (t modelTarget) resolve(ctx *fasthttp.RequestCtx) (providers.Provider, providers.Workload, bool) {
	p, ok := providers.FromAlias(t.Provider)
	if !ok {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("unknown provider %q", t.Provider))
		return "", "", false
	}
	w, err := providers.ParseWorkload(t.Workload)
	if err != nil {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest, err.Error())
		return "", "", false
	}
	if strings.TrimSpace(t.Model) == "" {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest, "field 'model' is required")
		return "", "", false
	}
	return p, w, true
}

func (s *Server) handleAdoptModel(ctx *fasthttp.RequestCtx) {
	var req struct {
		modelTarget
		Rationale *string `json:"rationale"`
		Priority  int64   `json:"priority"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	p, w, ok := req.resolve(ctx)
	if !ok {
		return
	}
	priority := req.Priority
	if priority <= 0 {
		priority = defaultAdoptPriority
	}

	if err := s.catalog.AdoptModel(p, w, req.Model, req.Rationale, nil, priority); err != nil {
		apperr.Write(ctx, err)
		return
	}
	s.log.Info("model_adopted",
		slog.String("provider", string(p)),
		slog.String("workload", string(w)),
		slog.String("model", req.Model),
	)
	writeJSON(ctx, map[string]any{
		"provider": p,
		"workload": w,
		"model":    req.Model,
		"status":   catalog.ModelActive,
	})
}

func (s *Server) handleRetireModel(ctx *fasthttp.RequestCtx) {
	var req modelTarget
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	p, w, ok := req.resolve(ctx)
	if !ok {
		return
	}

	retired, err := s.catalog.RetireModel(p, w, req.Model)
	if err != nil {
		apperr.Write(ctx, err)
		return
	}
	if !retired {
		apperr.WriteStatus(ctx, fasthttp.StatusNotFound,
			fmt.Sprintf("no active model %q for %s/%s", req.Model, p, w))
		return
	}
	s.log.Info("model_retired",
		slog.String("provider", string(p)),
		slog.String("workload", string(w)),
		slog.String("model", req.Model),
	)
	writeJSON(ctx, map[string]any{
		"provider": p,
		"workload": w,
		"model":    req.Model,
		"status":   catalog.ModelRetired,
	})
}

func (s *Server) handleRefreshModels(ctx *fasthttp.RequestCtx) {
	var req struct {
		Provider string `json:"provider"`
		Workload string `json:"workload"`
		DryRun   bool   `json:"dry_run"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	p, ok := providers.FromAlias(req.Provider)
	if !ok {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("unknown provider %q", req.Provider))
		return
	}
	w, err := providers.ParseWorkload(req.Workload)
	if err != nil {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	result, err := s.catalog.Refresh(ctx, s.gen, p, w, req.DryRun)
	if err != nil {
		apperr.Write(ctx, err)
		return
	}
	s.log.Info("catalog_refreshed",
		slog.String("provider", string(p)),
		slog.String("workload", string(w)),
		slog.Bool("dry_run", req.DryRun),
		slog.Int("inserted", result.Inserted),
		slog.Int("proposed", len(result.Proposed)),
	)
	writeJSON(ctx, result)
}

// ── Credentials ───────────────────────────────────────────────────────────────

// pathProvider resolves the {provider} path segment, writing a 400 on
// unknown aliases.
func pathProvider(ctx *fasthttp.RequestCtx) (providers.Provider, bool) {
	alias, _ := ctx.UserValue("provider").(string)
	p, ok := providers.FromAlias(alias)
	if !ok {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("unknown provider %q", alias))
		return "", false
	}
	return p, true
}

func (s *Server) handleListCredentials(ctx *fasthttp.RequestCtx) {
	stored, err := s.creds.StoredProviders()
	if err != nil {
		apperr.Write(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"providers": stored})
}

func (s *Server) handleSetCredential(ctx *fasthttp.RequestCtx) {
	p, ok := pathProvider(ctx)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		apperr.WriteStatus(ctx, fasthttp.StatusBadRequest, "field 'token' is required")
		return
	}

	rotated, err := s.creds.Has(p)
	if err != nil {
		apperr.Write(ctx, err)
		return
	}
	if err := s.creds.Set(p, req.Token); err != nil {
		apperr.Write(ctx, err)
		return
	}
	// The token itself is never logged.
	s.log.Info("credential_stored",
		slog.String("provider", string(p)), slog.Bool("rotated", rotated))
	writeJSON(ctx, map[string]any{"provider": p, "stored": true, "rotated": rotated})
}

func (s *Server) handleRemoveCredential(ctx *fasthttp.RequestCtx) {
	p, ok := pathProvider(ctx)
	if !ok {
		return
	}

	removed, err := s.creds.Remove(p)
	if err != nil {
		apperr.Write(ctx, err)
		return
	}
	if !removed {
		apperr.WriteStatus(ctx, fasthttp.StatusNotFound,
			fmt.Sprintf("no stored credential for %s", p))
		return
	}
	s.log.Info("credential_removed", slog.String("provider", string(p)))
	writeJSON(ctx, map[string]any{"provider": p, "removed": true})
}

// ── Usage ─────────────────────────────────────────────────────────────────────

func (s *Server) handleUsage(ctx *fasthttp.RequestCtx) {
	p, ok := pathProvider(ctx)
	if !ok {
		return
	}
	var workload providers.Workload
	if raw := string(ctx.QueryArgs().Peek("workload")); raw != "" {
		w, err := providers.ParseWorkload(raw)
		if err != nil {
			apperr.WriteStatus(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		workload = w
	}

	stats, err := s.catalog.UsageStats(p, workload)
	if err != nil {
		apperr.Write(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{
		"provider": p,
		"workload": workload,
		"stats":    stats,
	})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// filterFromQuery parses optional provider/workload query parameters into a
// catalog filter. On a bad value it writes a 400 and returns ok=false.
func filterFromQuery(ctx *fasthttp.RequestCtx) (catalog.Filter, bool) {
	var f catalog.Filter
	if raw := string(ctx.QueryArgs().Peek("provider")); raw != "" {
		p, ok := providers.FromAlias(raw)
		if !ok {
			apperr.WriteStatus(ctx, fasthttp.StatusBadRequest,
				fmt.Sprintf("unknown provider %q", raw))
			return f, false
		}
		f.Provider = p
	}
	if raw := string(ctx.QueryArgs().Peek("workload")); raw != "" {
		w, err := providers.ParseWorkload(raw)
		if err != nil {
			apperr.WriteStatus(ctx, fasthttp.StatusBadRequest, err.Error())
			return f, false
		}
		f.Workload = w
	}
	return f, true
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
