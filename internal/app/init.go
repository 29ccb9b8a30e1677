package app

import (
	"context"
	"fmt"
	"log/slog"

	aicache "github.com/freegin/freegin-ai/internal/cache"
	"github.com/freegin/freegin-ai/internal/catalog"
	"github.com/freegin/freegin-ai/internal/credentials"
	"github.com/freegin/freegin-ai/internal/health"
	"github.com/freegin/freegin-ai/internal/metrics"
	"github.com/freegin/freegin-ai/internal/router"
	"github.com/freegin/freegin-ai/internal/server"
	"github.com/freegin/freegin-ai/internal/storage"
	"github.com/freegin/freegin-ai/internal/usage"
)

// initMetrics builds the Prometheus registry shared by the router, the
// response cache, and the HTTP surface.
func (a *App) initMetrics(_ context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)
	return nil
}

// initStorage opens the embedded database, runs schema bootstrap, and builds
// the stores that share the connection pool. Seeded catalog defaults never
// override operator-managed rosters.
func (a *App) initStorage(_ context.Context) error {
	db, err := storage.Open(a.cfg.Database.URL)
	if err != nil {
		return err
	}
	a.db = db

	creds, err := credentials.New(db)
	if err != nil {
		return err
	}
	a.creds = creds
	a.tracker = health.NewTracker(db)
	a.catalog = catalog.NewStore(db)
	a.usage = usage.NewLogger(db)

	if err := a.catalog.SeedDefaults(); err != nil {
		return err
	}

	a.log.Info("storage ready", slog.String("url", a.cfg.Database.URL))
	return nil
}

// initCache selects the response cache backend. "none" is the default and
// leaves the cache nil — every request goes upstream.
func (a *App) initCache(ctx context.Context) error {
	var backend aicache.Cache

	switch a.cfg.Cache.Mode {
	case "redis":
		ec, err := aicache.NewExactCacheFromURL(ctx, a.cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.redisCache = ec
		backend = ec
		a.log.Info("cache backend: redis")

	case "memory":
		a.memCache = aicache.NewMemoryCache(a.baseCtx)
		backend = a.memCache
		a.log.Info("cache backend: memory (in-process)")

	case "none", "":
		a.log.Info("cache backend: disabled")
		return nil

	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	var exclusions *aicache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := aicache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		exclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	a.respCache = aicache.NewResponseCache(backend, a.cfg.Cache.TTL, exclusions, a.prom)
	return nil
}

// initRouter builds provider adapters from config and stored credentials.
// Config keys win over stored ones; providers without any key are skipped.
func (a *App) initRouter(ctx context.Context) error {
	gen, err := router.FromConfig(ctx, a.cfg, a.creds,
		router.WithUsageLogger(a.usage),
		router.WithCatalog(a.catalog),
		router.WithHealthTracker(a.tracker),
		router.WithMetrics(a.prom),
		router.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.gen = gen

	a.log.Info("providers loaded", slog.Any("providers", gen.Providers()))
	return nil
}

// initServer assembles the HTTP surface.
func (a *App) initServer(_ context.Context) error {
	a.srv = server.New(server.Deps{
		Generator:   a.gen,
		Health:      a.tracker,
		Catalog:     a.catalog,
		Credentials: a.creds,
		Cache:       a.respCache,
		Metrics:     a.prom,
		Logger:      a.log,
	})

	return nil
}
