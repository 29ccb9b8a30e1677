// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initMetrics — Prometheus registry shared by the later steps
//  2. initStorage — embedded database, schema bootstrap, stores
//  3. initCache   — optional response cache backend (redis / memory / none)
//  4. initRouter  — provider adapters from config + stored credentials
//  5. initServer  — HTTP surface with management routes and metrics
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	aicache "github.com/freegin/freegin-ai/internal/cache"
	"github.com/freegin/freegin-ai/internal/catalog"
	"github.com/freegin/freegin-ai/internal/config"
	"github.com/freegin/freegin-ai/internal/credentials"
	"github.com/freegin/freegin-ai/internal/health"
	"github.com/freegin/freegin-ai/internal/metrics"
	"github.com/freegin/freegin-ai/internal/router"
	"github.com/freegin/freegin-ai/internal/server"
	"github.com/freegin/freegin-ai/internal/usage"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	db      *sqlx.DB
	creds   *credentials.Store
	tracker *health.Tracker
	catalog *catalog.Store
	usage   *usage.Logger

	// Cache backends — at most one is non-nil.
	memCache   *aicache.MemoryCache
	redisCache *aicache.ExactCache
	respCache  *aicache.ResponseCache

	prom *metrics.Registry
	gen  *router.Router
	srv  *server.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"metrics", a.initMetrics},
		{"storage", a.initStorage},
		{"cache", a.initCache},
		{"router", a.initRouter},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Addr()

	a.log.Info("starting server",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.Any("providers", a.gen.Providers()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.Start(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		if err := a.srv.Shutdown(); err != nil {
			a.log.Error("server shutdown error", slog.String("error", err.Error()))
		}
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times.
func (a *App) Close() {
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.redisCache = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("database close error", slog.String("error", err.Error()))
		}
		a.db = nil
	}
}
