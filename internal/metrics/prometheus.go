// Package metrics provides a Prometheus metrics registry for the service.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// ai_inflight_requests
	inFlight prometheus.Gauge

	// ai_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// ai_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// ai_generate_requests_total{provider,status}
	generateTotal *prometheus.CounterVec

	// ai_generate_duration_seconds{provider,cache}
	generateDuration *prometheus.HistogramVec

	// ai_provider_attempts_total{provider,outcome}
	providerAttempts *prometheus.CounterVec

	// ai_provider_errors_total{provider,class}
	providerErrors *prometheus.CounterVec

	// ai_provider_health{provider}: 1=available, 0.5=degraded, 0=unavailable
	providerHealth *prometheus.GaugeVec

	// cache_hits_total / cache_misses_total
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// ai_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// ai_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ai_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes cache + upstream)",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"route"},
		),

		generateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_generate_requests_total",
				Help: "Total generation requests by serving provider and outcome",
			},
			[]string{"provider", "status"},
		),

		generateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_generate_duration_seconds",
				Help:    "Generation request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "cache"},
		),

		providerAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_provider_attempts_total",
				Help: "Upstream provider attempts (includes fallback walks)",
			},
			[]string{"provider", "outcome"},
		),

		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_provider_errors_total",
				Help: "Provider failures by classified cause",
			},
			[]string{"provider", "class"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ai_provider_health",
				Help: "Provider health (1=available, 0.5=degraded, 0=unavailable)",
			},
			[]string{"provider"},
		),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_cache_operations_total",
				Help: "Cache operations by type and result",
			},
			[]string{"op", "result"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ai_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.generateTotal,
		r.generateDuration,
		r.providerAttempts,
		r.providerErrors,
		r.providerHealth,
		r.cacheHits,
		r.cacheMisses,
		r.cacheOps,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics for one handled request.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveGenerate records one completed generation request. The provider label
// is the provider that ultimately served the request, or "none" when the walk
// was exhausted. cache is "hit", "miss", or "bypass".
func (r *Registry) ObserveGenerate(provider, status, cache string, dur time.Duration) {
	r.generateTotal.WithLabelValues(provider, status).Inc()
	r.generateDuration.WithLabelValues(provider, cache).Observe(dur.Seconds())
}

// ObserveProviderAttempt records one upstream attempt during a fallback walk.
func (r *Registry) ObserveProviderAttempt(provider, outcome string) {
	r.providerAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordProviderError counts a classified provider failure, e.g. "rate_limit".
func (r *Registry) RecordProviderError(provider, class string) {
	r.providerErrors.WithLabelValues(provider, class).Inc()
}

// SetProviderHealth exports the tracked health status as a gauge.
func (r *Registry) SetProviderHealth(provider string, v float64) {
	r.providerHealth.WithLabelValues(provider).Set(v)
}

func (r *Registry) CacheGetHit() {
	r.cacheHits.Inc()
	r.cacheOps.WithLabelValues("get", "hit").Inc()
}

func (r *Registry) CacheGetMiss() {
	r.cacheMisses.Inc()
	r.cacheOps.WithLabelValues("get", "miss").Inc()
}

func (r *Registry) CacheGetBypass() {
	r.cacheOps.WithLabelValues("get", "bypass").Inc()
}

func (r *Registry) CacheSetOK() {
	r.cacheOps.WithLabelValues("set", "ok").Inc()
}

func (r *Registry) CacheSetError() {
	r.cacheOps.WithLabelValues("set", "error").Inc()
}

func (r *Registry) SetBuildInfo(version string) {
	// Gauge is used so the time series always exists.
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
